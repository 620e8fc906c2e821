package dtree

import (
	"math/rand"
)

// StratifiedSplit partitions row indices into train and test sets,
// holding out testFrac of each label group so class balance survives
// the split. Groups too small to contribute a test row stay entirely
// in the training partition.
func StratifiedSplit(y []string, testFrac float64, rng *rand.Rand) (train, test []int) {
	groups := make(map[string][]int)
	var order []string
	for i, l := range y {
		if _, ok := groups[l]; !ok {
			order = append(order, l)
		}
		groups[l] = append(groups[l], i)
	}
	for _, l := range order {
		idx := groups[l]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		cut := int(float64(len(idx)) * testFrac)
		test = append(test, idx[:cut]...)
		train = append(train, idx[cut:]...)
	}
	return train, test
}

// KFold splits n row indices into k shuffled folds.
func KFold(n, k int, rng *rand.Rand) [][]int {
	perm := rng.Perm(n)
	folds := make([][]int, k)
	for i, p := range perm {
		folds[i%k] = append(folds[i%k], p)
	}
	return folds
}

// CrossValScore fits a fresh pipeline on each of k folds' complements
// and returns the mean held-out accuracy.
func CrossValScore(columns []string, rows [][]string, y []string, k int, rng *rand.Rand) (float64, error) {
	folds := KFold(len(rows), k, rng)
	total := 0.0
	for _, fold := range folds {
		hold := make(map[int]bool, len(fold))
		for _, i := range fold {
			hold[i] = true
		}
		var trainRows, testRows [][]string
		var trainY, testY []string
		for i := range rows {
			if hold[i] {
				testRows = append(testRows, rows[i])
				testY = append(testY, y[i])
			} else {
				trainRows = append(trainRows, rows[i])
				trainY = append(trainY, y[i])
			}
		}
		p, err := FitPipeline(columns, trainRows, trainY)
		if err != nil {
			return 0, err
		}
		total += p.Score(testRows, testY)
	}
	return total / float64(k), nil
}
