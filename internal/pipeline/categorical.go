package pipeline

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"domainsift/internal/borders"
	"domainsift/internal/dataset"
	"domainsift/internal/dtree"
)

// ProbColumn is the numeric feature produced by the categorical
// probability encoder.
const ProbColumn = "dtree_prob"

// categoricalRows extracts the fixed categorical tuple as row-major
// string tokens. Every column of the tuple must be present.
func categoricalRows(tbl *dataset.Table) ([][]string, error) {
	cols := make([]*dataset.Column, len(dataset.CategoricalColumns))
	for j, name := range dataset.CategoricalColumns {
		c, ok := tbl.Col(name)
		if !ok {
			return nil, fmt.Errorf("pipeline: categorical column %q not found", name)
		}
		cols[j] = c
	}
	rows := make([][]string, tbl.Len())
	for i := range rows {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = c.StringAt(i)
		}
		rows[i] = row
	}
	return rows, nil
}

// trainCategorical fits the encode+classify pipeline on a stratified
// 80/20 partition, attaches the predicted class-1 probability for
// every row, persists the model and drops the raw categorical tuple.
func (r *Runner) trainCategorical(tbl *dataset.Table, rawLabels []string, log *zap.Logger) error {
	rows, err := categoricalRows(tbl)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(splitSeed))
	trainIdx, testIdx := dtree.StratifiedSplit(rawLabels, 0.2, rng)

	trainRows := make([][]string, len(trainIdx))
	trainY := make([]string, len(trainIdx))
	for i, idx := range trainIdx {
		trainRows[i] = rows[idx]
		trainY[i] = rawLabels[idx]
	}
	testRows := make([][]string, len(testIdx))
	testY := make([]string, len(testIdx))
	for i, idx := range testIdx {
		testRows[i] = rows[idx]
		testY[i] = rawLabels[idx]
	}

	model, err := dtree.FitPipeline(dataset.CategoricalColumns, trainRows, trainY)
	if err != nil {
		return err
	}
	payload, err := model.Encode()
	if err != nil {
		return err
	}
	if err := r.store.Save(borders.ModelArtifact, payload); err != nil {
		return err
	}

	// Probabilities are assigned by original row index, so the new
	// column stays aligned with the shuffled table.
	probs := make([]float64, len(rows))
	for i, row := range rows {
		probs[i] = model.Proba1(row)
	}
	if err := tbl.AddColumn(&dataset.Column{Name: ProbColumn, Kind: dataset.Numeric, Nums: probs}); err != nil {
		return err
	}
	log.Info("categorical probability feature created", zap.String("column", ProbColumn))
	log.Info("decision tree accuracy",
		zap.Float64("train", model.Score(trainRows, trainY)),
		zap.Float64("test", model.Score(testRows, testY)))

	if cv, err := dtree.CrossValScore(dataset.CategoricalColumns, rows, rawLabels, 3, rng); err == nil {
		log.Info("decision tree cross-validation", zap.Float64("mean_score", cv))
	} else {
		log.Warn("cross-validation skipped", zap.Error(err))
	}

	tbl.Drop(dataset.CategoricalColumns...)
	return nil
}
