package dtree

import (
	"fmt"
	"sort"
)

// OneHot maps categorical string tuples to indicator vectors. The
// vocabulary is fixed at fit time; categories never seen during
// training produce an all-zero block rather than an error.
type OneHot struct {
	Columns []string
	Vocab   []map[string]int // per column: category -> offset within the column's block
	Offsets []int            // start of each column's block in the output vector
	Width   int
}

// FitOneHot builds the vocabulary from row-major categorical data.
// Categories are assigned offsets in sorted order so the encoding is
// stable across fits.
func FitOneHot(columns []string, rows [][]string) (*OneHot, error) {
	e := &OneHot{Columns: columns}
	p := len(columns)
	for _, row := range rows {
		if len(row) != p {
			return nil, fmt.Errorf("dtree: categorical row has %d values, want %d", len(row), p)
		}
	}
	for j := 0; j < p; j++ {
		seen := make(map[string]bool)
		var cats []string
		for _, row := range rows {
			if !seen[row[j]] {
				seen[row[j]] = true
				cats = append(cats, row[j])
			}
		}
		sort.Strings(cats)
		vocab := make(map[string]int, len(cats))
		for i, c := range cats {
			vocab[c] = i
		}
		e.Vocab = append(e.Vocab, vocab)
		e.Offsets = append(e.Offsets, e.Width)
		e.Width += len(cats)
	}
	return e, nil
}

// Transform encodes one categorical row. Unknown categories leave
// their column's block all zero.
func (e *OneHot) Transform(row []string) []float64 {
	out := make([]float64, e.Width)
	for j, v := range row {
		if idx, ok := e.Vocab[j][v]; ok {
			out[e.Offsets[j]+idx] = 1
		}
	}
	return out
}

// TransformAll encodes row-major categorical data.
func (e *OneHot) TransformAll(rows [][]string) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = e.Transform(row)
	}
	return out
}
