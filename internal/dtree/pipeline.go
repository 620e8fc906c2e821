package dtree

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
)

// Pipeline bundles the one-hot encoder and the trained tree into one
// artifact, so encode and classify always travel together. Class ids
// are positions in the sorted distinct raw labels observed at fit
// time; Proba1 reports the probability of class index 1, mirroring
// the second column of a probability matrix.
type Pipeline struct {
	Encoder *OneHot
	Tree    *Tree
	Labels  []string // sorted distinct raw labels; index is the class id
}

// FitPipeline trains the encoder and tree on row-major categorical
// data with raw string labels.
func FitPipeline(columns []string, rows [][]string, y []string) (*Pipeline, error) {
	if len(rows) != len(y) {
		return nil, fmt.Errorf("dtree: %d rows but %d labels", len(rows), len(y))
	}
	enc, err := FitOneHot(columns, rows)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var labels []string
	for _, l := range y {
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	sort.Strings(labels)
	classOf := make(map[string]int, len(labels))
	for i, l := range labels {
		classOf[l] = i
	}
	yi := make([]int, len(y))
	for i, l := range y {
		yi[i] = classOf[l]
	}

	tree := NewTree()
	if err := tree.Fit(enc.TransformAll(rows), yi); err != nil {
		return nil, err
	}
	return &Pipeline{Encoder: enc, Tree: tree, Labels: labels}, nil
}

// Proba1 returns the probability of class index 1 for one categorical
// row. A single-class fit has no second column and reports 0.
func (p *Pipeline) Proba1(row []string) float64 {
	probas := p.Tree.PredictProba(p.Encoder.Transform(row))
	pos := -1
	for i, c := range p.Tree.Classes {
		if c == 1 {
			pos = i
			break
		}
	}
	if pos < 0 {
		return 0
	}
	return probas[pos]
}

// Score returns the share of rows whose predicted label matches y.
func (p *Pipeline) Score(rows [][]string, y []string) float64 {
	if len(rows) == 0 {
		return 0
	}
	correct := 0
	for i, row := range rows {
		pred := p.Tree.Predict(p.Encoder.Transform(row))
		if pred >= 0 && pred < len(p.Labels) && p.Labels[pred] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(rows))
}

// Encode serializes the pipeline for the border store.
func (p *Pipeline) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("dtree: encode pipeline: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePipeline restores a pipeline persisted by Encode.
func DecodePipeline(payload []byte) (*Pipeline, error) {
	var p Pipeline
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&p); err != nil {
		return nil, fmt.Errorf("dtree: decode pipeline: %w", err)
	}
	if p.Encoder == nil || p.Tree == nil {
		return nil, errors.New("dtree: decoded pipeline is incomplete")
	}
	return &p, nil
}
