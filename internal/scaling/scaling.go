// Package scaling fits and replays numeric column transforms. The
// scaler chosen at training time is persisted and reused for every
// scored record, never refitted.
package scaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"domainsift/internal/dataset"
)

// ErrUnsupportedScaler is returned for a scaler kind the pipeline
// does not know how to fit.
var ErrUnsupportedScaler = errors.New("scaling: unsupported scaler type")

// ErrColumnMismatch is returned when a fitted column is absent from
// the table being transformed. The serving column set must match
// training exactly; a silent reshape would break train/serve parity.
var ErrColumnMismatch = errors.New("scaling: fitted column missing from table")

// Kind names a scaling strategy.
type Kind string

const (
	Standard      Kind = "StandardScaler"
	MinMax        Kind = "MinMaxScaler"
	Robust        Kind = "RobustScaler"
	MinMaxSigmoid Kind = "MinMaxScaler + Sigmoid"
)

// Scaler holds the fitted center/scale parameters for an ordered set
// of numeric columns.
type Scaler struct {
	Kind    Kind      `json:"kind"`
	Columns []string  `json:"columns"`
	Center  []float64 `json:"center"`
	Scale   []float64 `json:"scale"`
}

// Fit computes per-column parameters over the table's numeric columns:
// mean/stddev for the standard scaler, min/range for min-max (with or
// without the sigmoid), median/IQR for the robust scaler. A zero
// scale is replaced by 1 so constant columns transform to 0.
func Fit(kind Kind, tbl *dataset.Table) (*Scaler, error) {
	switch kind {
	case Standard, MinMax, Robust, MinMaxSigmoid:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScaler, kind)
	}
	s := &Scaler{Kind: kind}
	for _, name := range tbl.NumericNames() {
		col, _ := tbl.Col(name)
		center, scale := fitColumn(kind, col.Nums)
		s.Columns = append(s.Columns, name)
		s.Center = append(s.Center, center)
		s.Scale = append(s.Scale, scale)
	}
	return s, nil
}

func fitColumn(kind Kind, vals []float64) (center, scale float64) {
	switch kind {
	case Standard:
		mean, std := stat.MeanStdDev(vals, nil)
		center, scale = mean, std
	case MinMax, MinMaxSigmoid:
		lo, hi := minMax(vals)
		center, scale = lo, hi-lo
	case Robust:
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		med := stat.Quantile(0.5, stat.Empirical, sorted, nil)
		iqr := stat.Quantile(0.75, stat.Empirical, sorted, nil) - stat.Quantile(0.25, stat.Empirical, sorted, nil)
		center, scale = med, iqr
	}
	if scale == 0 || math.IsNaN(scale) {
		scale = 1
	}
	return center, scale
}

func minMax(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Transform replays the fitted parameters on the table in place.
// Non-numeric columns pass through untouched; a fitted column missing
// from the table is an error.
func (s *Scaler) Transform(tbl *dataset.Table) error {
	for i, name := range s.Columns {
		col, ok := tbl.Col(name)
		if !ok || col.Kind != dataset.Numeric {
			return fmt.Errorf("%w: %q", ErrColumnMismatch, name)
		}
		center, scale := s.Center[i], s.Scale[i]
		for j, v := range col.Nums {
			y := (v - center) / scale
			if s.Kind == MinMaxSigmoid {
				y = 1 / (1 + math.Exp(-y))
			}
			col.Nums[j] = y
		}
	}
	return nil
}

// Encode serializes the scaler for the border store.
func (s *Scaler) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Decode restores a scaler persisted by Encode.
func Decode(payload []byte) (*Scaler, error) {
	var s Scaler
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("scaling: decode scaler: %w", err)
	}
	return &s, nil
}

// Recommend picks a scaling strategy for the target downstream model
// from dataset statistics: the share of rows holding any |z| > 3
// value and the number of missing cells.
//
// svm gets the robust scaler when outliers or missing values are
// present; xgboost always gets min-max (tree ensembles are scale
// insensitive, min-max is for numerical stability only); cnn gets
// min-max squashed through a sigmoid. Anything else defaults to the
// standard scaler.
func Recommend(tbl *dataset.Table, model string) Kind {
	switch model {
	case "svm":
		if outlierFraction(tbl) > 0.05 || missingCells(tbl) > 0 {
			return Robust
		}
		return Standard
	case "xgboost":
		return MinMax
	case "cnn":
		return MinMaxSigmoid
	}
	return Standard
}

func outlierFraction(tbl *dataset.Table) float64 {
	n := tbl.Len()
	if n == 0 {
		return 0
	}
	flagged := make([]bool, n)
	for _, name := range tbl.NumericNames() {
		col, _ := tbl.Col(name)
		mean, std := stat.MeanStdDev(col.Nums, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		for i, v := range col.Nums {
			if math.Abs((v-mean)/std) > 3 {
				flagged[i] = true
			}
		}
	}
	count := 0
	for _, f := range flagged {
		if f {
			count++
		}
	}
	return float64(count) / float64(n)
}

func missingCells(tbl *dataset.Table) int {
	count := 0
	for _, name := range tbl.NumericNames() {
		col, _ := tbl.Col(name)
		for _, v := range col.Nums {
			if math.IsNaN(v) {
				count++
			}
		}
	}
	return count
}
