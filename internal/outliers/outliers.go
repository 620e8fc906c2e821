// Package outliers computes and applies per-column statistical bounds
// of the form mean ± k·stddev. Bounds are fitted once during training
// and replayed verbatim when scoring, so batch and single-record
// processing agree on what counts as an extreme value.
package outliers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"domainsift/internal/dataset"
)

// DefaultMultiplier is deliberately loose: it trims only collection
// artifacts, not ordinary variance.
const DefaultMultiplier = 8

// ErrOutOfBounds rejects a single scored record whose value falls
// outside a fitted bound. Batch processing drops such rows silently;
// for one inbound record an explicit rejection is the only sane
// answer, since silently returning no features would look like success.
var ErrOutOfBounds = errors.New("outliers: record out of bounds")

// Range is a closed interval; values strictly outside it are outliers.
type Range struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Bounds maps numeric column names to their fitted ranges. Once
// fitted it is immutable for the lifetime of a training run.
type Bounds map[string]Range

// Fit computes mean ± k·stddev for every numeric column. NaN cells
// are excluded from the statistics.
func Fit(tbl *dataset.Table, k float64) Bounds {
	out := make(Bounds)
	for _, name := range tbl.NumericNames() {
		col, _ := tbl.Col(name)
		vals := col.Nums[:0:0]
		for _, v := range col.Nums {
			if !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(vals, nil)
		if math.IsNaN(std) { // single observation
			std = 0
		}
		out[name] = Range{Lower: mean - k*std, Upper: mean + k*std}
	}
	return out
}

// Apply drops every row with a value strictly outside its column's
// range, processing bounded columns in sorted name order. Rows
// removed by an earlier column are gone before later columns are
// checked; the accumulated drop is not rolled back. Labels are kept
// aligned with the surviving rows. Returns removed-row counts per
// column for the columns that removed anything.
func Apply(tbl *dataset.Table, labels []int, bounds Bounds) ([]int, map[string]int, error) {
	if len(bounds) == 0 {
		return nil, nil, errors.New("outliers: no bounds available for outlier removal")
	}
	removed := make(map[string]int)
	for _, name := range sortedNames(bounds) {
		col, ok := tbl.Col(name)
		if !ok || col.Kind != dataset.Numeric {
			continue
		}
		r := bounds[name]
		keep := make([]bool, len(col.Nums))
		dropped := 0
		for i, v := range col.Nums {
			if v < r.Lower || v > r.Upper {
				dropped++
				continue
			}
			keep[i] = true
		}
		if dropped == 0 {
			continue
		}
		if len(labels) != len(keep) {
			return nil, nil, fmt.Errorf("outliers: %d labels for %d rows", len(labels), len(keep))
		}
		tbl.KeepRows(keep)
		kept := labels[:0]
		for i, l := range labels {
			if keep[i] {
				kept = append(kept, l)
			}
		}
		labels = kept
		removed[name] = dropped
	}
	return labels, removed, nil
}

// Check validates a single-record table against fitted bounds,
// returning ErrOutOfBounds naming the first offending column.
func Check(tbl *dataset.Table, bounds Bounds) error {
	if len(bounds) == 0 {
		return errors.New("outliers: no bounds available for outlier removal")
	}
	for _, name := range sortedNames(bounds) {
		col, ok := tbl.Col(name)
		if !ok || col.Kind != dataset.Numeric {
			continue
		}
		r := bounds[name]
		for _, v := range col.Nums {
			if v < r.Lower || v > r.Upper {
				return fmt.Errorf("%w: column %q value %g outside [%g, %g]",
					ErrOutOfBounds, name, v, r.Lower, r.Upper)
			}
		}
	}
	return nil
}

func sortedNames(bounds Bounds) []string {
	names := make([]string, 0, len(bounds))
	for name := range bounds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode serializes bounds for the border store.
func (b Bounds) Encode() ([]byte, error) {
	return json.Marshal(b)
}

// Decode restores bounds persisted by Encode.
func Decode(payload []byte) (Bounds, error) {
	var b Bounds
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("outliers: decode bounds: %w", err)
	}
	return b, nil
}
