package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// NormalizeTypes converts temporal and boolean columns to numeric in
// place: durations become elapsed seconds, timestamps become integer
// epoch seconds and booleans become 0/1 floats. Zero timestamps map
// to NaN so the imputation pass can assign the sentinel.
func (t *Table) NormalizeTypes() {
	for i, c := range t.cols {
		switch c.Kind {
		case Duration:
			nums := make([]float64, len(c.Durs))
			for j, d := range c.Durs {
				nums[j] = d.Seconds()
			}
			t.cols[i] = &Column{Name: c.Name, Kind: Numeric, Nums: nums}
		case Time:
			nums := make([]float64, len(c.Times))
			for j, ts := range c.Times {
				if ts.IsZero() {
					nums[j] = math.NaN()
					continue
				}
				nums[j] = float64(ts.Unix())
			}
			t.cols[i] = &Column{Name: c.Name, Kind: Numeric, Nums: nums}
		case Bool:
			nums := make([]float64, len(c.Bools))
			for j, b := range c.Bools {
				if b {
					nums[j] = 1
				}
			}
			t.cols[i] = &Column{Name: c.Name, Kind: Numeric, Nums: nums}
		}
	}
}

// Impute replaces missing numeric values (NaN) with the sentinel.
func (t *Table) Impute(sentinel float64) {
	for _, c := range t.cols {
		if c.Kind != Numeric {
			continue
		}
		for i, v := range c.Nums {
			if math.IsNaN(v) {
				c.Nums[i] = sentinel
			}
		}
	}
}

// Matrix assembles all columns into a dense row-major matrix. Every
// column must be numeric by the time this is called.
func (t *Table) Matrix() (*mat.Dense, []string, error) {
	n, p := t.Len(), t.NumCols()
	if p == 0 {
		return nil, nil, fmt.Errorf("dataset: empty table")
	}
	for _, c := range t.cols {
		if c.Kind != Numeric {
			return nil, nil, fmt.Errorf("dataset: column %q is %s, matrix requires numeric", c.Name, c.Kind)
		}
	}
	m := mat.NewDense(n, p, nil)
	for j, c := range t.cols {
		for i, v := range c.Nums {
			m.Set(i, j, v)
		}
	}
	return m, t.Names(), nil
}

// Rows materializes the table as row-major float slices. Same
// numeric-only requirement as Matrix.
func (t *Table) Rows() ([][]float64, error) {
	n := t.Len()
	out := make([][]float64, n)
	for _, c := range t.cols {
		if c.Kind != Numeric {
			return nil, fmt.Errorf("dataset: column %q is %s, rows require numeric", c.Name, c.Kind)
		}
	}
	for i := 0; i < n; i++ {
		row := make([]float64, t.NumCols())
		for j, c := range t.cols {
			row[j] = c.Nums[i]
		}
		out[i] = row
	}
	return out, nil
}

// FromRecord builds a one-row table from a raw record. The identifier
// column comes first when present, the label second; the remaining
// fields follow in sorted order so single-record tables have a stable
// column order.
func FromRecord(rec map[string]any) (*Table, error) {
	var rest []string
	for k := range rec {
		if k == DomainColumn || k == LabelColumn {
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)

	var names []string
	if _, ok := rec[DomainColumn]; ok {
		names = append(names, DomainColumn)
	}
	if _, ok := rec[LabelColumn]; ok {
		names = append(names, LabelColumn)
	}
	names = append(names, rest...)

	tbl := New()
	for _, name := range names {
		col, err := columnFromValue(name, rec[name])
		if err != nil {
			return nil, err
		}
		if err := tbl.AddColumn(col); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

func columnFromValue(name string, v any) (*Column, error) {
	switch x := v.(type) {
	case nil:
		return &Column{Name: name, Kind: Numeric, Nums: []float64{math.NaN()}}, nil
	case float64:
		return &Column{Name: name, Kind: Numeric, Nums: []float64{x}}, nil
	case float32:
		return &Column{Name: name, Kind: Numeric, Nums: []float64{float64(x)}}, nil
	case int:
		return &Column{Name: name, Kind: Numeric, Nums: []float64{float64(x)}}, nil
	case int64:
		return &Column{Name: name, Kind: Numeric, Nums: []float64{float64(x)}}, nil
	case bool:
		return &Column{Name: name, Kind: Bool, Bools: []bool{x}}, nil
	case time.Time:
		return &Column{Name: name, Kind: Time, Times: []time.Time{x}}, nil
	case time.Duration:
		return &Column{Name: name, Kind: Duration, Durs: []time.Duration{x}}, nil
	case string:
		// JSON records carry timestamps as RFC3339 strings.
		if ts, err := time.Parse(time.RFC3339, x); err == nil {
			return &Column{Name: name, Kind: Time, Times: []time.Time{ts}}, nil
		}
		return &Column{Name: name, Kind: String, Strs: []string{x}}, nil
	}
	return nil, fmt.Errorf("dataset: field %q has unsupported type %T", name, v)
}
