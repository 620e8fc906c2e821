// Package dataset implements the column-oriented record table the
// feature pipeline operates on: CSV load/save, schema alignment,
// column selection, shuffling and dtype normalization.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"
)

// ErrSchemaMismatch is returned when two tables cannot be aligned by a
// direct column-wise cast.
var ErrSchemaMismatch = errors.New("dataset: schema mismatch")

// Kind identifies the storage type of a column.
type Kind int

const (
	Numeric Kind = iota
	String
	Bool
	Time
	Duration
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "num"
	case String:
		return "str"
	case Bool:
		return "bool"
	case Time:
		return "time"
	case Duration:
		return "dur"
	}
	return "unknown"
}

// Column holds one named, typed column. Exactly one of the value
// slices is populated, selected by Kind. Missing numeric values are
// NaN; missing strings are "".
type Column struct {
	Name  string
	Kind  Kind
	Nums  []float64
	Strs  []string
	Bools []bool
	Times []time.Time
	Durs  []time.Duration
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case Numeric:
		return len(c.Nums)
	case String:
		return len(c.Strs)
	case Bool:
		return len(c.Bools)
	case Time:
		return len(c.Times)
	case Duration:
		return len(c.Durs)
	}
	return 0
}

// StringAt renders the value at row i as a string. Used by the
// categorical encoder, which treats every category as an opaque token.
func (c *Column) StringAt(i int) string {
	switch c.Kind {
	case Numeric:
		v := c.Nums[i]
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case String:
		return c.Strs[i]
	case Bool:
		return strconv.FormatBool(c.Bools[i])
	case Time:
		return c.Times[i].UTC().Format(time.RFC3339)
	case Duration:
		return c.Durs[i].String()
	}
	return ""
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Numeric:
		out.Nums = append([]float64(nil), c.Nums...)
	case String:
		out.Strs = append([]string(nil), c.Strs...)
	case Bool:
		out.Bools = append([]bool(nil), c.Bools...)
	case Time:
		out.Times = append([]time.Time(nil), c.Times...)
	case Duration:
		out.Durs = append([]time.Duration(nil), c.Durs...)
	}
	return out
}

// Table is an ordered collection of equal-length columns.
type Table struct {
	cols  []*Column
	index map[string]int
}

// New returns an empty table.
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// AddColumn appends a column. The first column fixes the row count;
// later columns must match it.
func (t *Table) AddColumn(c *Column) error {
	if _, ok := t.index[c.Name]; ok {
		return fmt.Errorf("dataset: duplicate column %q", c.Name)
	}
	if len(t.cols) > 0 && c.Len() != t.Len() {
		return fmt.Errorf("dataset: column %q has %d rows, table has %d", c.Name, c.Len(), t.Len())
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Names returns the ordered column names.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Col returns the named column, or false if absent.
func (t *Table) Col(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColAt returns the column at position i.
func (t *Table) ColAt(i int) *Column { return t.cols[i] }

// Select returns a new table holding only the named columns, in the
// order given. Names absent from the table are skipped.
func (t *Table) Select(names []string) *Table {
	out := New()
	for _, name := range names {
		if c, ok := t.Col(name); ok {
			_ = out.AddColumn(c.clone())
		}
	}
	return out
}

// Drop removes the named columns in place. Absent names are ignored.
func (t *Table) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := t.cols[:0]
	for _, c := range t.cols {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	t.cols = kept
	t.reindex()
}

// DropAt removes the column at position i in place.
func (t *Table) DropAt(i int) {
	t.cols = append(t.cols[:i], t.cols[i+1:]...)
	t.reindex()
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.index[c.Name] = i
	}
}

// NumericNames returns the names of all numeric columns, in table order.
func (t *Table) NumericNames() []string {
	var out []string
	for _, c := range t.cols {
		if c.Kind == Numeric {
			out = append(out, c.Name)
		}
	}
	return out
}

// CastTo aligns the receiver to the schema of ref: same column set,
// same order, same kinds. Bool and numeric columns cast to a numeric
// target; any other conversion, or a column-set difference, is a
// schema mismatch.
func (t *Table) CastTo(ref *Table) (*Table, error) {
	if t.NumCols() != ref.NumCols() {
		return nil, fmt.Errorf("%w: %d columns vs %d", ErrSchemaMismatch, t.NumCols(), ref.NumCols())
	}
	out := New()
	for _, rc := range ref.cols {
		c, ok := t.Col(rc.Name)
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, rc.Name)
		}
		cast, err := castColumn(c, rc.Kind)
		if err != nil {
			return nil, err
		}
		_ = out.AddColumn(cast)
	}
	return out, nil
}

func castColumn(c *Column, target Kind) (*Column, error) {
	if c.Kind == target {
		return c.clone(), nil
	}
	if target == Numeric && c.Kind == Bool {
		nums := make([]float64, len(c.Bools))
		for i, b := range c.Bools {
			if b {
				nums[i] = 1
			}
		}
		return &Column{Name: c.Name, Kind: Numeric, Nums: nums}, nil
	}
	return nil, fmt.Errorf("%w: column %q is %s, want %s", ErrSchemaMismatch, c.Name, c.Kind, target)
}

// Concat appends the rows of other. Schemas must already be aligned
// (same names and kinds in the same order); use CastTo first.
func (t *Table) Concat(other *Table) error {
	if t.NumCols() != other.NumCols() {
		return fmt.Errorf("%w: %d columns vs %d", ErrSchemaMismatch, t.NumCols(), other.NumCols())
	}
	for i, c := range t.cols {
		oc := other.cols[i]
		if oc.Name != c.Name || oc.Kind != c.Kind {
			return fmt.Errorf("%w: column %d is %s %q vs %s %q",
				ErrSchemaMismatch, i, c.Kind, c.Name, oc.Kind, oc.Name)
		}
		switch c.Kind {
		case Numeric:
			c.Nums = append(c.Nums, oc.Nums...)
		case String:
			c.Strs = append(c.Strs, oc.Strs...)
		case Bool:
			c.Bools = append(c.Bools, oc.Bools...)
		case Time:
			c.Times = append(c.Times, oc.Times...)
		case Duration:
			c.Durs = append(c.Durs, oc.Durs...)
		}
	}
	return nil
}

// Shuffle permutes all rows with the given source.
func (t *Table) Shuffle(rng *rand.Rand) {
	perm := rng.Perm(t.Len())
	for _, c := range t.cols {
		switch c.Kind {
		case Numeric:
			c.Nums = permuteFloats(c.Nums, perm)
		case String:
			c.Strs = permuteStrings(c.Strs, perm)
		case Bool:
			c.Bools = permuteBools(c.Bools, perm)
		case Time:
			c.Times = permuteTimes(c.Times, perm)
		case Duration:
			c.Durs = permuteDurs(c.Durs, perm)
		}
	}
}

func permuteFloats(x []float64, perm []int) []float64 {
	out := make([]float64, len(x))
	for i, p := range perm {
		out[i] = x[p]
	}
	return out
}

func permuteStrings(x []string, perm []int) []string {
	out := make([]string, len(x))
	for i, p := range perm {
		out[i] = x[p]
	}
	return out
}

func permuteBools(x []bool, perm []int) []bool {
	out := make([]bool, len(x))
	for i, p := range perm {
		out[i] = x[p]
	}
	return out
}

func permuteTimes(x []time.Time, perm []int) []time.Time {
	out := make([]time.Time, len(x))
	for i, p := range perm {
		out[i] = x[p]
	}
	return out
}

func permuteDurs(x []time.Duration, perm []int) []time.Duration {
	out := make([]time.Duration, len(x))
	for i, p := range perm {
		out[i] = x[p]
	}
	return out
}

// KeepRows retains only the rows where keep[i] is true.
func (t *Table) KeepRows(keep []bool) {
	for _, c := range t.cols {
		switch c.Kind {
		case Numeric:
			c.Nums = filterFloats(c.Nums, keep)
		case String:
			c.Strs = filterStrings(c.Strs, keep)
		case Bool:
			c.Bools = filterBools(c.Bools, keep)
		case Time:
			c.Times = filterTimes(c.Times, keep)
		case Duration:
			c.Durs = filterDurs(c.Durs, keep)
		}
	}
}

func filterFloats(x []float64, keep []bool) []float64 {
	out := x[:0]
	for i, v := range x {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}

func filterStrings(x []string, keep []bool) []string {
	out := x[:0]
	for i, v := range x {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}

func filterBools(x []bool, keep []bool) []bool {
	out := x[:0]
	for i, v := range x {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}

func filterTimes(x []time.Time, keep []bool) []time.Time {
	out := x[:0]
	for i, v := range x {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}

func filterDurs(x []time.Duration, keep []bool) []time.Duration {
	out := x[:0]
	for i, v := range x {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}
