package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSV headers carry an optional type suffix: "name:num", "name:str",
// "name:bool", "name:time", "name:dur". A bare name is numeric.
// Empty cells are missing values (NaN for numeric, zero otherwise).

// ReadCSV loads a typed CSV dataset into a table.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: read header of %s: %w", path, err)
	}

	names := make([]string, len(header))
	kinds := make([]Kind, len(header))
	for i, h := range header {
		names[i], kinds[i], err = parseHeader(h)
		if err != nil {
			return nil, fmt.Errorf("dataset: %s: %w", path, err)
		}
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}

	tbl := New()
	for j := range header {
		col := &Column{Name: names[j], Kind: kinds[j]}
		for i, rec := range records {
			if err := appendCell(col, rec[j]); err != nil {
				return nil, fmt.Errorf("dataset: %s row %d column %q: %w", path, i+1, names[j], err)
			}
		}
		if err := tbl.AddColumn(col); err != nil {
			return nil, fmt.Errorf("dataset: %s: %w", path, err)
		}
	}
	return tbl, nil
}

func parseHeader(h string) (string, Kind, error) {
	name, suffix, found := strings.Cut(h, ":")
	if !found {
		return h, Numeric, nil
	}
	switch suffix {
	case "num":
		return name, Numeric, nil
	case "str":
		return name, String, nil
	case "bool":
		return name, Bool, nil
	case "time":
		return name, Time, nil
	case "dur":
		return name, Duration, nil
	}
	return "", 0, fmt.Errorf("unknown column type %q in header %q", suffix, h)
}

func appendCell(col *Column, cell string) error {
	switch col.Kind {
	case Numeric:
		if cell == "" || cell == "NA" || cell == "NaN" {
			col.Nums = append(col.Nums, math.NaN())
			return nil
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return err
		}
		col.Nums = append(col.Nums, v)
	case String:
		col.Strs = append(col.Strs, cell)
	case Bool:
		if cell == "" {
			col.Bools = append(col.Bools, false)
			return nil
		}
		v, err := strconv.ParseBool(cell)
		if err != nil {
			return err
		}
		col.Bools = append(col.Bools, v)
	case Time:
		if cell == "" {
			col.Times = append(col.Times, time.Time{})
			return nil
		}
		ts, err := time.Parse(time.RFC3339, cell)
		if err != nil {
			return err
		}
		col.Times = append(col.Times, ts)
	case Duration:
		if cell == "" {
			col.Durs = append(col.Durs, 0)
			return nil
		}
		d, err := time.ParseDuration(cell)
		if err != nil {
			return err
		}
		col.Durs = append(col.Durs, d)
	}
	return nil
}

// WriteMatrixCSV writes a numeric feature matrix with its column
// names as a plain CSV file.
func WriteMatrixCSV(path string, names []string, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(bufio.NewWriter(f))
	if err := w.Write(names); err != nil {
		return fmt.Errorf("dataset: write %s: %w", path, err)
	}
	rec := make([]string, len(names))
	for _, row := range rows {
		for j, v := range row {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("dataset: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("dataset: write %s: %w", path, err)
	}
	return nil
}
