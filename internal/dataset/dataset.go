// Package dataset holds the in-memory columnar dataset model and the
// per-session registry that owns the single active dataset of each
// session.
package dataset

import "fmt"

// Type is the declared semantic type of a column.
type Type string

const (
	TypeString   Type = "string"
	TypeNumber   Type = "number"
	TypeBoolean  Type = "boolean"
	TypeDatetime Type = "datetime"
)

// ValidType reports whether t is a known column type.
func ValidType(t Type) bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDatetime:
		return true
	}
	return false
}

// Column is an ordered dataset column with its declared type.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Dataset is a columnar dataset: ordered columns, rows as ordered
// sequences of values. A nil cell is a null. Datasets are treated as
// immutable once registered; operations that mutate data build a new
// Dataset and swap it in through the registry.
type Dataset struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ColumnIndex returns the index of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column, or an error naming it.
func (d *Dataset) Column(name string) (Column, int, error) {
	i := d.ColumnIndex(name)
	if i < 0 {
		return Column{}, -1, fmt.Errorf("no such column: %s", name)
	}
	return d.Columns[i], i, nil
}

// Validate checks structural integrity: non-empty columns with unique
// names and known types, and rows matching the column count.
func (d *Dataset) Validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("dataset has no columns")
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c.Name == "" {
			return fmt.Errorf("column with empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column name: %s", c.Name)
		}
		seen[c.Name] = true
		if !ValidType(c.Type) {
			return fmt.Errorf("column %s: unknown type %q", c.Name, c.Type)
		}
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(d.Columns))
		}
	}
	return nil
}

// Clone returns a deep copy of the dataset. Row values are copied by
// reference; cells are never edited in place, only whole rows replaced.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Columns: make([]Column, len(d.Columns)),
		Rows:    make([][]any, len(d.Rows)),
	}
	copy(out.Columns, d.Columns)
	for i, row := range d.Rows {
		out.Rows[i] = make([]any, len(row))
		copy(out.Rows[i], row)
	}
	return out
}

// Number coerces a cell value to float64. JSON decoding yields float64
// for numbers, but int shows up from internal construction and tests.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
