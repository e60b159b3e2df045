package dataset

import "fmt"

// maxSampleValues is how many distinct non-null values a column summary
// carries as examples.
const maxSampleValues = 5

// highNullRatio is the null fraction above which a missing-values issue
// is considered high severity.
const highNullRatio = 0.2

// Summary is the cached metadata for a registered dataset: shape,
// per-column profile, and derived data-quality issues. It is computed
// once on Put/Replace and shared read-only afterwards.
type Summary struct {
	RowCount    int             `json:"rowCount"`
	ColumnCount int             `json:"columnCount"`
	Columns     []ColumnSummary `json:"columns"`
	Issues      []Issue         `json:"issues,omitempty"`
}

// ColumnSummary profiles a single column.
type ColumnSummary struct {
	Name          string `json:"name"`
	Type          Type   `json:"type"`
	NullCount     int    `json:"nullCount"`
	DistinctCount int    `json:"distinctCount"`
	Samples       []any  `json:"samples,omitempty"`
}

// Issue is a data-quality finding derived from the dataset profile.
type Issue struct {
	Severity string `json:"severity"` // "high" or "low"
	Column   string `json:"column"`
	Kind     string `json:"kind"` // "missing_values", "constant_column"
	Detail   string `json:"detail"`
}

// NumericColumns returns the names of number-typed columns in order.
func (s *Summary) NumericColumns() []string {
	return s.columnsOfType(TypeNumber)
}

// CategoricalColumns returns the names of string-typed columns in order.
func (s *Summary) CategoricalColumns() []string {
	return s.columnsOfType(TypeString)
}

// DatetimeColumns returns the names of datetime-typed columns in order.
func (s *Summary) DatetimeColumns() []string {
	return s.columnsOfType(TypeDatetime)
}

func (s *Summary) columnsOfType(t Type) []string {
	var names []string
	for _, c := range s.Columns {
		if c.Type == t {
			names = append(names, c.Name)
		}
	}
	return names
}

// Summarize profiles the dataset: counts, per-column null and distinct
// counts, sample values, and data-quality issues. Deterministic for a
// given dataset, so suggestion output stays stable across calls.
func Summarize(d *Dataset) *Summary {
	sum := &Summary{
		RowCount:    len(d.Rows),
		ColumnCount: len(d.Columns),
		Columns:     make([]ColumnSummary, len(d.Columns)),
	}

	for i, col := range d.Columns {
		cs := ColumnSummary{Name: col.Name, Type: col.Type}
		distinct := make(map[string]bool)

		for _, row := range d.Rows {
			v := row[i]
			if v == nil {
				cs.NullCount++
				continue
			}
			key := fmt.Sprintf("%v", v)
			if !distinct[key] {
				distinct[key] = true
				if len(cs.Samples) < maxSampleValues {
					cs.Samples = append(cs.Samples, v)
				}
			}
		}

		cs.DistinctCount = len(distinct)
		sum.Columns[i] = cs
	}

	sum.Issues = deriveIssues(sum)
	return sum
}

// deriveIssues walks column summaries in order so issue order is stable.
func deriveIssues(sum *Summary) []Issue {
	var issues []Issue
	if sum.RowCount == 0 {
		return nil
	}

	for _, cs := range sum.Columns {
		if cs.NullCount > 0 {
			ratio := float64(cs.NullCount) / float64(sum.RowCount)
			severity := "low"
			if ratio >= highNullRatio {
				severity = "high"
			}
			issues = append(issues, Issue{
				Severity: severity,
				Column:   cs.Name,
				Kind:     "missing_values",
				Detail:   fmt.Sprintf("%d of %d values missing in %q", cs.NullCount, sum.RowCount, cs.Name),
			})
		}
		if cs.DistinctCount == 1 && cs.NullCount == 0 && sum.RowCount > 1 {
			issues = append(issues, Issue{
				Severity: "low",
				Column:   cs.Name,
				Kind:     "constant_column",
				Detail:   fmt.Sprintf("column %q has a single distinct value", cs.Name),
			})
		}
	}

	return issues
}
