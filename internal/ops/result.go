package ops

import (
	"fmt"
	"strings"

	"github.com/datachat-ai/datachat/internal/dataset"
)

// ResultKind distinguishes the normalized result envelope shapes.
type ResultKind string

const (
	KindTable ResultKind = "table"
	KindChart ResultKind = "chart"
	KindText  ResultKind = "text"
)

// Table is a tabular result payload.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Series is one named data series in a chart.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values,omitempty"`
	// Points carries x/y pairs for scatter-style charts.
	Points [][2]float64 `json:"points,omitempty"`
}

// Chart is a renderer-agnostic chart specification.
type Chart struct {
	Kind   string   `json:"kind"` // "histogram", "bar", "line", "scatter"
	Title  string   `json:"title,omitempty"`
	XLabel string   `json:"xLabel,omitempty"`
	YLabel string   `json:"yLabel,omitempty"`
	Labels []string `json:"labels,omitempty"`
	Series []Series `json:"series"`
}

// Result is the common envelope every operation result is normalized
// into before it reaches the synthesis turn. Exactly one of Table,
// Chart, or Text carries the payload, per Kind. Replace, when set,
// is the successor dataset the invoker installs in the registry.
type Result struct {
	Kind  ResultKind `json:"kind"`
	Text  string     `json:"text,omitempty"`
	Table *Table     `json:"table,omitempty"`
	Chart *Chart     `json:"chart,omitempty"`

	Replace *dataset.Dataset `json:"-"`
}

// maxSummaryRows caps how many table rows are rendered into the
// synthesis prompt. The full table still reaches the client.
const maxSummaryRows = 20

// Summary renders the result compactly for the synthesis turn.
func (r *Result) Summary() string {
	switch r.Kind {
	case KindText:
		return r.Text
	case KindChart:
		if r.Chart == nil {
			return "(empty chart)"
		}
		return fmt.Sprintf("produced a %s chart %q with %d series", r.Chart.Kind, r.Chart.Title, len(r.Chart.Series))
	case KindTable:
		if r.Table == nil {
			return "(empty table)"
		}
		return renderTable(r.Table)
	}
	return ""
}

func renderTable(t *Table) string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Columns, " | "))
	b.WriteString("\n")

	rows := t.Rows
	truncated := false
	if len(rows) > maxSummaryRows {
		rows = rows[:maxSummaryRows]
		truncated = true
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = ""
				continue
			}
			cells[i] = fmt.Sprintf("%v", v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if truncated {
		fmt.Fprintf(&b, "... (%d more rows)\n", len(t.Rows)-maxSummaryRows)
	}
	return b.String()
}

// TextResult builds a plain-text result.
func TextResult(format string, args ...any) *Result {
	return &Result{Kind: KindText, Text: fmt.Sprintf(format, args...)}
}

// TableResult builds a table result.
func TableResult(t *Table) *Result {
	return &Result{Kind: KindTable, Table: t}
}

// ChartResult builds a chart result.
func ChartResult(c *Chart) *Result {
	return &Result{Kind: KindChart, Chart: c}
}
