package analyze

import (
	"context"
	"math"
	"testing"

	"github.com/datachat-ai/datachat/internal/dataset"
	"github.com/datachat-ai/datachat/internal/ops"
)

func salesDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Columns: []dataset.Column{
			{Name: "region", Type: dataset.TypeString},
			{Name: "revenue", Type: dataset.TypeNumber},
			{Name: "units", Type: dataset.TypeNumber},
		},
		Rows: [][]any{
			{"north", 10.0, 1.0},
			{"south", 20.0, 2.0},
			{"north", 30.0, 3.0},
			{"east", nil, 4.0},
		},
	}
}

func TestCatalogComplete(t *testing.T) {
	names := Catalog().Names()
	want := []string{
		"preview_rows", "describe", "value_counts", "correlation",
		"filter_rows", "drop_missing", "fill_missing",
		"histogram", "bar_chart", "line_chart", "scatter_plot",
	}
	if len(names) != len(want) {
		t.Fatalf("catalog has %d operations, want %d: %v", len(names), len(want), names)
	}
	got := make(map[string]bool, len(names))
	for _, n := range names {
		got[n] = true
	}
	for _, n := range want {
		if !got[n] {
			t.Errorf("catalog missing %s", n)
		}
	}
}

func TestPreviewRows(t *testing.T) {
	res, err := previewRows(context.Background(), salesDataset(), map[string]any{"limit": 2.0})
	if err != nil {
		t.Fatalf("previewRows: %v", err)
	}
	if res.Kind != ops.KindTable || len(res.Table.Rows) != 2 {
		t.Errorf("result = %+v, want 2-row table", res)
	}
	if res.Table.Columns[0] != "region" {
		t.Errorf("columns = %v", res.Table.Columns)
	}
}

func TestDescribe(t *testing.T) {
	res, err := describe(context.Background(), salesDataset(), nil)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(res.Table.Rows) != 2 {
		t.Fatalf("got %d rows, want one per numeric column", len(res.Table.Rows))
	}

	// revenue: 10, 20, 30 with one null skipped.
	row := res.Table.Rows[0]
	if row[0] != "revenue" || row[1] != 3 {
		t.Errorf("revenue row = %v", row)
	}
	if row[2].(float64) != 20.0 {
		t.Errorf("revenue mean = %v, want 20", row[2])
	}
}

func TestDescribeNoNumericColumns(t *testing.T) {
	ds := &dataset.Dataset{
		Columns: []dataset.Column{{Name: "name", Type: dataset.TypeString}},
		Rows:    [][]any{{"x"}},
	}
	res, err := describe(context.Background(), ds, nil)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if res.Kind != ops.KindText {
		t.Errorf("want text result for non-numeric dataset, got %v", res.Kind)
	}
}

func TestValueCounts(t *testing.T) {
	res, err := valueCounts(context.Background(), salesDataset(), map[string]any{"column": "region"})
	if err != nil {
		t.Fatalf("valueCounts: %v", err)
	}
	rows := res.Table.Rows
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0][0] != "north" || rows[0][1] != 2 {
		t.Errorf("top value = %v, want north x2", rows[0])
	}
	// Ties keep first-seen order: south before east.
	if rows[1][0] != "south" || rows[2][0] != "east" {
		t.Errorf("tie order = %v, %v; want south, east", rows[1][0], rows[2][0])
	}
}

func TestCorrelation(t *testing.T) {
	res, err := correlation(context.Background(), salesDataset(), nil)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	// revenue and units rise together on the non-null rows.
	row := res.Table.Rows[0]
	if row[0] != "revenue" {
		t.Fatalf("row order = %v", res.Table.Rows)
	}
	if self := row[1].(float64); self != 1.0 {
		t.Errorf("self-correlation = %v, want 1", self)
	}
	if cross := row[2].(float64); math.Abs(cross-1.0) > 0.0001 {
		t.Errorf("revenue/units correlation = %v, want ~1", cross)
	}
}

func TestCorrelationNeedsTwoNumeric(t *testing.T) {
	ds := &dataset.Dataset{
		Columns: []dataset.Column{{Name: "score", Type: dataset.TypeNumber}},
		Rows:    [][]any{{1.0}},
	}
	if _, err := correlation(context.Background(), ds, nil); err == nil {
		t.Fatal("want error with a single numeric column")
	}
}

func TestFilterRows(t *testing.T) {
	res, err := filterRows(context.Background(), salesDataset(), map[string]any{
		"column": "revenue", "operator": "gte", "value": "20",
	})
	if err != nil {
		t.Fatalf("filterRows: %v", err)
	}
	if res.Replace == nil {
		t.Fatal("filter must produce a replacement dataset")
	}
	if len(res.Replace.Rows) != 2 {
		t.Errorf("kept %d rows, want 2", len(res.Replace.Rows))
	}
}

func TestFilterRowsStringContains(t *testing.T) {
	res, err := filterRows(context.Background(), salesDataset(), map[string]any{
		"column": "region", "operator": "contains", "value": "NORTH",
	})
	if err != nil {
		t.Fatalf("filterRows: %v", err)
	}
	if len(res.Replace.Rows) != 2 {
		t.Errorf("kept %d rows, want 2 (case-insensitive contains)", len(res.Replace.Rows))
	}
}

func TestFilterRowsBadNumericValue(t *testing.T) {
	_, err := filterRows(context.Background(), salesDataset(), map[string]any{
		"column": "revenue", "operator": "gt", "value": "lots",
	})
	if err == nil {
		t.Fatal("want error for non-numeric comparison value")
	}
}

func TestDropMissing(t *testing.T) {
	res, err := dropMissing(context.Background(), salesDataset(), map[string]any{})
	if err != nil {
		t.Fatalf("dropMissing: %v", err)
	}
	if len(res.Replace.Rows) != 3 {
		t.Errorf("kept %d rows, want 3", len(res.Replace.Rows))
	}

	res, err = dropMissing(context.Background(), salesDataset(), map[string]any{"column": "units"})
	if err != nil {
		t.Fatalf("dropMissing(units): %v", err)
	}
	if len(res.Replace.Rows) != 4 {
		t.Errorf("kept %d rows, want all 4 (units has no nulls)", len(res.Replace.Rows))
	}
}

func TestFillMissing(t *testing.T) {
	res, err := fillMissing(context.Background(), salesDataset(), map[string]any{
		"column": "revenue", "strategy": "mean",
	})
	if err != nil {
		t.Fatalf("fillMissing: %v", err)
	}
	filled := res.Replace.Rows[3][1]
	if v, ok := dataset.Number(filled); !ok || v != 20.0 {
		t.Errorf("filled value = %v, want mean 20", filled)
	}
}

func TestFillMissingRejectsStringColumn(t *testing.T) {
	_, err := fillMissing(context.Background(), salesDataset(), map[string]any{
		"column": "region", "strategy": "zero",
	})
	if err == nil {
		t.Fatal("want error for non-numeric column")
	}
}

func TestHistogram(t *testing.T) {
	res, err := histogram(context.Background(), salesDataset(), map[string]any{
		"column": "revenue", "bins": 2.0,
	})
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	chart := res.Chart
	if chart.Kind != "histogram" || len(chart.Series) != 1 {
		t.Fatalf("chart = %+v", chart)
	}
	var total float64
	for _, c := range chart.Series[0].Values {
		total += c
	}
	if total != 3 {
		t.Errorf("binned %v values, want the 3 non-null ones", total)
	}
}

func TestBarChartCount(t *testing.T) {
	res, err := barChart(context.Background(), salesDataset(), map[string]any{"category": "region"})
	if err != nil {
		t.Fatalf("barChart: %v", err)
	}
	chart := res.Chart
	// Labels sort alphabetically: east, north, south.
	if len(chart.Labels) != 3 || chart.Labels[0] != "east" {
		t.Fatalf("labels = %v", chart.Labels)
	}
	if chart.Series[0].Values[1] != 2 {
		t.Errorf("north count = %v, want 2", chart.Series[0].Values[1])
	}
}

func TestBarChartMean(t *testing.T) {
	res, err := barChart(context.Background(), salesDataset(), map[string]any{
		"category": "region", "value": "revenue", "aggregate": "mean",
	})
	if err != nil {
		t.Fatalf("barChart: %v", err)
	}
	// north: (10+30)/2 = 20.
	if got := res.Chart.Series[0].Values[1]; got != 20 {
		t.Errorf("north mean = %v, want 20", got)
	}
}

func TestLineChart(t *testing.T) {
	res, err := lineChart(context.Background(), salesDataset(), map[string]any{
		"x": "region", "y": "revenue",
	})
	if err != nil {
		t.Fatalf("lineChart: %v", err)
	}
	if res.Chart.Kind != "line" || len(res.Chart.Labels) != 3 {
		t.Errorf("chart = %+v, want 3 plottable points", res.Chart)
	}
}

func TestScatterPlot(t *testing.T) {
	res, err := scatterPlot(context.Background(), salesDataset(), map[string]any{
		"x": "units", "y": "revenue",
	})
	if err != nil {
		t.Fatalf("scatterPlot: %v", err)
	}
	points := res.Chart.Series[0].Points
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3", len(points))
	}
	if points[0] != [2]float64{1, 10} {
		t.Errorf("first point = %v", points[0])
	}
}

func TestScatterPlotRejectsStringColumn(t *testing.T) {
	_, err := scatterPlot(context.Background(), salesDataset(), map[string]any{
		"x": "region", "y": "revenue",
	})
	if err == nil {
		t.Fatal("want error for non-numeric x column")
	}
}
