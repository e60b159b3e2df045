package analyze

import (
	"context"
	"fmt"
	"sort"

	"github.com/datachat-ai/datachat/internal/dataset"
	"github.com/datachat-ai/datachat/internal/ops"
)

func histogram(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	name := args["column"].(string)
	col, idx, err := ds.Column(name)
	if err != nil {
		return nil, err
	}
	if col.Type != dataset.TypeNumber {
		return nil, fmt.Errorf("column %s is %s, histograms need a number column", name, col.Type)
	}

	values := columnNumbers(ds, idx)
	if len(values) == 0 {
		return nil, fmt.Errorf("column %s has no numeric values", name)
	}

	bins := intArg(args, "bins", 10)
	lo, hi := minOf(values), maxOf(values)
	if lo == hi {
		hi = lo + 1
	}
	width := (hi - lo) / float64(bins)

	counts := make([]float64, bins)
	labels := make([]string, bins)
	for _, v := range values {
		b := int((v - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}
	for i := range labels {
		labels[i] = fmt.Sprintf("%.4g–%.4g", lo+float64(i)*width, lo+float64(i+1)*width)
	}

	return ops.ChartResult(&ops.Chart{
		Kind:   "histogram",
		Title:  "Distribution of " + name,
		XLabel: name,
		YLabel: "count",
		Labels: labels,
		Series: []ops.Series{{Name: name, Values: counts}},
	}), nil
}

func barChart(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	catName := args["category"].(string)
	_, catIdx, err := ds.Column(catName)
	if err != nil {
		return nil, err
	}

	valIdx := -1
	agg := "count"
	if valName, ok := args["value"].(string); ok && valName != "" {
		valCol, i, err := ds.Column(valName)
		if err != nil {
			return nil, err
		}
		if valCol.Type != dataset.TypeNumber {
			return nil, fmt.Errorf("value column %s is %s, aggregation needs a number column", valName, valCol.Type)
		}
		valIdx = i
		agg = "sum"
		if a, ok := args["aggregate"].(string); ok && a != "" {
			agg = a
		}
	}

	sums := make(map[string]float64)
	counts := make(map[string]float64)
	var order []string
	for _, row := range ds.Rows {
		if row[catIdx] == nil {
			continue
		}
		key := fmt.Sprintf("%v", row[catIdx])
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
		if valIdx >= 0 {
			if v, ok := dataset.Number(row[valIdx]); ok {
				sums[key] += v
			}
		}
	}
	sort.Strings(order)

	values := make([]float64, len(order))
	for i, key := range order {
		switch agg {
		case "count":
			values[i] = counts[key]
		case "sum":
			values[i] = sums[key]
		case "mean":
			values[i] = sums[key] / counts[key]
		}
	}

	title := fmt.Sprintf("%s by %s", agg, catName)
	return ops.ChartResult(&ops.Chart{
		Kind:   "bar",
		Title:  title,
		XLabel: catName,
		YLabel: agg,
		Labels: order,
		Series: []ops.Series{{Name: agg, Values: values}},
	}), nil
}

func lineChart(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	xName := args["x"].(string)
	yName := args["y"].(string)

	_, xIdx, err := ds.Column(xName)
	if err != nil {
		return nil, err
	}
	yCol, yIdx, err := ds.Column(yName)
	if err != nil {
		return nil, err
	}
	if yCol.Type != dataset.TypeNumber {
		return nil, fmt.Errorf("y column %s is %s, line charts need a number column", yName, yCol.Type)
	}

	type point struct {
		label string
		value float64
	}
	var points []point
	for _, row := range ds.Rows {
		if row[xIdx] == nil {
			continue
		}
		v, ok := dataset.Number(row[yIdx])
		if !ok {
			continue
		}
		points = append(points, point{label: fmt.Sprintf("%v", row[xIdx]), value: v})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no plottable rows for %s over %s", yName, xName)
	}
	sort.SliceStable(points, func(a, b int) bool { return points[a].label < points[b].label })

	labels := make([]string, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		labels[i] = p.label
		values[i] = p.value
	}

	return ops.ChartResult(&ops.Chart{
		Kind:   "line",
		Title:  fmt.Sprintf("%s over %s", yName, xName),
		XLabel: xName,
		YLabel: yName,
		Labels: labels,
		Series: []ops.Series{{Name: yName, Values: values}},
	}), nil
}

func scatterPlot(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	xName := args["x"].(string)
	yName := args["y"].(string)

	xCol, xIdx, err := ds.Column(xName)
	if err != nil {
		return nil, err
	}
	yCol, yIdx, err := ds.Column(yName)
	if err != nil {
		return nil, err
	}
	if xCol.Type != dataset.TypeNumber || yCol.Type != dataset.TypeNumber {
		return nil, fmt.Errorf("scatter plots need two number columns, got %s (%s) and %s (%s)",
			xName, xCol.Type, yName, yCol.Type)
	}

	var points [][2]float64
	for _, row := range ds.Rows {
		x, okX := dataset.Number(row[xIdx])
		y, okY := dataset.Number(row[yIdx])
		if okX && okY {
			points = append(points, [2]float64{x, y})
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no rows with numeric values in both %s and %s", xName, yName)
	}

	return ops.ChartResult(&ops.Chart{
		Kind:   "scatter",
		Title:  fmt.Sprintf("%s vs %s", yName, xName),
		XLabel: xName,
		YLabel: yName,
		Series: []ops.Series{{Name: yName + " vs " + xName, Points: points}},
	}), nil
}
