package analyze

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/datachat-ai/datachat/internal/dataset"
	"github.com/datachat-ai/datachat/internal/ops"
)

func previewRows(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	limit := intArg(args, "limit", 10)
	if limit > 50 {
		limit = 50
	}
	if limit > len(ds.Rows) {
		limit = len(ds.Rows)
	}

	cols := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		cols[i] = c.Name
	}

	return ops.TableResult(&ops.Table{Columns: cols, Rows: ds.Rows[:limit]}), nil
}

func describe(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	table := &ops.Table{Columns: []string{"column", "count", "mean", "min", "max", "stddev"}}

	for i, col := range ds.Columns {
		if col.Type != dataset.TypeNumber {
			continue
		}
		values := columnNumbers(ds, i)
		if len(values) == 0 {
			table.Rows = append(table.Rows, []any{col.Name, 0, nil, nil, nil, nil})
			continue
		}
		m := mean(values)
		table.Rows = append(table.Rows, []any{
			col.Name,
			len(values),
			round(m),
			round(minOf(values)),
			round(maxOf(values)),
			round(stddev(values, m)),
		})
	}

	if len(table.Rows) == 0 {
		return ops.TextResult("the dataset has no numeric columns to describe"), nil
	}
	return ops.TableResult(table), nil
}

func valueCounts(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	name := args["column"].(string)
	_, idx, err := ds.Column(name)
	if err != nil {
		return nil, err
	}
	limit := intArg(args, "limit", 10)

	counts := make(map[string]int)
	order := []string{}
	for _, row := range ds.Rows {
		v := row[idx]
		if v == nil {
			continue
		}
		key := fmt.Sprintf("%v", v)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	// Most frequent first; ties keep first-seen order for determinism.
	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]] > counts[order[b]]
	})
	if len(order) > limit {
		order = order[:limit]
	}

	table := &ops.Table{Columns: []string{name, "count"}}
	for _, key := range order {
		table.Rows = append(table.Rows, []any{key, counts[key]})
	}
	return ops.TableResult(table), nil
}

func correlation(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	var numeric []int
	for i, col := range ds.Columns {
		if col.Type == dataset.TypeNumber {
			numeric = append(numeric, i)
		}
	}
	if len(numeric) < 2 {
		return nil, fmt.Errorf("correlation needs at least 2 numeric columns, dataset has %d", len(numeric))
	}

	table := &ops.Table{Columns: []string{"column"}}
	for _, i := range numeric {
		table.Columns = append(table.Columns, ds.Columns[i].Name)
	}

	for _, i := range numeric {
		row := []any{ds.Columns[i].Name}
		for _, j := range numeric {
			row = append(row, round(pearson(ds, i, j)))
		}
		table.Rows = append(table.Rows, row)
	}
	return ops.TableResult(table), nil
}

// pearson computes the correlation over rows where both cells are
// non-null numbers.
func pearson(ds *dataset.Dataset, a, b int) float64 {
	var xs, ys []float64
	for _, row := range ds.Rows {
		x, okX := dataset.Number(row[a])
		y, okY := dataset.Number(row[b])
		if okX && okY {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if len(xs) < 2 {
		return 0
	}

	mx, my := mean(xs), mean(ys)
	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// Shared numeric helpers

func columnNumbers(ds *dataset.Dataset, idx int) []float64 {
	var values []float64
	for _, row := range ds.Rows {
		if v, ok := dataset.Number(row[idx]); ok {
			values = append(values, v)
		}
	}
	return values
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// round trims float noise for presentation.
func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func intArg(args map[string]any, name string, fallback int) int {
	if v, ok := dataset.Number(args[name]); ok && v > 0 {
		return int(v)
	}
	return fallback
}
