package analyze

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/datachat-ai/datachat/internal/dataset"
	"github.com/datachat-ai/datachat/internal/ops"
)

func filterRows(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	name := args["column"].(string)
	operator := args["operator"].(string)
	value := args["value"].(string)

	col, idx, err := ds.Column(name)
	if err != nil {
		return nil, err
	}

	match, err := buildPredicate(col.Type, operator, value)
	if err != nil {
		return nil, err
	}

	next := &dataset.Dataset{Columns: append([]dataset.Column(nil), ds.Columns...)}
	for _, row := range ds.Rows {
		if row[idx] != nil && match(row[idx]) {
			next.Rows = append(next.Rows, row)
		}
	}

	result := ops.TextResult("kept %d of %d rows where %s %s %s", len(next.Rows), len(ds.Rows), name, operator, value)
	result.Replace = next
	return result, nil
}

// buildPredicate compiles the comparison once so the row loop stays
// allocation-free. Numeric columns compare numerically; everything
// else compares by string form.
func buildPredicate(t dataset.Type, operator, value string) (func(any) bool, error) {
	if t == dataset.TypeNumber && operator != "contains" {
		target, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not numeric but column is", value)
		}
		return func(v any) bool {
			n, ok := dataset.Number(v)
			if !ok {
				return false
			}
			switch operator {
			case "eq":
				return n == target
			case "neq":
				return n != target
			case "gt":
				return n > target
			case "gte":
				return n >= target
			case "lt":
				return n < target
			case "lte":
				return n <= target
			}
			return false
		}, nil
	}

	return func(v any) bool {
		s := fmt.Sprintf("%v", v)
		switch operator {
		case "eq":
			return s == value
		case "neq":
			return s != value
		case "contains":
			return strings.Contains(strings.ToLower(s), strings.ToLower(value))
		case "gt":
			return s > value
		case "gte":
			return s >= value
		case "lt":
			return s < value
		case "lte":
			return s <= value
		}
		return false
	}, nil
}

func dropMissing(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	idx := -1
	if name, ok := args["column"].(string); ok && name != "" {
		var err error
		if _, idx, err = ds.Column(name); err != nil {
			return nil, err
		}
	}

	next := &dataset.Dataset{Columns: append([]dataset.Column(nil), ds.Columns...)}
	for _, row := range ds.Rows {
		if rowHasNull(row, idx) {
			continue
		}
		next.Rows = append(next.Rows, row)
	}

	dropped := len(ds.Rows) - len(next.Rows)
	result := ops.TextResult("dropped %d rows with missing values, %d rows remain", dropped, len(next.Rows))
	result.Replace = next
	return result, nil
}

func rowHasNull(row []any, idx int) bool {
	if idx >= 0 {
		return row[idx] == nil
	}
	for _, v := range row {
		if v == nil {
			return true
		}
	}
	return false
}

func fillMissing(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*ops.Result, error) {
	name := args["column"].(string)
	strategy := args["strategy"].(string)

	col, idx, err := ds.Column(name)
	if err != nil {
		return nil, err
	}
	if col.Type != dataset.TypeNumber {
		return nil, fmt.Errorf("column %s is %s, fill strategies need a number column", name, col.Type)
	}

	var fill float64
	switch strategy {
	case "zero":
		fill = 0
	case "mean", "median":
		values := columnNumbers(ds, idx)
		if len(values) == 0 {
			return nil, fmt.Errorf("column %s has no values to derive a %s from", name, strategy)
		}
		if strategy == "mean" {
			fill = mean(values)
		} else {
			fill = median(values)
		}
	}

	next := ds.Clone()
	filled := 0
	for _, row := range next.Rows {
		if row[idx] == nil {
			row[idx] = fill
			filled++
		}
	}

	result := ops.TextResult("filled %d missing values in %s with the %s (%g)", filled, name, strategy, round(fill))
	result.Replace = next
	return result, nil
}
