// Package analyze implements the fixed catalog of data operations the
// assistant can invoke: profiling, cleaning, and chart building over
// the session's columnar dataset.
package analyze

import "github.com/datachat-ai/datachat/internal/ops"

// Catalog builds the full operation catalog. Called once at startup.
func Catalog() *ops.Catalog {
	return ops.NewCatalog(
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "preview_rows",
				Purpose: "Show the first rows of the dataset so the user can see its shape and contents.",
				Params: []ops.Param{
					{Name: "limit", Type: "integer", Description: "Maximum rows to show (default 10, max 50)"},
				},
			},
			Handler: previewRows,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "describe",
				Purpose: "Compute summary statistics (count, mean, min, max, standard deviation) for every numeric column.",
			},
			Handler: describe,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "value_counts",
				Purpose: "Count occurrences of each distinct value in a column, most frequent first.",
				Params: []ops.Param{
					{Name: "column", Type: "string", Description: "Column to count values in", Required: true},
					{Name: "limit", Type: "integer", Description: "Maximum distinct values to return (default 10)"},
				},
			},
			Handler: valueCounts,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "correlation",
				Purpose: "Compute the Pearson correlation matrix across the numeric columns.",
			},
			Handler: correlation,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "filter_rows",
				Purpose: "Keep only rows where a column matches a condition. Replaces the working dataset.",
				Params: []ops.Param{
					{Name: "column", Type: "string", Description: "Column to test", Required: true},
					{Name: "operator", Type: "string", Description: "Comparison operator", Required: true,
						Enum: []string{"eq", "neq", "gt", "gte", "lt", "lte", "contains"}},
					{Name: "value", Type: "string", Description: "Value to compare against (numbers as digits)", Required: true},
				},
			},
			Handler: filterRows,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "drop_missing",
				Purpose: "Remove rows with missing values, in one column or anywhere. Replaces the working dataset.",
				Params: []ops.Param{
					{Name: "column", Type: "string", Description: "Column to check; omit to check all columns"},
				},
			},
			Handler: dropMissing,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "fill_missing",
				Purpose: "Fill missing values in a numeric column using a strategy. Replaces the working dataset.",
				Params: []ops.Param{
					{Name: "column", Type: "string", Description: "Numeric column to fill", Required: true},
					{Name: "strategy", Type: "string", Description: "Fill strategy", Required: true,
						Enum: []string{"mean", "median", "zero"}},
				},
			},
			Handler: fillMissing,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "histogram",
				Purpose: "Build a histogram of a numeric column.",
				Params: []ops.Param{
					{Name: "column", Type: "string", Description: "Numeric column to bin", Required: true},
					{Name: "bins", Type: "integer", Description: "Number of bins (default 10)"},
				},
			},
			Handler: histogram,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "bar_chart",
				Purpose: "Build a bar chart of counts or aggregated values per category.",
				Params: []ops.Param{
					{Name: "category", Type: "string", Description: "Column holding the categories", Required: true},
					{Name: "value", Type: "string", Description: "Numeric column to aggregate; omit to count rows"},
					{Name: "aggregate", Type: "string", Description: "Aggregation over the value column",
						Enum: []string{"sum", "mean"}},
				},
			},
			Handler: barChart,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "line_chart",
				Purpose: "Build a line chart of a numeric column over an ordered x column (often a datetime).",
				Params: []ops.Param{
					{Name: "x", Type: "string", Description: "Column for the x axis", Required: true},
					{Name: "y", Type: "string", Description: "Numeric column for the y axis", Required: true},
				},
			},
			Handler: lineChart,
		},
		&ops.Operation{
			Descriptor: ops.Descriptor{
				Name:    "scatter_plot",
				Purpose: "Build a scatter plot of two numeric columns.",
				Params: []ops.Param{
					{Name: "x", Type: "string", Description: "Numeric column for the x axis", Required: true},
					{Name: "y", Type: "string", Description: "Numeric column for the y axis", Required: true},
				},
			},
			Handler: scatterPlot,
		},
	)
}
