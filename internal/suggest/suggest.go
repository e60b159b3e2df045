// Package suggest derives ranked next-step prompts from dataset state
// and the latest result. It is a pure function of its inputs: identical
// inputs always produce identical ordered output, so the client can
// cache or diff suggestion lists safely.
package suggest

import (
	"fmt"

	"github.com/datachat-ai/datachat/internal/dataset"
)

// Action is one suggested next step: a short label for a button and the
// full prompt to submit when chosen.
type Action struct {
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

const (
	minActions = 3
	maxActions = 5
)

// analysisClass is a family of analyses offered when the dataset's
// column-type mix supports it and the user hasn't just run it.
type analysisClass struct {
	op        string
	available func(*dataset.Summary) bool
	action    func(*dataset.Summary) Action
}

// Ordered by relevance; earlier classes are offered first.
var classes = []analysisClass{
	{
		op:        "describe",
		available: func(s *dataset.Summary) bool { return len(s.NumericColumns()) > 0 },
		action: func(s *dataset.Summary) Action {
			return Action{Label: "Summary statistics", Prompt: "Show summary statistics for the numeric columns"}
		},
	},
	{
		op:        "correlation",
		available: func(s *dataset.Summary) bool { return len(s.NumericColumns()) >= 2 },
		action: func(s *dataset.Summary) Action {
			return Action{Label: "Correlations", Prompt: "Which numeric columns are correlated with each other?"}
		},
	},
	{
		op:        "value_counts",
		available: func(s *dataset.Summary) bool { return len(s.CategoricalColumns()) > 0 },
		action: func(s *dataset.Summary) Action {
			col := s.CategoricalColumns()[0]
			return Action{
				Label:  "Top values",
				Prompt: fmt.Sprintf("What are the most common values of %s?", col),
			}
		},
	},
	{
		op: "line_chart",
		available: func(s *dataset.Summary) bool {
			return len(s.DatetimeColumns()) > 0 && len(s.NumericColumns()) > 0
		},
		action: func(s *dataset.Summary) Action {
			return Action{
				Label:  "Trend over time",
				Prompt: fmt.Sprintf("Plot %s over %s", s.NumericColumns()[0], s.DatetimeColumns()[0]),
			}
		},
	},
	{
		op:        "histogram",
		available: func(s *dataset.Summary) bool { return len(s.NumericColumns()) > 0 },
		action: func(s *dataset.Summary) Action {
			return Action{
				Label:  "Distribution",
				Prompt: fmt.Sprintf("Show the distribution of %s", s.NumericColumns()[0]),
			}
		},
	},
}

// Suggest returns 3-5 ranked next-step actions. Priority order: fix the
// highest-severity open data-quality issue, then the most relevant
// analysis classes not just performed (lastOps are the operation names
// invoked by the latest exchange), then export as the terminal entry.
func Suggest(sum *dataset.Summary, lastOps []string) []Action {
	var actions []Action

	if issue := firstHighIssue(sum); issue != nil {
		actions = append(actions, issueAction(*issue))
	}

	seen := make(map[string]bool, len(lastOps))
	for _, op := range lastOps {
		seen[op] = true
	}

	for _, class := range classes {
		if len(actions) >= maxActions-1 {
			break
		}
		if seen[class.op] || !class.available(sum) {
			continue
		}
		actions = append(actions, class.action(sum))
	}

	// Pad if the dataset supports little else, so the user always gets
	// at least three choices.
	fillers := []Action{
		{Label: "Preview rows", Prompt: "Show me the first rows of the dataset"},
		{Label: "Column overview", Prompt: "What columns does this dataset have and what do they contain?"},
	}
	for _, filler := range fillers {
		if len(actions) >= minActions-1 {
			break
		}
		actions = append(actions, filler)
	}

	actions = append(actions, Action{Label: "Export data", Prompt: "Export the current dataset as CSV"})
	return actions
}

func firstHighIssue(sum *dataset.Summary) *dataset.Issue {
	for i := range sum.Issues {
		if sum.Issues[i].Severity == "high" {
			return &sum.Issues[i]
		}
	}
	return nil
}

func issueAction(issue dataset.Issue) Action {
	switch issue.Kind {
	case "missing_values":
		return Action{
			Label:  "Fix missing values",
			Prompt: fmt.Sprintf("Handle the missing values in %s", issue.Column),
		}
	default:
		return Action{
			Label:  "Review data quality",
			Prompt: fmt.Sprintf("Tell me about the data quality problem with %s", issue.Column),
		}
	}
}
