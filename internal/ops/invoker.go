package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/datachat-ai/datachat/internal/dataset"
)

// ErrUnknownOperation marks a call whose name is not in the catalog.
var ErrUnknownOperation = errors.New("unknown operation")

// ArgumentError marks a call whose arguments failed schema validation.
// Param names the offending parameter.
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments: parameter %q %s", e.Param, e.Reason)
}

// Call is one backend-requested operation invocation.
type Call struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// CallResult is the per-call outcome. Exactly one of Result or Err is
// set. A failed call never aborts its siblings.
type CallResult struct {
	Name   string
	Result *Result
	Err    error
}

// Invoker executes operation batches against the session's dataset.
// Calls run strictly sequentially in the order the backend listed them:
// each call observes the dataset as left by the previous call's
// replacement, if any. The session owns exactly one mutable dataset, so
// concurrency within a batch would only manufacture races.
type Invoker struct {
	catalog  *Catalog
	registry *dataset.Registry
	logger   *slog.Logger
}

// NewInvoker creates an invoker over the given catalog and registry.
func NewInvoker(catalog *Catalog, registry *dataset.Registry, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{catalog: catalog, registry: registry, logger: logger}
}

// Run executes the batch. The returned slice is parallel to calls.
func (inv *Invoker) Run(ctx context.Context, sessionID string, calls []Call) []CallResult {
	results := make([]CallResult, 0, len(calls))

	for _, call := range calls {
		res := inv.runOne(ctx, sessionID, call)
		if res.Err != nil {
			inv.logger.Warn("operation failed",
				"session", sessionID,
				"operation", call.Name,
				"error", res.Err,
			)
		} else {
			inv.logger.Debug("operation completed", "session", sessionID, "operation", call.Name)
		}
		results = append(results, res)
	}

	return results
}

func (inv *Invoker) runOne(ctx context.Context, sessionID string, call Call) CallResult {
	op := inv.catalog.Get(call.Name)
	if op == nil {
		return CallResult{Name: call.Name, Err: fmt.Errorf("%w: %s", ErrUnknownOperation, call.Name)}
	}

	if err := validateArgs(op.Params, call.Args); err != nil {
		return CallResult{Name: call.Name, Err: err}
	}

	// Re-read per call so this call sees any replacement installed by
	// the previous one.
	ds, _, err := inv.registry.Get(sessionID)
	if err != nil {
		return CallResult{Name: call.Name, Err: err}
	}

	result, err := op.Handler(ctx, ds, call.Args)
	if err != nil {
		return CallResult{Name: call.Name, Err: err}
	}

	if result.Replace != nil {
		if _, err := inv.registry.Replace(sessionID, result.Replace); err != nil {
			return CallResult{Name: call.Name, Err: fmt.Errorf("install result dataset: %w", err)}
		}
	}

	return CallResult{Name: call.Name, Result: result}
}

// validateArgs checks required parameters, value types, and closed
// value sets. Unknown extra arguments are ignored; backends routinely
// attach stray keys.
func validateArgs(params []Param, args map[string]any) error {
	for _, p := range params {
		v, present := args[p.Name]
		if !present || v == nil {
			if p.Required {
				return &ArgumentError{Param: p.Name, Reason: "is required"}
			}
			continue
		}

		switch p.Type {
		case "string":
			s, ok := v.(string)
			if !ok {
				return &ArgumentError{Param: p.Name, Reason: "must be a string"}
			}
			if len(p.Enum) > 0 && !contains(p.Enum, s) {
				return &ArgumentError{Param: p.Name, Reason: fmt.Sprintf("must be one of %v", p.Enum)}
			}
		case "number", "integer":
			if _, ok := dataset.Number(v); !ok {
				return &ArgumentError{Param: p.Name, Reason: "must be a number"}
			}
		case "boolean":
			if _, ok := v.(bool); !ok {
				return &ArgumentError{Param: p.Name, Reason: "must be a boolean"}
			}
		}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
