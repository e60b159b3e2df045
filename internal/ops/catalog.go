// Package ops defines the fixed catalog of data operations and the
// invoker that executes backend-requested calls against a session's
// dataset.
package ops

import (
	"context"

	"github.com/datachat-ai/datachat/internal/dataset"
)

// Param describes one parameter in an operation's schema.
type Param struct {
	Name        string
	Type        string // "string", "number", "integer", "boolean"
	Description string
	Required    bool
	Enum        []string // closed value set, when applicable
}

// Descriptor is the immutable, serializable description of an
// operation: its name, natural-language purpose, and parameter schema.
type Descriptor struct {
	Name    string
	Purpose string
	Params  []Param
}

// Handler executes an operation against a dataset snapshot. Handlers
// must not modify ds; mutations are expressed by setting Result.Replace
// to a new dataset, which the invoker swaps into the registry.
type Handler func(ctx context.Context, ds *dataset.Dataset, args map[string]any) (*Result, error)

// Operation pairs a descriptor with its handler.
type Operation struct {
	Descriptor
	Handler Handler
}

// Catalog is the process-wide operation registry. Built once at
// startup, then shared read-only across all sessions.
type Catalog struct {
	ops   map[string]*Operation
	order []string
}

// NewCatalog builds a catalog from the given operations. Duplicate
// names panic; the catalog is assembled from literals at startup, so
// a duplicate is a programming error.
func NewCatalog(operations ...*Operation) *Catalog {
	c := &Catalog{ops: make(map[string]*Operation, len(operations))}
	for _, op := range operations {
		if _, exists := c.ops[op.Name]; exists {
			panic("duplicate operation: " + op.Name)
		}
		c.ops[op.Name] = op
		c.order = append(c.order, op.Name)
	}
	return c
}

// Get returns the named operation, or nil.
func (c *Catalog) Get(name string) *Operation {
	return c.ops[name]
}

// Names returns operation names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// ToolSpecs serializes the catalog into neutral function-call specs for
// the inference backends. The catalog itself is never exposed over the
// network; only these schemas travel.
func (c *Catalog) ToolSpecs() []map[string]any {
	specs := make([]map[string]any, 0, len(c.order))
	for _, name := range c.order {
		op := c.ops[name]
		specs = append(specs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        op.Name,
				"description": op.Purpose,
				"parameters":  paramSchema(op.Params),
			},
		})
	}
	return specs
}

func paramSchema(params []Param) map[string]any {
	properties := make(map[string]any, len(params))
	var required []string

	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
