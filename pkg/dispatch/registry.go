// Package dispatch implements the Tool Registry & Dispatcher (spec.md
// §4.12), grounded on the teacher's pkg/runtime/tool_executor.go: a
// registry over pkg/tools' flat Tool/ToolSet shapes, a confirm/deny
// policy gate backed by pkg/permissions, and a per-turn concurrent
// execution loop that guarantees exactly one tool answer per call id
// (invariant I1).
package dispatch

import (
	"context"
	"fmt"

	"github.com/forgewright/enginecore/pkg/enginerr"
	"github.com/forgewright/enginecore/pkg/tools"
)

// Registry maps tool name to its declaration and handler, built from one
// or more ToolSets (spec.md §4.12: "A registry maps tool_name -> Tool").
type Registry struct {
	byName map[string]tools.Tool
	order  []string
}

// NewRegistry builds a Registry by calling Tools(ctx) on every toolSet in
// order; a later toolSet's tool with the same name replaces an earlier
// one, matching the teacher's last-registration-wins toolMap idiom.
func NewRegistry(ctx context.Context, toolSets ...tools.ToolSet) (*Registry, error) {
	r := &Registry{byName: make(map[string]tools.Tool)}
	for _, ts := range toolSets {
		ts := ts
		declared, err := ts.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		for _, t := range declared {
			if _, exists := r.byName[t.Name]; !exists {
				r.order = append(r.order, t.Name)
			}
			r.byName[t.Name] = t
		}
	}
	return r, nil
}

// Lookup returns the declared Tool for name, if registered.
func (r *Registry) Lookup(name string) (tools.Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// All returns every registered Tool in registration order.
func (r *Registry) All() []tools.Tool {
	out := make([]tools.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// unknownTool builds the error reported when Lookup misses, so callers
// get a typed, BadRequest-mapped error rather than a silent zero value.
func unknownTool(name string) error {
	return enginerr.BadRequest(fmt.Sprintf("unknown tool %q", name), nil)
}
