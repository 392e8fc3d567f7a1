// Package tools is the polymorphic tool execution layer: calculator, web
// search, page fetch, and document retrieval behind one interface. A tool
// failure is never fatal to a turn; Dispatch converts it into a text result
// the model can react to.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
)

// Tool is one callable the generation backend may request. Tools needing the
// acting user's identity read it from the context via core.UserFrom; it never
// appears in the public input schema.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}

	// Execute runs the tool. A returned error marks the invocation errored;
	// Dispatch converts it to a text result, it does not abort the turn.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Definition is the declarative shape handed to the generation backend.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Registry holds the tool set for an engine, keyed by name.
type Registry struct {
	tools map[string]Tool
	order []string
	log   *zap.Logger
}

// NewRegistry creates a registry with the given tools, preserving order.
func NewRegistry(log *zap.Logger, tools ...Tool) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{tools: make(map[string]Tool), log: log}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns backend-facing definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// Dispatch executes one requested tool call and always produces a completed
// or errored invocation, never a panic or a propagated error.
func (r *Registry) Dispatch(ctx context.Context, call core.ToolCall) core.ToolInvocation {
	inv := core.ToolInvocation{
		Tool:   call.Name,
		Input:  call.Input,
		Status: core.InvocationStarted,
	}

	tool, ok := r.tools[call.Name]
	if !ok {
		inv.Status = core.InvocationErrored
		inv.Output = fmt.Sprintf("Error: unknown tool %q", call.Name)
		r.log.Warn("unknown tool requested", zap.String("tool", call.Name))
		return inv
	}

	output, err := tool.Execute(ctx, call.Input)
	if err != nil {
		inv.Status = core.InvocationErrored
		inv.Output = fmt.Sprintf("Error: %s", err.Error())
		r.log.Warn("tool execution failed",
			zap.String("tool", call.Name),
			zap.Error(err))
		return inv
	}

	inv.Status = core.InvocationCompleted
	inv.Output = output
	return inv
}
