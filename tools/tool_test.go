package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
)

type fakeTool struct {
	name string
	out  string
	err  error
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake" }
func (f *fakeTool) InputSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{})
}
func (f *fakeTool) Execute(context.Context, json.RawMessage) (string, error) {
	return f.out, f.err
}

func TestRegistryDefinitionsKeepOrder(t *testing.T) {
	reg := NewRegistry(zap.NewNop(),
		&fakeTool{name: "beta"},
		&fakeTool{name: "alpha"},
		&fakeTool{name: "gamma"},
	)

	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "beta", defs[0].Name)
	assert.Equal(t, "alpha", defs[1].Name)
	assert.Equal(t, "gamma", defs[2].Name)
}

func TestDispatchCompleted(t *testing.T) {
	reg := NewRegistry(zap.NewNop(), &fakeTool{name: "echo", out: "hello"})

	inv := reg.Dispatch(context.Background(), core.ToolCall{
		ID: "call-1", Name: "echo", Input: json.RawMessage(`{}`),
	})
	assert.Equal(t, core.InvocationCompleted, inv.Status)
	assert.Equal(t, "hello", inv.Output)
}

func TestDispatchToolErrorBecomesText(t *testing.T) {
	reg := NewRegistry(zap.NewNop(),
		&fakeTool{name: "boom", err: fmt.Errorf("division by zero")})

	inv := reg.Dispatch(context.Background(), core.ToolCall{
		ID: "call-1", Name: "boom", Input: json.RawMessage(`{}`),
	})
	assert.Equal(t, core.InvocationErrored, inv.Status)
	assert.Equal(t, "Error: division by zero", inv.Output)
}

func TestDispatchUnknownTool(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	inv := reg.Dispatch(context.Background(), core.ToolCall{
		ID: "call-1", Name: "ghost", Input: json.RawMessage(`{}`),
	})
	assert.Equal(t, core.InvocationErrored, inv.Status)
	assert.Contains(t, inv.Output, `unknown tool "ghost"`)
}
