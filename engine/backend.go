package engine

import (
	"context"

	"github.com/mindloop/mindloop/core"
	"github.com/mindloop/mindloop/tools"
)

// CompletionRequest is one generation round: the full transcript so far plus
// the tool definitions the model may call.
type CompletionRequest struct {
	System   string
	Messages []core.Message
	Tools    []tools.Definition

	// OnDelta receives text fragments as the backend produces them. May be
	// nil. Fragments arrive in order and concatenate to Completion.Text.
	OnDelta func(text string)
}

// CompletionKind tags a generation round's outcome.
type CompletionKind int

const (
	// CompletionFinal means the model produced its answer and the loop ends.
	CompletionFinal CompletionKind = iota

	// CompletionToolCalls means the model requested tools; the loop executes
	// them and generates again with their results.
	CompletionToolCalls
)

// Completion is the tagged outcome of one generation round. Callers switch on
// Kind: Text and Sources are meaningful for CompletionFinal, ToolCalls for
// CompletionToolCalls.
type Completion struct {
	Kind      CompletionKind
	Text      string
	Sources   []core.Source
	ToolCalls []core.ToolCall
}

// Backend produces one completion per call. Implementations must be safe for
// concurrent use across turns.
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
