package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/checkpoint"
	"github.com/mindloop/mindloop/core"
	"github.com/mindloop/mindloop/memory"
	"github.com/mindloop/mindloop/tools"
)

type scriptedBackend struct {
	mu       sync.Mutex
	rounds   []func(req CompletionRequest) (*Completion, error)
	requests []CompletionRequest
}

func (b *scriptedBackend) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if len(b.requests) > len(b.rounds) {
		return nil, fmt.Errorf("unexpected generation round %d", len(b.requests))
	}
	return b.rounds[len(b.requests)-1](req)
}

type stubExtractor struct {
	decision *memory.Decision
}

func (s *stubExtractor) Extract(context.Context, []memory.Fact, string) (*memory.Decision, error) {
	if s.decision == nil {
		return &memory.Decision{}, nil
	}
	return s.decision, nil
}

type echoTool struct {
	mu    sync.Mutex
	users []string
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "echoes input" }
func (e *echoTool) InputSchema() map[string]interface{} {
	return tools.ObjectSchema(map[string]interface{}{
		"text": tools.StringProperty("text to echo"),
	}, "text")
}
func (e *echoTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	user, _ := core.UserFrom(ctx)
	e.mu.Lock()
	e.users = append(e.users, user)
	e.mu.Unlock()
	return "echo: " + string(input), nil
}

func newTestEngine(t *testing.T, backend Backend, extractor Extractor, toolset ...tools.Tool) *Engine {
	t.Helper()
	dir := t.TempDir()

	checkpoints, err := checkpoint.Open(filepath.Join(dir, "threads.db"), zap.NewNop())
	require.NoError(t, err)
	facts, err := memory.OpenFactStore(filepath.Join(dir, "facts.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		checkpoints.Close()
		facts.Close()
	})

	eng, err := New(Config{
		Backend:     backend,
		Registry:    tools.NewRegistry(zap.NewNop(), toolset...),
		Checkpoints: checkpoints,
		Facts:       facts,
		Extractor:   extractor,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return eng
}

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func finalRound(text string, fragments ...string) func(CompletionRequest) (*Completion, error) {
	return func(req CompletionRequest) (*Completion, error) {
		for _, f := range fragments {
			if req.OnDelta != nil {
				req.OnDelta(f)
			}
		}
		return &Completion{Kind: CompletionFinal, Text: text}, nil
	}
}

func TestRunTurnFinalAnswer(t *testing.T) {
	backend := &scriptedBackend{rounds: []func(CompletionRequest) (*Completion, error){
		finalRound("Hello there!", "Hello ", "there!"),
	}}
	eng := newTestEngine(t, backend, &stubExtractor{})

	events, err := eng.RunTurn(context.Background(), "alice", "t1", "Hi")
	require.NoError(t, err)
	got := collectEvents(t, events)

	require.Len(t, got, 4)
	assert.Equal(t, EventMemoryCheck, got[0].Kind)
	assert.Equal(t, EventMemorySaved, got[1].Kind)
	assert.Equal(t, EventContent, got[2].Kind)
	assert.Equal(t, "Hello ", got[2].Text)
	assert.Equal(t, EventContent, got[3].Kind)
	assert.Equal(t, "there!", got[3].Text)

	history, err := eng.History("alice", "t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, "Hi", history[0].Content)
	assert.Equal(t, core.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello there!", history[1].Content)
}

func TestRunTurnToolRound(t *testing.T) {
	toolCall := core.ToolCall{ID: "call-1", Name: "echo", Input: json.RawMessage(`{"text":"hi"}`)}
	backend := &scriptedBackend{rounds: []func(CompletionRequest) (*Completion, error){
		func(CompletionRequest) (*Completion, error) {
			return &Completion{Kind: CompletionToolCalls, ToolCalls: []core.ToolCall{toolCall}}, nil
		},
		finalRound("Done.", "Done."),
	}}
	tool := &echoTool{}
	eng := newTestEngine(t, backend, &stubExtractor{}, tool)

	events, err := eng.RunTurn(context.Background(), "alice", "t1", "echo hi")
	require.NoError(t, err)
	got := collectEvents(t, events)

	kinds := make([]EventKind, 0, len(got))
	for _, ev := range got {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{
		EventMemoryCheck, EventMemorySaved,
		EventToolStart, EventToolComplete,
		EventContent,
	}, kinds)

	// The tool ran under the caller's identity.
	assert.Equal(t, []string{"alice"}, tool.users)

	// The second round saw the tool exchange in its transcript.
	require.Len(t, backend.requests, 2)
	second := backend.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, core.RoleAssistant, second[1].Role)
	require.Len(t, second[1].ToolCalls, 1)
	assert.Equal(t, "echo", second[1].ToolCalls[0].Name)
	assert.Equal(t, core.RoleTool, second[2].Role)
	assert.Equal(t, "call-1", second[2].ToolCallID)

	// Only the user message and final answer are committed.
	history, err := eng.History("alice", "t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Done.", history[1].Content)
}

func TestRunTurnGenerationErrorDoesNotCommit(t *testing.T) {
	backend := &scriptedBackend{rounds: []func(CompletionRequest) (*Completion, error){
		func(CompletionRequest) (*Completion, error) {
			return nil, fmt.Errorf("backend unavailable")
		},
	}}
	eng := newTestEngine(t, backend, &stubExtractor{})

	events, err := eng.RunTurn(context.Background(), "alice", "t1", "Hi")
	require.NoError(t, err)
	got := collectEvents(t, events)

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, EventError, last.Kind)
	assert.ErrorContains(t, last.Err, "backend unavailable")

	history, err := eng.History("alice", "t1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunTurnRoundLimit(t *testing.T) {
	call := core.ToolCall{ID: "c", Name: "echo", Input: json.RawMessage(`{}`)}
	loop := func(CompletionRequest) (*Completion, error) {
		return &Completion{Kind: CompletionToolCalls, ToolCalls: []core.ToolCall{call}}, nil
	}
	backend := &scriptedBackend{rounds: []func(CompletionRequest) (*Completion, error){loop, loop, loop}}

	dir := t.TempDir()
	checkpoints, err := checkpoint.Open(filepath.Join(dir, "threads.db"), zap.NewNop())
	require.NoError(t, err)
	facts, err := memory.OpenFactStore(filepath.Join(dir, "facts.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		checkpoints.Close()
		facts.Close()
	})

	eng, err := New(Config{
		Backend:     backend,
		Registry:    tools.NewRegistry(zap.NewNop(), &echoTool{}),
		Checkpoints: checkpoints,
		Facts:       facts,
		Extractor:   &stubExtractor{},
		Logger:      zap.NewNop(),
		MaxRounds:   2,
	})
	require.NoError(t, err)

	events, err := eng.RunTurn(context.Background(), "alice", "t1", "loop forever")
	require.NoError(t, err)
	got := collectEvents(t, events)

	last := got[len(got)-1]
	assert.Equal(t, EventError, last.Kind)
	assert.ErrorContains(t, last.Err, "generation rounds")
}

func TestRunTurnPersistsExtractedFacts(t *testing.T) {
	backend := &scriptedBackend{rounds: []func(CompletionRequest) (*Completion, error){
		finalRound("Nice to meet you, a vegetarian!"),
	}}
	extractor := &stubExtractor{decision: &memory.Decision{
		ShouldPersist: true,
		Facts: []memory.Candidate{
			{Text: "User is vegetarian", IsNew: true},
		},
	}}
	eng := newTestEngine(t, backend, extractor)

	events, err := eng.RunTurn(context.Background(), "alice", "t1", "I'm vegetarian")
	require.NoError(t, err)
	got := collectEvents(t, events)

	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, EventMemorySaved, got[1].Kind)
	assert.Equal(t, 1, got[1].SavedFacts)

	// The new fact reaches the same turn's system prompt.
	require.Len(t, backend.requests, 1)
	assert.Contains(t, backend.requests[0].System, "User is vegetarian")
}

func TestRunTurnEmitsCollectedSources(t *testing.T) {
	sourced := &sourcingTool{}
	backend := &scriptedBackend{rounds: []func(CompletionRequest) (*Completion, error){
		func(CompletionRequest) (*Completion, error) {
			return &Completion{Kind: CompletionToolCalls, ToolCalls: []core.ToolCall{
				{ID: "c1", Name: "cite", Input: json.RawMessage(`{}`)},
			}}, nil
		},
		finalRound("Per your notes, yes.", "Per your notes, yes."),
	}}
	eng := newTestEngine(t, backend, &stubExtractor{}, sourced)

	events, err := eng.RunTurn(context.Background(), "alice", "t1", "check my notes")
	require.NoError(t, err)
	got := collectEvents(t, events)

	last := got[len(got)-1]
	require.Equal(t, EventSources, last.Kind)
	require.Len(t, last.Sources, 1)
	assert.Equal(t, "notes.txt", last.Sources[0].Filename)

	history, err := eng.History("alice", "t1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Len(t, history[1].Citations, 1)
	assert.Equal(t, "notes.txt", history[1].Citations[0].Filename)
}

func TestConcurrentTurnsKeepIdentitiesApart(t *testing.T) {
	tool := &echoTool{}
	eng := newTestEngine(t, toolOnceBackend{}, &stubExtractor{}, tool)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			events, err := eng.RunTurn(context.Background(), user, "t1", "hi")
			if err != nil {
				errs <- err
				return
			}
			for range events {
			}
		}(user)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, tool.users, 2)
	assert.ElementsMatch(t, []string{"alice", "bob"}, tool.users)
}

func TestRunTurnCancelAbandonsTurnWithoutCommit(t *testing.T) {
	backend := &blockingBackend{started: make(chan struct{})}
	eng := newTestEngine(t, backend, &stubExtractor{})

	ctx, cancel := context.WithCancel(context.Background())
	events, err := eng.RunTurn(ctx, "alice", "t1", "hi")
	require.NoError(t, err)

	<-backend.started
	cancel()

	// The channel must close without any content or sources.
	got := collectEvents(t, events)
	for _, ev := range got {
		assert.NotEqual(t, EventContent, ev.Kind)
		assert.NotEqual(t, EventSources, ev.Kind)
	}

	history, err := eng.History("alice", "t1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunTurnValidatesInput(t *testing.T) {
	eng := newTestEngine(t, &scriptedBackend{}, &stubExtractor{})

	_, err := eng.RunTurn(context.Background(), "", "t1", "hi")
	assert.Error(t, err)
	_, err = eng.RunTurn(context.Background(), "alice", "", "hi")
	assert.Error(t, err)
	_, err = eng.RunTurn(context.Background(), "alice", "t1", "")
	assert.Error(t, err)
}

// toolOnceBackend requests one tool call per turn, then answers. Stateless,
// so concurrent turns cannot interfere through it.
type toolOnceBackend struct{}

func (toolOnceBackend) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	last := req.Messages[len(req.Messages)-1]
	if last.Role == core.RoleTool {
		return &Completion{Kind: CompletionFinal, Text: "ok"}, nil
	}
	return &Completion{Kind: CompletionToolCalls, ToolCalls: []core.ToolCall{
		{ID: "c", Name: "echo", Input: json.RawMessage(`{}`)},
	}}, nil
}

// blockingBackend holds a generation round open until the caller cancels.
type blockingBackend struct {
	started chan struct{}
}

func (b *blockingBackend) Complete(ctx context.Context, _ CompletionRequest) (*Completion, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

type sourcingTool struct{}

func (s *sourcingTool) Name() string        { return "cite" }
func (s *sourcingTool) Description() string { return "cites a document" }
func (s *sourcingTool) InputSchema() map[string]interface{} {
	return tools.ObjectSchema(map[string]interface{}{})
}
func (s *sourcingTool) Execute(ctx context.Context, _ json.RawMessage) (string, error) {
	if collector, ok := core.CollectorFrom(ctx); ok {
		collector.Add(core.Source{Filename: "notes.txt", Page: 1, Score: 0.9})
	}
	return "notes.txt (page 1): budget is 40k", nil
}
