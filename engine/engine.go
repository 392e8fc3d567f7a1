package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mindloop/mindloop/checkpoint"
	"github.com/mindloop/mindloop/core"
	"github.com/mindloop/mindloop/memory"
	"github.com/mindloop/mindloop/tools"
)

const (
	defaultMaxRounds = 10
	eventBuffer      = 64
)

// Extractor decides which new facts a user message should add to long-term
// memory. *memory.Extractor is the production implementation.
type Extractor interface {
	Extract(ctx context.Context, existing []memory.Fact, latest string) (*memory.Decision, error)
}

// Engine runs conversation turns: memory extraction, then generation rounds
// interleaved with tool execution, then an atomic checkpoint commit.
type Engine struct {
	backend     Backend
	registry    *tools.Registry
	checkpoints *checkpoint.Store
	facts       *memory.FactStore
	extractor   Extractor
	log         *zap.Logger
	maxRounds   int
}

// Config carries the engine's collaborators. All fields except MaxRounds are
// required.
type Config struct {
	Backend     Backend
	Registry    *tools.Registry
	Checkpoints *checkpoint.Store
	Facts       *memory.FactStore
	Extractor   Extractor
	Logger      *zap.Logger

	// MaxRounds bounds generation rounds per turn. Zero selects the default.
	MaxRounds int
}

// New creates an engine from cfg.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Backend == nil:
		return nil, fmt.Errorf("engine: backend is required")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("engine: tool registry is required")
	case cfg.Checkpoints == nil:
		return nil, fmt.Errorf("engine: checkpoint store is required")
	case cfg.Facts == nil:
		return nil, fmt.Errorf("engine: fact store is required")
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("engine: memory extractor is required")
	case cfg.Logger == nil:
		return nil, fmt.Errorf("engine: logger is required")
	}
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	return &Engine{
		backend:     cfg.Backend,
		registry:    cfg.Registry,
		checkpoints: cfg.Checkpoints,
		facts:       cfg.Facts,
		extractor:   cfg.Extractor,
		log:         cfg.Logger,
		maxRounds:   maxRounds,
	}, nil
}

// RunTurn starts one turn and returns its event channel. The channel closes
// when the turn finishes; failures arrive as a final EventError. The caller
// cancels the turn through ctx.
func (e *Engine) RunTurn(ctx context.Context, userID, threadID, message string) (<-chan Event, error) {
	if userID == "" {
		return nil, fmt.Errorf("engine: empty user id")
	}
	if threadID == "" {
		return nil, fmt.Errorf("engine: empty thread id")
	}
	if message == "" {
		return nil, fmt.Errorf("engine: empty message")
	}

	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		e.run(ctx, events, userID, threadID, message)
	}()
	return events, nil
}

// History returns the committed transcript of a thread. Unknown threads read
// as empty.
func (e *Engine) History(userID, threadID string) ([]core.Message, error) {
	return e.checkpoints.History(userID, threadID)
}

// Close releases the engine's stores. Safe to call more than once.
func (e *Engine) Close() error {
	cerr := e.checkpoints.Close()
	ferr := e.facts.Close()
	if cerr != nil {
		return cerr
	}
	return ferr
}

func (e *Engine) run(ctx context.Context, events chan<- Event, userID, threadID, message string) {
	ctx = core.WithUser(ctx, userID)
	collector := &core.SourceCollector{}
	ctx = core.WithSourceCollector(ctx, collector)

	log := e.log.With(zap.String("user_id", userID), zap.String("thread_id", threadID))

	if !e.emit(ctx, events, Event{Kind: EventMemoryCheck}) {
		return
	}
	facts := e.rememberPhase(ctx, events, userID, message, log)

	history, err := e.checkpoints.History(userID, threadID)
	if err != nil {
		e.fail(ctx, events, fmt.Errorf("load history: %w", err), log)
		return
	}
	if len(history) == 0 {
		log.Debug("starting new thread")
	}

	transcript := append(history, core.UserMessage(message))
	system := renderChatPrompt(facts)

	for round := 0; round < e.maxRounds; round++ {
		var fragments []string
		completion, err := e.backend.Complete(ctx, CompletionRequest{
			System:   system,
			Messages: transcript,
			Tools:    e.registry.Definitions(),
			OnDelta:  func(text string) { fragments = append(fragments, text) },
		})
		if err != nil {
			e.fail(ctx, events, err, log)
			return
		}

		switch completion.Kind {
		case CompletionToolCalls:
			transcript = append(transcript, core.Message{
				Role:      core.RoleAssistant,
				Content:   completion.Text,
				ToolCalls: completion.ToolCalls,
			})
			for _, call := range completion.ToolCalls {
				if !e.emit(ctx, events, Event{Kind: EventToolStart, Tool: call.Name}) {
					return
				}
				inv := e.registry.Dispatch(ctx, call)
				if !e.emit(ctx, events, Event{Kind: EventToolComplete, Tool: call.Name}) {
					return
				}
				transcript = append(transcript, core.ToolResultMessage(call, inv.Output))
			}

		case CompletionFinal:
			sources := append(completion.Sources, collector.Sources()...)
			committed := []core.Message{
				core.UserMessage(message),
				core.AssistantMessage(completion.Text, sources),
			}
			if err := e.checkpoints.Append(userID, threadID, committed...); err != nil {
				e.fail(ctx, events, fmt.Errorf("commit turn: %w", err), log)
				return
			}

			if len(fragments) == 0 && completion.Text != "" {
				fragments = []string{completion.Text}
			}
			for _, fragment := range fragments {
				if !e.emit(ctx, events, Event{Kind: EventContent, Text: fragment}) {
					return
				}
			}
			if len(sources) > 0 {
				if !e.emit(ctx, events, Event{Kind: EventSources, Sources: sources}) {
					return
				}
			}
			log.Info("turn finished",
				zap.Int("rounds", round+1),
				zap.Int("sources", len(sources)))
			return

		default:
			e.fail(ctx, events, fmt.Errorf("unknown completion kind %d", completion.Kind), log)
			return
		}
	}

	e.fail(ctx, events, fmt.Errorf("exceeded %d generation rounds", e.maxRounds), log)
}

// rememberPhase extracts and persists new facts from the user's message.
// Failures here never abort the turn; the chat continues with whatever facts
// are readable.
func (e *Engine) rememberPhase(ctx context.Context, events chan<- Event, userID, message string, log *zap.Logger) []memory.Fact {
	existing, err := e.facts.List(userID)
	if err != nil {
		log.Warn("fact listing failed", zap.Error(err))
		existing = nil
	}

	decision, err := e.extractor.Extract(ctx, existing, message)
	if err != nil {
		log.Warn("memory extraction failed", zap.Error(err))
		decision = &memory.Decision{}
	}

	saved := 0
	if texts := decision.NewFacts(); len(texts) > 0 {
		added, err := e.facts.Add(userID, texts...)
		if err != nil {
			log.Warn("fact persistence failed", zap.Error(err))
		} else {
			existing = append(existing, added...)
			saved = len(added)
		}
	}
	e.emit(ctx, events, Event{Kind: EventMemorySaved, SavedFacts: saved})
	log.Debug("memory phase finished",
		zap.Int("known_facts", len(existing)),
		zap.Int("saved", saved))
	return existing
}

func (e *Engine) fail(ctx context.Context, events chan<- Event, err error, log *zap.Logger) {
	log.Error("turn failed", zap.Error(err))
	e.emit(ctx, events, Event{Kind: EventError, Err: err})
}

func (e *Engine) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
