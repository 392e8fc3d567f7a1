package engine

import "github.com/mindloop/mindloop/core"

// EventKind tags what happened inside a running turn.
type EventKind string

const (
	// EventMemoryCheck marks the start of the memory phase.
	EventMemoryCheck EventKind = "memory_check"

	// EventMemorySaved reports how many facts the memory phase persisted.
	// Internal bookkeeping; the stream layer does not forward it to clients.
	EventMemorySaved EventKind = "memory_saved"

	// EventToolStart marks a tool beginning execution.
	EventToolStart EventKind = "tool_start"

	// EventToolComplete marks a tool finishing, successfully or not.
	EventToolComplete EventKind = "tool_complete"

	// EventContent carries one fragment of the final answer.
	EventContent EventKind = "content"

	// EventSources carries the documents cited by the final answer.
	EventSources EventKind = "sources"

	// EventError reports a fatal turn failure. Always the last event.
	EventError EventKind = "error"
)

// Event is one observation from a running turn. The event channel closes when
// the turn is over; closure is the only end-of-turn signal.
type Event struct {
	Kind       EventKind
	Tool       string
	Text       string
	SavedFacts int
	Sources    []core.Source
	Err        error
}
