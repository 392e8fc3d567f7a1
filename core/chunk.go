package core

// ChunkType tags one unit of the streaming delivery protocol.
type ChunkType string

const (
	ChunkStatus       ChunkType = "status"
	ChunkToolStart    ChunkType = "tool_start"
	ChunkToolComplete ChunkType = "tool_complete"
	ChunkContent      ChunkType = "content"
	ChunkSources      ChunkType = "sources"
	ChunkError        ChunkType = "error"
)

// Steps reported by status chunks.
const (
	StepMemory     = "memory"
	StepGeneration = "generation"
)

// Source is one citation attached to an assistant answer.
type Source struct {
	Filename string  `json:"filename"`
	Page     int     `json:"page,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

// Chunk is the typed transport unit delivered to the consumer. The channel
// carrying chunks is closed as the end-of-stream marker; transports add their
// own framing on top (SSE sends a [DONE] sentinel).
type Chunk struct {
	Type ChunkType `json:"type"`

	// Step and Status qualify status chunks ("memory"/"retrieving",
	// "generation"/"started").
	Step   string `json:"step,omitempty"`
	Status string `json:"status,omitempty"`

	// Message is human-readable progress text.
	Message string `json:"message,omitempty"`

	// Tool names the tool for tool_start/tool_complete chunks.
	Tool string `json:"tool,omitempty"`

	// Data carries one content fragment. Consumers concatenate content
	// fragments in arrival order to reconstruct the full answer.
	Data string `json:"data,omitempty"`

	// Sources carries citations on sources chunks.
	Sources []Source `json:"sources,omitempty"`
}
