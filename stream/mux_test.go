package stream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
	"github.com/mindloop/mindloop/engine"
)

func runMux(t *testing.T, events ...engine.Event) []core.Chunk {
	t.Helper()
	in := make(chan engine.Event, len(events))
	for _, ev := range events {
		in <- ev
	}
	close(in)

	var out []core.Chunk
	for chunk := range Chunks(in, zap.NewNop()) {
		out = append(out, chunk)
	}
	return out
}

func TestChunksFullTurn(t *testing.T) {
	chunks := runMux(t,
		engine.Event{Kind: engine.EventMemoryCheck},
		engine.Event{Kind: engine.EventMemorySaved, SavedFacts: 2},
		engine.Event{Kind: engine.EventToolStart, Tool: "calculator"},
		engine.Event{Kind: engine.EventToolComplete, Tool: "calculator"},
		engine.Event{Kind: engine.EventContent, Text: "The answer "},
		engine.Event{Kind: engine.EventContent, Text: "is 12."},
	)

	types := make([]core.ChunkType, 0, len(chunks))
	for _, c := range chunks {
		types = append(types, c.Type)
	}
	assert.Equal(t, []core.ChunkType{
		core.ChunkStatus,
		core.ChunkToolStart,
		core.ChunkToolComplete,
		core.ChunkStatus,
		core.ChunkContent,
		core.ChunkContent,
	}, types)

	assert.Equal(t, core.StepMemory, chunks[0].Step)
	assert.Equal(t, "calculator", chunks[1].Tool)
	assert.Equal(t, "Using calculator...", chunks[1].Status)
	assert.Equal(t, core.StepGeneration, chunks[3].Step)
	assert.Equal(t, "The answer ", chunks[4].Data)
}

func TestChunksGenerationStatusInjectedOnce(t *testing.T) {
	chunks := runMux(t,
		engine.Event{Kind: engine.EventContent, Text: "a"},
		engine.Event{Kind: engine.EventContent, Text: "b"},
		engine.Event{Kind: engine.EventContent, Text: "c"},
	)

	statuses := 0
	for _, c := range chunks {
		if c.Type == core.ChunkStatus && c.Step == core.StepGeneration {
			statuses++
		}
	}
	assert.Equal(t, 1, statuses)
	require.Len(t, chunks, 4)
	assert.Equal(t, core.ChunkStatus, chunks[0].Type)
}

func TestChunksFiltersMemoryInternals(t *testing.T) {
	chunks := runMux(t,
		engine.Event{Kind: engine.EventMemorySaved, SavedFacts: 3},
	)
	assert.Empty(t, chunks)
}

func TestChunksSources(t *testing.T) {
	chunks := runMux(t,
		engine.Event{Kind: engine.EventContent, Text: "see notes"},
		engine.Event{Kind: engine.EventSources, Sources: []core.Source{
			{Filename: "notes.txt", Page: 2, Score: 0.8},
		}},
	)

	last := chunks[len(chunks)-1]
	require.Equal(t, core.ChunkSources, last.Type)
	require.Len(t, last.Sources, 1)
	assert.Equal(t, "notes.txt", last.Sources[0].Filename)
}

func TestChunksError(t *testing.T) {
	chunks := runMux(t,
		engine.Event{Kind: engine.EventError, Err: fmt.Errorf("backend unavailable")},
	)

	require.Len(t, chunks, 1)
	assert.Equal(t, core.ChunkError, chunks[0].Type)
	assert.Equal(t, "backend unavailable", chunks[0].Message)
}
