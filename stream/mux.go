// Package stream converts engine turn events into the client-facing chunk
// protocol shared by the SSE and websocket transports.
package stream

import (
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
	"github.com/mindloop/mindloop/engine"
)

const chunkBuffer = 64

// Chunks multiplexes a turn's events into stream chunks. Internal events are
// filtered out, a generation status chunk is injected exactly once before the
// first content fragment, and the returned channel closes when the turn's
// event channel closes.
func Chunks(events <-chan engine.Event, log *zap.Logger) <-chan core.Chunk {
	out := make(chan core.Chunk, chunkBuffer)
	go func() {
		defer close(out)
		generationStarted := false
		for ev := range events {
			switch ev.Kind {
			case engine.EventMemoryCheck:
				out <- core.Chunk{
					Type:    core.ChunkStatus,
					Step:    core.StepMemory,
					Status:  "retrieving",
					Message: "Retrieving your memory...",
				}

			case engine.EventMemorySaved:
				// Bookkeeping only; clients never see the fact count.
				log.Debug("memory phase reported", zap.Int("saved_facts", ev.SavedFacts))

			case engine.EventToolStart:
				out <- core.Chunk{
					Type:   core.ChunkToolStart,
					Tool:   ev.Tool,
					Status: "Using " + ev.Tool + "...",
				}

			case engine.EventToolComplete:
				out <- core.Chunk{
					Type:    core.ChunkToolComplete,
					Tool:    ev.Tool,
					Message: "Tool execution complete",
				}

			case engine.EventContent:
				if !generationStarted {
					generationStarted = true
					out <- core.Chunk{
						Type:    core.ChunkStatus,
						Step:    core.StepGeneration,
						Status:  "started",
						Message: "Generating response...",
					}
				}
				out <- core.Chunk{Type: core.ChunkContent, Data: ev.Text}

			case engine.EventSources:
				out <- core.Chunk{Type: core.ChunkSources, Sources: ev.Sources}

			case engine.EventError:
				message := "turn failed"
				if ev.Err != nil {
					message = ev.Err.Error()
				}
				out <- core.Chunk{Type: core.ChunkError, Message: message}

			default:
				log.Warn("unhandled turn event", zap.String("kind", string(ev.Kind)))
			}
		}
	}()
	return out
}
