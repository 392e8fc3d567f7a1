package core

import (
	"context"
	"sync"
)

// SourceCollector gathers the document passages cited during one turn.
// Tools append to it through the request context; the turn runner drains it
// when the final answer is produced. Safe for concurrent use.
type SourceCollector struct {
	mu      sync.Mutex
	sources []Source
}

// Add records cited sources in arrival order.
func (c *SourceCollector) Add(sources ...Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, sources...)
}

// Sources returns a copy of everything collected so far.
func (c *SourceCollector) Sources() []Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

type collectorKey struct{}

// WithSourceCollector attaches a collector to ctx for the duration of a turn.
func WithSourceCollector(ctx context.Context, c *SourceCollector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// CollectorFrom returns the turn's source collector, if one is attached.
func CollectorFrom(ctx context.Context) (*SourceCollector, bool) {
	c, ok := ctx.Value(collectorKey{}).(*SourceCollector)
	return c, ok && c != nil
}
