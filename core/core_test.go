package core

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIdentityScoping(t *testing.T) {
	base := context.Background()

	_, ok := UserFrom(base)
	assert.False(t, ok)

	ctx := WithUser(base, "alice")
	id, ok := UserFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", id)

	// The parent context never sees the identity.
	_, ok = UserFrom(base)
	assert.False(t, ok)
}

func TestUserIdentityEmptyIsAbsent(t *testing.T) {
	ctx := WithUser(context.Background(), "")
	_, ok := UserFrom(ctx)
	assert.False(t, ok)
}

func TestSourceCollectorConcurrentAdd(t *testing.T) {
	collector := &SourceCollector{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.Add(Source{Filename: "doc.txt", Page: 1})
		}()
	}
	wg.Wait()

	assert.Len(t, collector.Sources(), 10)
}

func TestSourceCollectorFromContext(t *testing.T) {
	_, ok := CollectorFrom(context.Background())
	assert.False(t, ok)

	collector := &SourceCollector{}
	ctx := WithSourceCollector(context.Background(), collector)
	got, ok := CollectorFrom(ctx)
	require.True(t, ok)
	assert.Same(t, collector, got)
}

func TestToolResultMessage(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "calculator"}
	msg := ToolResultMessage(call, "Result: 12")

	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "calculator", msg.ToolName)
	assert.Equal(t, "c1", msg.ToolCallID)
	assert.Equal(t, "Result: 12", msg.Content)
}
