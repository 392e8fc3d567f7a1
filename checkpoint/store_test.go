package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindloop/mindloop/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.bolt"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndHistory(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Append("u1", "t1",
		core.UserMessage("hello"),
		core.AssistantMessage("hi there", nil),
	))
	require.NoError(t, s.Append("u1", "t1",
		core.UserMessage("how are you?"),
		core.AssistantMessage("fine", nil),
	))

	history, err := s.History("u1", "t1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, core.RoleAssistant, history[3].Role)
	assert.Equal(t, "fine", history[3].Content)
}

func TestHistoryUnknownThreadIsEmpty(t *testing.T) {
	s := openTestStore(t)

	history, err := s.History("u1", "missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}

// Thread ids may collide across users; the composite key must keep them apart.
func TestUserIsolation(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Append("alice", "t1", core.UserMessage("alice's secret")))
	require.NoError(t, s.Append("bob", "t1", core.UserMessage("bob's note")))

	aliceHist, err := s.History("alice", "t1")
	require.NoError(t, err)
	bobHist, err := s.History("bob", "t1")
	require.NoError(t, err)

	require.Len(t, aliceHist, 1)
	require.Len(t, bobHist, 1)
	assert.Equal(t, "alice's secret", aliceHist[0].Content)
	assert.Equal(t, "bob's note", bobHist[0].Content)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.bolt"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
