package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gotd/td/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/p-blackswan/history-sweeper/internal/errors"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := New(dir, zerolog.Nop())
	require.NoError(t, err)
	return st, dir
}

func TestLoadSession_Missing(t *testing.T) {
	st, _ := newTestStore(t)
	_, err := st.LoadSession(context.Background())
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSession_RoundTrip(t *testing.T) {
	st, _ := newTestStore(t)
	blob := []byte(`{"dc":2,"auth_key":"deadbeef"}`)

	require.NoError(t, st.StoreSession(context.Background(), blob))
	got, err := st.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestLoadSession_CorruptIsFatalAndRemoved(t *testing.T) {
	st, dir := newTestStore(t)
	path := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := st.LoadSession(context.Background())
	assert.ErrorIs(t, err, serrors.ErrSessionCorrupt)

	// Removed so the next run can authenticate from scratch.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpenRun_Fresh(t *testing.T) {
	st, _ := newTestStore(t)
	resumed, err := st.OpenRun("run-1")
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, "run-1", st.RunID())

	_, ok := st.Cursor(42)
	assert.False(t, ok)
}

func TestOpenRun_ResumesIncomplete(t *testing.T) {
	st, dir := newTestStore(t)
	_, err := st.OpenRun("run-1")
	require.NoError(t, err)
	require.NoError(t, st.CommitCursor(42, Cursor{LastID: 900}))

	// Simulate a crash: reopen over the same data dir with a new run ID.
	st2, err := New(dir, zerolog.Nop())
	require.NoError(t, err)
	resumed, err := st2.OpenRun("run-2")
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, "run-1", st2.RunID())

	cur, ok := st2.Cursor(42)
	require.True(t, ok)
	assert.Equal(t, 900, cur.LastID)
	assert.False(t, cur.Done)
}

func TestOpenRun_DiscardsCompleted(t *testing.T) {
	st, dir := newTestStore(t)
	_, err := st.OpenRun("run-1")
	require.NoError(t, err)
	require.NoError(t, st.CommitCursor(42, Cursor{LastID: 900, Done: true}))
	require.NoError(t, st.CompleteRun())

	st2, err := New(dir, zerolog.Nop())
	require.NoError(t, err)
	resumed, err := st2.OpenRun("run-2")
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, "run-2", st2.RunID())

	_, ok := st2.Cursor(42)
	assert.False(t, ok)
}

func TestOpenRun_CorruptCheckpoint(t *testing.T) {
	st, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint.json"), []byte("garbage"), 0o600))

	_, err := st.OpenRun("run-1")
	assert.ErrorIs(t, err, serrors.ErrSessionCorrupt)
}

func TestCommitCursor_DurableOnDisk(t *testing.T) {
	st, dir := newTestStore(t)
	_, err := st.OpenRun("run-1")
	require.NoError(t, err)
	require.NoError(t, st.CommitCursor(-100, Cursor{LastID: 55}))

	data, err := os.ReadFile(filepath.Join(dir, "checkpoint.json"))
	require.NoError(t, err)

	var cp Checkpoint
	require.NoError(t, json.Unmarshal(data, &cp))
	assert.Equal(t, "run-1", cp.RunID)
	assert.Equal(t, 55, cp.Chats[-100].LastID)
	assert.False(t, cp.Chats[-100].UpdatedAt.IsZero())
}

func TestCommitCursor_BeforeOpenRun(t *testing.T) {
	st, _ := newTestStore(t)
	assert.Error(t, st.CommitCursor(1, Cursor{LastID: 1}))
	assert.Error(t, st.CompleteRun())
}
