// Package store persists the account session blob and the run
// checkpoint on the data volume. Both files are written atomically
// (temp file + fsync + rename) so a crash never leaves a torn state,
// and the checkpoint for a chat never advances past a message whose
// outcome was not confirmed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/rs/zerolog"

	serrors "github.com/p-blackswan/history-sweeper/internal/errors"
)

const (
	sessionFile    = "session.json"
	checkpointFile = "checkpoint.json"
)

// Cursor marks how far cleanup progressed in one chat: the oldest
// message ID whose outcome (deleted or kept) is confirmed.
type Cursor struct {
	LastID    int       `json:"last_id"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Checkpoint is the persisted progress of one run.
type Checkpoint struct {
	RunID        string           `json:"run_id"`
	RunStartedAt time.Time        `json:"run_started_at"`
	Completed    bool             `json:"completed"`
	Chats        map[int64]Cursor `json:"chats"`
}

// Store owns the session and checkpoint files under a data directory.
// Single-writer: the run controller is the only mutator.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu sync.Mutex
	cp *Checkpoint
}

// New opens (creating if needed) the data directory.
func New(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir %s: %w", dir, err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// LoadSession implements the protocol client's session storage. A
// missing file is "no session yet"; an undecodable one is corruption,
// which is fatal for this run and removed so the next run can
// re-authenticate from scratch.
func (s *Store) LoadSession(_ context.Context) ([]byte, error) {
	path := filepath.Join(s.dir, sessionFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read session: %w", err)
	}
	if !json.Valid(data) {
		s.logger.Error().Str("path", path).Msg("session blob is not valid JSON, discarding")
		_ = os.Remove(path)
		return nil, fmt.Errorf("store: session blob undecodable: %w", serrors.ErrSessionCorrupt)
	}
	return data, nil
}

// StoreSession implements the protocol client's session storage.
func (s *Store) StoreSession(_ context.Context, data []byte) error {
	if err := writeFileAtomic(filepath.Join(s.dir, sessionFile), data, 0o600); err != nil {
		return fmt.Errorf("store: write session: %w", err)
	}
	return nil
}

// OpenRun loads the checkpoint and decides whether this run resumes an
// interrupted one. A checkpoint from a completed run is discarded; a
// corrupt one is fatal. Returns true when resuming.
func (s *Store) OpenRun(runID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, checkpointFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fresh run
	case err != nil:
		return false, fmt.Errorf("store: read checkpoint: %w", err)
	default:
		var cp Checkpoint
		if jsonErr := json.Unmarshal(data, &cp); jsonErr != nil {
			return false, fmt.Errorf("store: checkpoint undecodable: %w", serrors.ErrSessionCorrupt)
		}
		if !cp.Completed {
			if cp.Chats == nil {
				cp.Chats = make(map[int64]Cursor)
			}
			s.cp = &cp
			s.logger.Info().
				Str("run_id", cp.RunID).
				Time("run_started_at", cp.RunStartedAt).
				Int("chats", len(cp.Chats)).
				Msg("resuming interrupted run")
			return true, nil
		}
	}

	s.cp = &Checkpoint{
		RunID:        runID,
		RunStartedAt: time.Now().UTC(),
		Chats:        make(map[int64]Cursor),
	}
	return false, s.flushLocked()
}

// Cursor returns the checkpointed position for a chat, if any.
func (s *Store) Cursor(chatID int64) (Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp == nil {
		return Cursor{}, false
	}
	cur, ok := s.cp.Chats[chatID]
	return cur, ok
}

// CommitCursor durably records progress for a chat. Called only after
// the transport confirmed the outcome of everything up to the cursor.
func (s *Store) CommitCursor(chatID int64, cur Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp == nil {
		return fmt.Errorf("store: commit before OpenRun")
	}
	if cur.UpdatedAt.IsZero() {
		cur.UpdatedAt = time.Now().UTC()
	}
	s.cp.Chats[chatID] = cur
	return s.flushLocked()
}

// CompleteRun marks the run finished so the next start begins fresh.
func (s *Store) CompleteRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp == nil {
		return fmt.Errorf("store: complete before OpenRun")
	}
	s.cp.Completed = true
	return s.flushLocked()
}

// RunID returns the identifier of the open run.
func (s *Store) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cp == nil {
		return ""
	}
	return s.cp.RunID
}

func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.cp, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode checkpoint: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, checkpointFile), data, 0o600); err != nil {
		return fmt.Errorf("store: write checkpoint: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the same directory,
// fsyncs it, then renames over the target.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
