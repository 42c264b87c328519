package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/history-sweeper/internal/limiter"
	"github.com/p-blackswan/history-sweeper/internal/retry"
	"github.com/p-blackswan/history-sweeper/internal/store"
	"github.com/p-blackswan/history-sweeper/internal/transport"
)

// deleteOutcome scripts one DeleteMessages response.
type deleteOutcome struct {
	res transport.DeleteResult
	err error
}

// fakeTransport is an in-memory Transport for engine tests. History is
// ordered newest to oldest; deletes actually remove messages so resume
// and idempotency behave like the real service.
type fakeTransport struct {
	mu sync.Mutex

	session transport.Session
	authErr error

	chats   []transport.Chat
	history map[int64][]transport.Message

	listCalls   int
	deleteCalls [][]int
	deleteTimes []time.Time
	outcomes    []deleteOutcome // consumed first, then default Ack
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		session: transport.Session{AccountID: 777, Username: "sweeper_test"},
		history: make(map[int64][]transport.Message),
	}
}

func (f *fakeTransport) Authenticate(_ context.Context) (transport.Session, error) {
	if f.authErr != nil {
		return transport.Session{}, f.authErr
	}
	return f.session, nil
}

func (f *fakeTransport) ListChats(_ context.Context, offset transport.ChatOffset, limit int) ([]transport.Chat, transport.ChatOffset, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := offset.ID
	if start >= len(f.chats) {
		return nil, offset, false, nil
	}
	end := start + limit
	if end > len(f.chats) {
		end = len(f.chats)
	}
	page := make([]transport.Chat, end-start)
	copy(page, f.chats[start:end])
	return page, transport.ChatOffset{ID: end}, end < len(f.chats), nil
}

func (f *fakeTransport) ListMessages(_ context.Context, chat transport.Chat, beforeID int, limit int) ([]transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	var page []transport.Message
	for _, m := range f.history[chat.ID] {
		if beforeID != 0 && m.ID >= beforeID {
			continue
		}
		page = append(page, m)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (f *fakeTransport) DeleteMessages(_ context.Context, chat transport.Chat, ids []int) (transport.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	recorded := make([]int, len(ids))
	copy(recorded, ids)
	f.deleteCalls = append(f.deleteCalls, recorded)
	f.deleteTimes = append(f.deleteTimes, time.Now())

	if len(f.outcomes) > 0 {
		out := f.outcomes[0]
		f.outcomes = f.outcomes[1:]
		if out.err != nil {
			return transport.DeleteResult{}, out.err
		}
		if out.res.Status == transport.DeleteAck {
			f.removeLocked(chat.ID, ids)
		}
		return out.res, nil
	}

	f.removeLocked(chat.ID, ids)
	return transport.DeleteResult{Status: transport.DeleteAck}, nil
}

func (f *fakeTransport) removeLocked(chatID int64, ids []int) {
	gone := make(map[int]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	kept := f.history[chatID][:0]
	for _, m := range f.history[chatID] {
		if !gone[m.ID] {
			kept = append(kept, m)
		}
	}
	f.history[chatID] = kept
}

func (f *fakeTransport) deletedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []int
	for _, call := range f.deleteCalls {
		all = append(all, call...)
	}
	return all
}

// fillHistory populates n messages with IDs n..1, newest first, all
// aged age before now.
func fillHistory(f *fakeTransport, chatID int64, n int, age time.Duration) {
	msgs := make([]transport.Message, 0, n)
	date := time.Now().UTC().Add(-age)
	for id := n; id >= 1; id-- {
		msgs = append(msgs, transport.Message{
			ID:     id,
			ChatID: chatID,
			Date:   date.Add(-time.Duration(n-id) * time.Minute),
		})
	}
	f.history[chatID] = msgs
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return st
}

// fastLimiter never throttles in tests.
func fastLimiter() *limiter.Limiter {
	return limiter.New(600000, 100000, time.Second)
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func neverStopped() bool { return false }
