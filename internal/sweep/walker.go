package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/history-sweeper/internal/limiter"
	"github.com/p-blackswan/history-sweeper/internal/retry"
	"github.com/p-blackswan/history-sweeper/internal/rules"
	"github.com/p-blackswan/history-sweeper/internal/store"
	"github.com/p-blackswan/history-sweeper/internal/transport"
)

// errStopped signals a cooperative stop request observed between
// batches. The in-flight batch has already committed when it surfaces.
var errStopped = errors.New("stop requested")

// walkState tracks one chat's traversal.
type walkState int

const (
	statePending walkState = iota
	stateWalking
	stateExhausted
)

// Walker iterates one chat's history newest to oldest, evaluates each
// message against the effective retention rule, and hands candidates
// to the scheduler. Its cursor advances only through scheduler-committed
// checkpoints, never speculatively. Chats are walked one at a time.
type Walker struct {
	tr       transport.Transport
	st       *store.Store
	policy   *rules.Policy
	sched    *Scheduler
	lim      *limiter.Limiter
	logger   zerolog.Logger
	pageSize int
	retry    retry.Config
	stopped  func() bool
}

// NewWalker creates a Walker. stopped is polled between pages and
// batches for cooperative cancellation.
func NewWalker(tr transport.Transport, st *store.Store, policy *rules.Policy, sched *Scheduler, lim *limiter.Limiter, pageSize int, retryCfg retry.Config, stopped func() bool, logger zerolog.Logger) *Walker {
	if pageSize < 1 {
		pageSize = 100
	}
	return &Walker{
		tr:       tr,
		st:       st,
		policy:   policy,
		sched:    sched,
		lim:      lim,
		logger:   logger.With().Str("component", "walker").Logger(),
		pageSize: pageSize,
		retry:    retryCfg,
		stopped:  stopped,
	}
}

// Walk drives one chat from its checkpointed position to exhaustion.
// Rule evaluation uses a reference time fixed at walk start so the
// verdict for a message cannot flip between pages of the same walk.
func (w *Walker) Walk(ctx context.Context, chat transport.Chat) error {
	state := statePending

	beforeID := 0
	if cur, ok := w.st.Cursor(chat.ID); ok {
		if cur.Done {
			w.logger.Debug().Int64("chat_id", chat.ID).Msg("chat already finished in this run")
			return nil
		}
		beforeID = cur.LastID
		w.logger.Info().Int64("chat_id", chat.ID).Int("resume_before_id", beforeID).Msg("resuming chat from checkpoint")
	}

	rule := w.policy.RuleFor(chat.ID)
	now := time.Now().UTC()
	lowest := beforeID
	w.sched.StartChat()
	state = stateWalking

	for state == stateWalking {
		if w.stopped() {
			return errStopped
		}

		var page []transport.Message
		err := retry.Do(ctx, w.retry, func(ctx context.Context) error {
			// History reads count against the same account-wide budget
			// as deletes.
			if err := w.lim.Wait(ctx); err != nil {
				return err
			}
			var listErr error
			page, listErr = w.tr.ListMessages(ctx, chat, beforeID, w.pageSize)
			return listErr
		})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			state = stateExhausted
			break
		}

		for _, m := range page {
			if err := w.sched.Observe(ctx, chat, m, rule.ShouldDelete(m, now)); err != nil {
				return err
			}
			lowest = m.ID
		}

		if beforeID != 0 && lowest >= beforeID {
			// The transport stopped making progress; treat as end of
			// history rather than spinning.
			state = stateExhausted
			break
		}
		beforeID = lowest
	}

	w.logger.Debug().Int64("chat_id", chat.ID).Str("kind", string(chat.Kind)).Msg("chat exhausted")
	return w.sched.FinishChat(ctx, chat, lowest)
}
