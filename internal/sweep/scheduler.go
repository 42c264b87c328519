package sweep

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/history-sweeper/internal/limiter"
	"github.com/p-blackswan/history-sweeper/internal/metrics"
	"github.com/p-blackswan/history-sweeper/internal/retry"
	"github.com/p-blackswan/history-sweeper/internal/store"
	"github.com/p-blackswan/history-sweeper/internal/transport"
)

// SchedulerConfig configures batching and retry behavior.
type SchedulerConfig struct {
	// BatchSize bounds one delete call; the protocol caps it at 100.
	BatchSize int
	DryRun    bool
	Retry     retry.Config
}

// Scheduler accumulates deletion candidates for the current chat into
// a rolling batch, issues delete calls one at a time, and commits the
// checkpoint only after the transport confirmed the batch outcome.
//
// Rate limits in this domain are account-wide, so a flood wait imposes
// a single global cool-down: no delete call for any chat is issued
// before it elapses.
type Scheduler struct {
	tr     transport.Transport
	st     *store.Store
	lim    *limiter.Limiter
	met    *metrics.Metrics
	logger zerolog.Logger
	cfg    SchedulerConfig
	sum    *Summary

	batch         []int
	sawCandidate  bool
	cooldownUntil time.Time
}

// NewScheduler creates a Scheduler writing outcomes into sum.
func NewScheduler(tr transport.Transport, st *store.Store, lim *limiter.Limiter, met *metrics.Metrics, cfg SchedulerConfig, sum *Summary, logger zerolog.Logger) *Scheduler {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	return &Scheduler{
		tr:     tr,
		st:     st,
		lim:    lim,
		met:    met,
		logger: logger.With().Str("component", "scheduler").Logger(),
		cfg:    cfg,
		sum:    sum,
		batch:  make([]int, 0, cfg.BatchSize),
	}
}

// StartChat resets per-chat state. Must be called before the walker
// feeds messages of a new chat.
func (s *Scheduler) StartChat() {
	s.batch = s.batch[:0]
	s.sawCandidate = false
}

// Observe records one evaluated message. Deletion candidates join the
// rolling batch; a full batch is flushed immediately, committing the
// checkpoint at the observed message.
func (s *Scheduler) Observe(ctx context.Context, chat transport.Chat, msg transport.Message, deleteIt bool) error {
	s.sum.Scanned++
	s.met.MessagesScanned.Inc()
	if !deleteIt {
		return nil
	}
	if s.cfg.DryRun {
		s.sum.WouldDelete++
		s.sawCandidate = true
		return nil
	}
	s.batch = append(s.batch, msg.ID)
	if len(s.batch) >= s.cfg.BatchSize {
		return s.flush(ctx, chat, store.Cursor{LastID: msg.ID})
	}
	return nil
}

// FinishChat flushes the remaining batch and marks the chat done.
// lowestID is the oldest message ID evaluated in this chat.
func (s *Scheduler) FinishChat(ctx context.Context, chat transport.Chat, lowestID int) error {
	if len(s.batch) > 0 {
		if err := s.flush(ctx, chat, store.Cursor{LastID: lowestID}); err != nil {
			return err
		}
	}
	if s.cfg.DryRun && s.sawCandidate {
		// Leave the checkpoint behind the would-delete messages so a
		// later real run re-evaluates them.
		return nil
	}
	return s.st.CommitCursor(chat.ID, store.Cursor{LastID: lowestID, Done: true})
}

// flush attempts to delete the current batch until the transport
// confirms an outcome, then commits cur. Transport-down failures are
// retried with capped exponential backoff; exhausting them halts the
// run without advancing the checkpoint for this batch.
func (s *Scheduler) flush(ctx context.Context, chat transport.Chat, cur store.Cursor) error {
	ids := make([]int, len(s.batch))
	copy(ids, s.batch)

	start := time.Now()
	defer func() {
		s.met.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	for {
		if err := s.waitCooldown(ctx); err != nil {
			return err
		}
		if err := s.lim.Wait(ctx); err != nil {
			return err
		}

		var res transport.DeleteResult
		err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
			var callErr error
			res, callErr = s.tr.DeleteMessages(ctx, chat, ids)
			if callErr != nil {
				s.lim.RecordFailure(0)
			}
			return callErr
		})
		if err != nil {
			return fmt.Errorf("delete batch of %d in chat %d: %w", len(ids), chat.ID, err)
		}

		switch res.Status {
		case transport.DeleteAck:
			s.lim.RecordSuccess()
			s.sum.Deleted += len(ids)
			s.met.MessagesDeleted.Add(float64(len(ids)))
			s.batch = s.batch[:0]
			s.logger.Debug().Int64("chat_id", chat.ID).Int("count", len(ids)).Int("cursor", cur.LastID).Msg("batch deleted")
			// Delete confirmed first, checkpoint second; never the
			// other way around.
			return s.st.CommitCursor(chat.ID, cur)

		case transport.DeleteRateLimited:
			wait := jittered(res.RetryAfter)
			s.cooldownUntil = time.Now().Add(wait)
			s.lim.RecordFailure(res.RetryAfter)
			s.met.FloodWaitsTotal.Inc()
			s.met.FloodWaitSeconds.Add(wait.Seconds())
			s.logger.Warn().
				Int64("chat_id", chat.ID).
				Dur("retry_after", res.RetryAfter).
				Dur("cooldown", wait).
				Msg("rate limited, suspending all deletes")
			continue // same batch, after the cool-down

		case transport.DeleteDenied:
			s.sum.recordSkipped(chat.ID, ids)
			s.met.MessagesSkipped.WithLabelValues("denied").Add(float64(len(ids)))
			s.logger.Warn().Int64("chat_id", chat.ID).Ints("ids", ids).Msg("deletion permanently denied, skipping batch")
			s.batch = s.batch[:0]
			return s.st.CommitCursor(chat.ID, cur)

		default:
			return fmt.Errorf("delete batch in chat %d: unexpected status %q", chat.ID, res.Status)
		}
	}
}

// waitCooldown blocks until the global flood-wait cool-down elapsed.
func (s *Scheduler) waitCooldown(ctx context.Context) error {
	wait := time.Until(s.cooldownUntil)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jittered stretches a server-mandated wait by up to 20%. The lower
// bound stays at the mandated duration: sleeping less would just earn
// another flood wait.
func jittered(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (1.0 + rand.Float64()*0.2))
}
