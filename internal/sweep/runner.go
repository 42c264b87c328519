// Package sweep implements the cleanup engine: chat traversal,
// retention evaluation, batched rate-limited deletion, and crash-safe
// checkpointing. One run manages exactly one account session.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/history-sweeper/internal/limiter"
	"github.com/p-blackswan/history-sweeper/internal/metrics"
	"github.com/p-blackswan/history-sweeper/internal/retry"
	"github.com/p-blackswan/history-sweeper/internal/rules"
	"github.com/p-blackswan/history-sweeper/internal/store"
	"github.com/p-blackswan/history-sweeper/internal/transport"
)

// chatPageSize is the dialog-list page size. Dialog pages are cheap;
// message pages are the expensive part of a run.
const chatPageSize = 100

// RunnerConfig configures one run.
type RunnerConfig struct {
	PageSize  int
	BatchSize int
	DryRun    bool
	Retry     retry.Config
}

// Runner composes the session store, transport, walker and scheduler
// into one run-to-completion loop. Chats are processed strictly one at
// a time, in the order the transport returns them: the account-wide
// rate limit makes parallel deletion counterproductive and would
// complicate checkpoint ordering.
type Runner struct {
	cfg    RunnerConfig
	tr     transport.Transport
	st     *store.Store
	policy *rules.Policy
	lim    *limiter.Limiter
	met    *metrics.Metrics
	logger zerolog.Logger
}

// NewRunner wires a Runner.
func NewRunner(cfg RunnerConfig, tr transport.Transport, st *store.Store, policy *rules.Policy, lim *limiter.Limiter, met *metrics.Metrics, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		tr:     tr,
		st:     st,
		policy: policy,
		lim:    lim,
		met:    met,
		logger: logger.With().Str("component", "runner").Logger(),
	}
}

// Run executes one cleanup pass. A close of stop requests cooperative
// cancellation: the in-flight batch finishes committing, then the run
// returns a partial summary with a nil error. Auth, corruption and
// retry-exhausted connectivity failures return the summary so far plus
// the fatal error.
func (r *Runner) Run(ctx context.Context, stop <-chan struct{}) (*Summary, error) {
	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    r.cfg.DryRun,
	}
	defer func() {
		sum.Duration = time.Since(sum.StartedAt)
	}()

	sess, err := r.tr.Authenticate(ctx)
	if err != nil {
		return sum, err
	}

	resumed, err := r.st.OpenRun(sum.RunID)
	if err != nil {
		return sum, err
	}
	sum.Resumed = resumed
	if resumed {
		sum.RunID = r.st.RunID()
	}

	r.logger.Info().
		Str("run_id", sum.RunID).
		Int64("account_id", sess.AccountID).
		Bool("resumed", resumed).
		Bool("dry_run", r.cfg.DryRun).
		Msg("starting cleanup run")

	stopped := func() bool {
		select {
		case <-stop:
			return true
		default:
			return false
		}
	}

	sched := NewScheduler(r.tr, r.st, r.lim, r.met, SchedulerConfig{
		BatchSize: r.cfg.BatchSize,
		DryRun:    r.cfg.DryRun,
		Retry:     r.cfg.Retry,
	}, sum, r.logger)
	walker := NewWalker(r.tr, r.st, r.policy, sched, r.lim, r.cfg.PageSize, r.cfg.Retry, stopped, r.logger)

	offset := transport.ChatOffset{}
	more := true
	for more {
		if stopped() {
			sum.Partial = true
			return sum, nil
		}

		var chats []transport.Chat
		var next transport.ChatOffset
		err := retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
			if err := r.lim.Wait(ctx); err != nil {
				return err
			}
			var listErr error
			chats, next, more, listErr = r.tr.ListChats(ctx, offset, chatPageSize)
			return listErr
		})
		if err != nil {
			return sum, err
		}
		if len(chats) == 0 {
			break
		}

		for _, chat := range chats {
			if stopped() {
				sum.Partial = true
				return sum, nil
			}
			if !r.policy.InScope(chat.ID) {
				sum.ChatsOutOfScope++
				continue
			}
			if err := walker.Walk(ctx, chat); err != nil {
				if errors.Is(err, errStopped) {
					sum.Partial = true
					return sum, nil
				}
				return sum, err
			}
			sum.ChatsWalked++
			r.met.ChatsWalked.Inc()
		}

		if next == offset {
			break
		}
		offset = next
	}

	if err := r.st.CompleteRun(); err != nil {
		return sum, err
	}

	r.logger.Info().
		Str("run_id", sum.RunID).
		Int("chats_walked", sum.ChatsWalked).
		Int("scanned", sum.Scanned).
		Int("deleted", sum.Deleted).
		Int("would_delete", sum.WouldDelete).
		Int("skipped_permanently", sum.SkippedPermanently).
		Msg("cleanup run complete")
	return sum, nil
}
