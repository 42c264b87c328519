package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/history-sweeper/internal/config"
	serrors "github.com/p-blackswan/history-sweeper/internal/errors"
	"github.com/p-blackswan/history-sweeper/internal/limiter"
	"github.com/p-blackswan/history-sweeper/internal/metrics"
	"github.com/p-blackswan/history-sweeper/internal/mgmt"
	"github.com/p-blackswan/history-sweeper/internal/notify"
	"github.com/p-blackswan/history-sweeper/internal/retry"
	"github.com/p-blackswan/history-sweeper/internal/rules"
	"github.com/p-blackswan/history-sweeper/internal/store"
	"github.com/p-blackswan/history-sweeper/internal/sweep"
	"github.com/p-blackswan/history-sweeper/internal/transport"
)

// Exit codes let the container supervisor distinguish failure modes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitAuth      = 2
	exitTransport = 3
	exitCorrupt   = 4
)

// drainGrace bounds how long a stop signal waits for the in-flight
// batch before the run is cancelled hard.
const drainGrace = time.Minute

// limiterBurst is the token-bucket burst: a few back-to-back calls at
// startup are fine, the per-minute rate governs steady state.
const limiterBurst = 5

func main() {
	os.Exit(run())
}

func run() int {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return exitFailure
	}

	// Set log level
	if level, lvlErr := zerolog.ParseLevel(cfg.LogLevel); lvlErr == nil {
		zerolog.SetGlobalLevel(level)
	}

	policy, err := buildPolicy(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build retention policy")
		return exitFailure
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("data_dir", cfg.DataDir).
		Dur("older_than", policy.Default.OlderThan).
		Bool("dry_run", cfg.DryRun).
		Int("batch_size", cfg.BatchSize).
		Msg("starting history sweeper")

	st, err := store.New(cfg.DataDir, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open data dir")
		return exitFailure
	}

	met := metrics.New()
	mgmtServer := mgmt.NewServer(cfg.MgmtListenAddr, met, logger)
	go func() {
		if srvErr := mgmtServer.Start(); srvErr != nil {
			logger.Error().Err(srvErr).Msg("management server error")
		}
	}()
	defer func() {
		if shutErr := mgmtServer.Shutdown(); shutErr != nil {
			logger.Error().Err(shutErr).Msg("management server shutdown error")
		}
	}()

	// Two-stage shutdown: the first signal asks the run to drain (the
	// in-flight batch finishes committing, checked between batches);
	// a second signal, or the drain grace elapsing, cancels hard.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("stop requested, draining current batch")
		close(stop)
		select {
		case sig = <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, cancelling")
		case <-time.After(drainGrace):
			logger.Warn().Dur("grace", drainGrace).Msg("drain grace elapsed, cancelling")
		}
		cancel()
	}()

	tr := transport.NewTelegram(transport.TelegramConfig{
		APIID:       cfg.APIID,
		APIHash:     cfg.APIHash,
		Phone:       cfg.Phone,
		Password:    cfg.Password,
		LoginCode:   cfg.LoginCode,
		CallTimeout: cfg.CallTimeout,
	}, st, logger)

	lim := limiter.New(cfg.RatePerMin, limiterBurst, cfg.MaxBackoff)
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.MaxAttempts

	runner := sweep.NewRunner(sweep.RunnerConfig{
		PageSize:  cfg.PageSize,
		BatchSize: cfg.BatchSize,
		DryRun:    cfg.DryRun,
		Retry:     retryCfg,
	}, tr, st, policy, lim, met, logger)

	var sum *sweep.Summary
	err = tr.Run(ctx, func(ctx context.Context) error {
		var runErr error
		sum, runErr = runner.Run(ctx, stop)
		return runErr
	})

	if sum != nil {
		logger.Info().Bool("partial", sum.Partial).Msg(sum.String())
		if cfg.SlackEnabled() {
			notifier := notify.NewSlackNotifier(cfg.SlackToken, cfg.SlackChannel, logger)
			nctx, ncancel := context.WithTimeout(context.Background(), 10*time.Second)
			if nErr := notifier.Notify(nctx, sum); nErr != nil {
				logger.Warn().Err(nErr).Msg("summary notification failed")
			}
			ncancel()
		}
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, serrors.ErrAuthFailed) || errors.Is(err, serrors.ErrAuthChallenge):
		logger.Error().Err(err).Msg("authentication failed")
		return exitAuth
	case errors.Is(err, serrors.ErrSessionCorrupt):
		logger.Error().Err(err).Msg("session store corrupt, re-authentication required")
		return exitCorrupt
	case errors.Is(err, serrors.ErrTransportDown):
		logger.Error().Err(err).Msg("transport down after retries")
		return exitTransport
	default:
		logger.Error().Err(err).Msg("run failed")
		return exitFailure
	}
}

// buildPolicy assembles the retention policy: the YAML rules file wins
// entirely when configured, otherwise the env-derived rule applies.
func buildPolicy(cfg *config.Config) (*rules.Policy, error) {
	if cfg.RulesFile != "" {
		return rules.LoadFile(cfg.RulesFile)
	}
	ids, err := cfg.ChatIDs()
	if err != nil {
		return nil, err
	}
	return &rules.Policy{
		Default: rules.Rule{
			OlderThan:     cfg.OlderThan,
			ExcludePinned: cfg.ExcludePinned,
			ExcludeOwn:    cfg.ExcludeOwn,
			ExcludeMedia:  cfg.ExcludeMediaKinds(),
		},
		Scope: ids,
	}, nil
}
