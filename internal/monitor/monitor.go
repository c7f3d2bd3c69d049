// Package monitor runs the commit watch loop: detect new revisions by poll
// or push, drive each through review and notification on a worker pool, and
// retry failures on later cycles.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dshills/vigil/internal/config"
	"github.com/dshills/vigil/internal/ledger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const cleanupInterval = 24 * time.Hour

// Monitor owns the scheduling loop and the optional push listener.
type Monitor struct {
	cfg        config.Config
	ledger     *ledger.Ledger
	source     Source
	notifier   Notifier
	dispatcher *Dispatcher
	log        *zap.Logger

	lastCleanup  time.Time
	pollDegraded bool
}

// New assembles a monitor over the given collaborators.
func New(cfg config.Config, led *ledger.Ledger, source Source, reviewer Reviewer, notifier Notifier, log *zap.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		ledger:   led,
		source:   source,
		notifier: notifier,
		dispatcher: NewDispatcher(led, source, reviewer, notifier,
			cfg.Runtime.Workers, cfg.Runtime.QueueSize, cfg.Runtime.ShutdownGrace, log),
		log:         log,
		lastCleanup: time.Now(),
	}
}

// Run blocks until ctx is cancelled, then drains in-flight work within the
// shutdown grace period.
func (m *Monitor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.loop(gctx)
		return nil
	})

	if m.cfg.Webhook.Enabled {
		srv := &http.Server{
			Addr:              m.cfg.Webhook.Addr,
			Handler:           newWebhookMux(m.dispatcher, m.log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			m.log.Info("webhook listener starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("webhook listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if stopErr := m.dispatcher.Stop(); stopErr != nil {
		m.log.Warn("dispatcher shutdown", zap.Error(stopErr))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop runs one cycle immediately, then on every tick of the check interval.
func (m *Monitor) loop(ctx context.Context) {
	interval := m.cfg.SVN.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

// cycle is one scheduling pass: pick up new commits, resume interrupted
// records, retry failures, and periodically compact the ledger.
func (m *Monitor) cycle(ctx context.Context) {
	m.checkNew(ctx)
	m.processPending(ctx)
	m.retryFailed(ctx)
	m.cleanup()
}

func (m *Monitor) checkNew(ctx context.Context) {
	commits, err := m.source.ListRecent(ctx, m.cfg.SVN.PollLimit)
	if err != nil {
		m.log.Error("listing recent commits", zap.Error(err))
		if !m.pollDegraded {
			m.pollDegraded = true
			if notifyErr := m.notifier.SendError(ctx, fmt.Sprintf("Repository polling failed: %v", err)); notifyErr != nil {
				m.log.Warn("error notification failed", zap.Error(notifyErr))
			}
		}
		return
	}
	m.pollDegraded = false

	for i := range commits {
		commit := commits[i]
		if _, known := m.ledger.StatusOf(commit.Revision); known {
			continue
		}
		if !m.ledger.RecordDetected(commit.Revision, commit.Author, commit.Message) {
			continue
		}
		m.log.Info("new commit detected",
			zap.String("revision", commit.Revision), zap.String("author", commit.Author))
		if err := m.dispatcher.Submit(ctx, commit.Revision, &commit); err != nil {
			m.log.Warn("submitting commit", zap.String("revision", commit.Revision), zap.Error(err))
			return
		}
	}
}

// processPending resumes records stranded in the detected state, typically
// after a restart. The state gate in the workers makes double submission of
// a freshly detected commit harmless.
func (m *Monitor) processPending(ctx context.Context) {
	for _, rec := range m.ledger.Pending() {
		if err := m.dispatcher.Submit(ctx, rec.Revision, nil); err != nil {
			m.log.Warn("submitting pending commit", zap.String("revision", rec.Revision), zap.Error(err))
			return
		}
	}
}

func (m *Monitor) retryFailed(ctx context.Context) {
	for _, rec := range m.ledger.RetryEligible(m.cfg.SVN.MaxRetryAttempt) {
		m.log.Info("retrying failed commit",
			zap.String("revision", rec.Revision), zap.Int("attempts", rec.ReviewAttempts))
		if err := m.dispatcher.Submit(ctx, rec.Revision, nil); err != nil {
			m.log.Warn("submitting retry", zap.String("revision", rec.Revision), zap.Error(err))
			return
		}
	}
}

func (m *Monitor) cleanup() {
	if time.Since(m.lastCleanup) < cleanupInterval {
		return
	}
	m.lastCleanup = time.Now()
	if removed := m.ledger.Cleanup(m.cfg.Ledger.RetentionDays); removed > 0 {
		m.log.Info("ledger cleanup", zap.Int("removed", removed))
	}
}
