package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/vigil/internal/ledger"
	"github.com/dshills/vigil/internal/review"
	"github.com/dshills/vigil/internal/svn"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source is the commit-source collaborator boundary.
type Source interface {
	ListRecent(ctx context.Context, limit int) ([]svn.Commit, error)
	Lookup(ctx context.Context, revision string) (*svn.Commit, error)
	Diff(ctx context.Context, revision string) (string, error)
}

// Reviewer is the review-adapter boundary.
type Reviewer interface {
	Review(ctx context.Context, commit svn.Commit, diff string) (*review.Outcome, error)
}

// Notifier is the notification collaborator boundary.
type Notifier interface {
	SendReview(ctx context.Context, commit svn.Commit, outcome *review.Outcome) error
	SendError(ctx context.Context, errorMessage string) error
}

// task is one unit of per-commit work. commit is preloaded on the poll path
// and resolved by the worker for push triggers and retries.
type task struct {
	revision string
	commit   *svn.Commit
}

// ErrStopped is returned by Submit once the dispatcher is shutting down.
var ErrStopped = fmt.Errorf("dispatcher stopped")

// Dispatcher drives each commit through review and notification on a bounded
// worker pool. A slow commit never blocks detection: workers pull from a
// buffered queue and submission applies back-pressure when it fills.
type Dispatcher struct {
	ledger   *ledger.Ledger
	source   Source
	reviewer Reviewer
	notifier Notifier
	log      *zap.Logger

	tasks chan task
	quit  chan struct{}
	grace time.Duration

	group      *errgroup.Group
	cancelWork context.CancelFunc
}

// NewDispatcher creates a dispatcher with the given pool size and queue depth.
func NewDispatcher(led *ledger.Ledger, source Source, reviewer Reviewer, notifier Notifier,
	workers, queueSize int, grace time.Duration, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	d := &Dispatcher{
		ledger:   led,
		source:   source,
		reviewer: reviewer,
		notifier: notifier,
		log:      log,
		tasks:    make(chan task, queueSize),
		quit:     make(chan struct{}),
		grace:    grace,
	}

	workCtx, cancel := context.WithCancel(context.Background())
	d.cancelWork = cancel
	d.group, _ = errgroup.WithContext(workCtx)
	for i := 0; i < workers; i++ {
		d.group.Go(func() error {
			d.workerLoop(workCtx)
			return nil
		})
	}
	return d
}

func (d *Dispatcher) workerLoop(ctx context.Context) {
	for {
		select {
		case <-d.quit:
			return
		case t := <-d.tasks:
			d.process(ctx, t)
		}
	}
}

// Submit enqueues a task, blocking for back-pressure when the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, revision string, commit *svn.Commit) error {
	select {
	case <-d.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case d.tasks <- task{revision: revision, commit: commit}:
		return nil
	}
}

// TrySubmit enqueues without blocking. The push listener uses it so the
// acknowledgement never waits on a full queue; a dropped trigger is picked
// up by the next poll cycle.
func (d *Dispatcher) TrySubmit(revision string) bool {
	select {
	case <-d.quit:
		return false
	case d.tasks <- task{revision: revision}:
		return true
	default:
		return false
	}
}

// Stop stops accepting work and waits up to the grace period for in-flight
// units, then cancels their context and joins them.
func (d *Dispatcher) Stop() error {
	close(d.quit)

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()

	select {
	case err := <-done:
		d.cancelWork()
		return err
	case <-time.After(d.grace):
		d.cancelWork()
		err := <-done
		if err == nil {
			err = fmt.Errorf("shutdown grace %s elapsed with work in flight", d.grace)
		}
		return err
	}
}

// process runs one commit end to end. Any failure, including a panic, is
// recorded on the ledger; nothing escapes to take down the pool.
func (d *Dispatcher) process(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			d.ledger.FailReview(t.revision, fmt.Sprintf("panic during processing: %v", r))
			d.log.Error("panic while processing commit",
				zap.String("revision", t.revision), zap.Any("panic", r))
		}
	}()

	commit := t.commit
	if commit == nil {
		resolved, err := d.source.Lookup(ctx, t.revision)
		if err != nil {
			d.log.Warn("commit info unavailable",
				zap.String("revision", t.revision), zap.Error(err))
			return
		}
		commit = resolved
	}

	// Idempotent create: both ingress paths funnel through here and only
	// the state machine decides who proceeds.
	d.ledger.RecordDetected(commit.Revision, commit.Author, commit.Message)

	if len(commit.ChangedFiles) == 0 {
		d.ledger.Skip(commit.Revision, "no changes under monitored paths")
		return
	}

	// BeginReview is the dedup gate: it refuses records already reviewing,
	// reviewed or terminal, so a push trigger racing the poller yields one
	// review invocation.
	if !d.ledger.BeginReview(commit.Revision) {
		return
	}

	start := time.Now()
	diff, err := d.source.Diff(ctx, commit.Revision)
	if err != nil {
		d.ledger.FailReview(commit.Revision, fmt.Sprintf("fetching diff: %v", err))
		return
	}

	outcome, err := d.reviewer.Review(ctx, *commit, diff)
	if err != nil {
		d.ledger.FailReview(commit.Revision, err.Error())
		return
	}

	elapsed := time.Since(start).Seconds()
	d.ledger.CompleteReview(commit.Revision, outcome.Score, elapsed)

	if err := d.notifier.SendReview(ctx, *commit, outcome); err != nil {
		d.ledger.FailNotification(commit.Revision, err.Error())
		return
	}
	d.ledger.CompleteNotification(commit.Revision)
	d.log.Info("commit processed",
		zap.String("revision", commit.Revision),
		zap.Int("score", outcome.Score),
		zap.Float64("seconds", elapsed))
}
