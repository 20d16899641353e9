// Package scheduler runs publishing cycles on a cron schedule.
//
// At most one cycle runs at a time: a tick that fires while a cycle is still
// running is skipped, and RunNow refuses to start a second cycle. The
// scheduler is long-running and context-aware; a failed cycle is logged and
// the next tick runs as usual.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/biopipe/internal/logging"
)

// ErrAlreadyRunning is returned by RunNow while a cycle is in progress.
var ErrAlreadyRunning = errors.New("cycle already running")

// Job runs one cycle.
type Job func(ctx context.Context) error

// Scheduler triggers Job on a standard five-field cron expression.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	job     Job
	running atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New parses spec and prepares the scheduler; call Start to begin ticking.
// An empty spec gives a manual-only scheduler driven by RunNow.
func New(spec string, job Job) (*Scheduler, error) {
	logger := cronLogger{slog.Default().With("component", "scheduler")}
	s := &Scheduler{
		job: job,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(
				cron.SkipIfStillRunning(logger),
				cron.Recover(logger),
			),
		),
	}
	if spec == "" {
		return s, nil
	}
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins ticking. Cycles run with a context derived from ctx, which is
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	slog.Info("scheduler started", "next_run", s.Next())
}

// Stop halts ticking, cancels a running cycle and waits for it to return or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the time of the next scheduled tick, or the zero time when the
// scheduler is not started or has no schedule.
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// RunNow runs a cycle synchronously on ctx. It returns ErrAlreadyRunning if a
// cycle is in progress.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.running.Store(false)
	return s.run(ctx, "manual")
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("skipping scheduled cycle, previous cycle still running")
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.running.Store(false)

	if err := s.run(ctx, "schedule"); err != nil {
		logging.FromContext(ctx).Error("scheduled cycle failed", "error", err)
	}
}

func (s *Scheduler) run(ctx context.Context, trigger string) error {
	start := time.Now()
	slog.Info("cycle triggered", "trigger", trigger)
	err := s.job(ctx)
	slog.Info("cycle finished",
		"trigger", trigger,
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", err == nil,
	)
	return err
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
