package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tripdeals/internal/adapters/observability"
	"tripdeals/internal/app"
)

var ErrScanInProgress = errors.New("scan already in progress")

// Scanner runs one scan cycle. *app.ScanService satisfies it.
type Scanner interface {
	RunScan(ctx context.Context) (app.ScanSummary, error)
}

// LastRun describes the most recent finished cycle.
type LastRun struct {
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
	Summary   app.ScanSummary `json:"summary"`
	Error     string          `json:"error,omitempty"`
}

// Scheduler runs the scan on a fixed interval. Overlapping cycles are
// skipped, and a failing or panicking cycle never stops the schedule.
type Scheduler struct {
	scan     Scanner
	interval time.Duration
	cron     *cron.Cron

	running sync.Mutex // held for the duration of a cycle

	mu     sync.Mutex
	last   *LastRun
	ctx    context.Context
	cancel context.CancelFunc
}

func New(scan Scanner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	logger := cronLogger{l: log.Logger.With().Str("component", "scheduler").Logger()}
	return &Scheduler{
		scan:     scan,
		interval: interval,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Start runs one cycle immediately and then every interval until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx, s.cancel = runCtx, cancel
	s.mu.Unlock()

	expr := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(expr, func() { s.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule %q: %w", expr, err)
	}
	log.Info().Dur("interval", s.interval).Msg("scan scheduler started")
	s.cron.Start()

	go s.tick(runCtx)
	go func() {
		<-runCtx.Done()
		s.cron.Stop()
	}()
	return nil
}

// Stop cancels the running cycle and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
	// wait out a cycle started outside cron (initial run or TriggerNow)
	s.running.Lock()
	s.running.Unlock()
}

// TriggerNow runs a cycle synchronously unless one is already running.
func (s *Scheduler) TriggerNow(ctx context.Context) (app.ScanSummary, error) {
	if !s.running.TryLock() {
		return app.ScanSummary{}, ErrScanInProgress
	}
	defer s.running.Unlock()
	return s.run(ctx)
}

func (s *Scheduler) Last() (LastRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return LastRun{}, false
	}
	return *s.last, true
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.TryLock() {
		log.Info().Msg("scan still running, skipping tick")
		return
	}
	defer s.running.Unlock()
	if _, err := s.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("scheduled scan failed")
	}
}

func (s *Scheduler) run(ctx context.Context) (sum app.ScanSummary, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panic: %v", r)
		}
		dur := time.Since(start)
		observability.ObserveScan(err, dur)
		lr := &LastRun{StartedAt: start.UTC(), Duration: dur, Summary: sum}
		if err != nil {
			lr.Error = err.Error()
		}
		s.mu.Lock()
		s.last = lr
		s.mu.Unlock()
	}()
	return s.scan.RunScan(ctx)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}
