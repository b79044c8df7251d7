package scheduler_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tripdeals/internal/app"
	"tripdeals/internal/scheduler"
)

type fakeScanner struct {
	calls   int32
	block   chan struct{}
	panicky bool
}

func (f *fakeScanner) RunScan(ctx context.Context) (app.ScanSummary, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.panicky {
		panic("feed exploded")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return app.ScanSummary{}, ctx.Err()
		}
	}
	return app.ScanSummary{FlightsSeen: 2}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScheduler_InitialRunAndSkipOverlap(t *testing.T) {
	scan := &fakeScanner{block: make(chan struct{})}
	s := scheduler.New(scan, time.Hour)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&scan.calls) == 1 })

	if _, err := s.TriggerNow(context.Background()); !errors.Is(err, scheduler.ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}

	close(scan.block)
	waitFor(t, func() bool { _, ok := s.Last(); return ok })
	last, _ := s.Last()
	if last.Error != "" || last.Summary.FlightsSeen != 2 {
		t.Fatalf("unexpected last run: %+v", last)
	}
	s.Stop()
}

func TestScheduler_PanicIsContained(t *testing.T) {
	scan := &fakeScanner{panicky: true}
	s := scheduler.New(scan, time.Hour)

	_, err := s.TriggerNow(context.Background())
	if err == nil || !strings.Contains(err.Error(), "scan panic") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
	last, ok := s.Last()
	if !ok || !strings.Contains(last.Error, "feed exploded") {
		t.Fatalf("panic not recorded: %+v", last)
	}

	// the scheduler keeps working afterwards
	scan.panicky = false
	if _, err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestScheduler_StopCancelsRunningCycle(t *testing.T) {
	scan := &fakeScanner{block: make(chan struct{})}
	s := scheduler.New(scan, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&scan.calls) == 1 })

	done := make(chan struct{})
	go func() { s.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}
	last, ok := s.Last()
	if !ok || !strings.Contains(last.Error, "context canceled") {
		t.Fatalf("expected cancelled cycle, got %+v", last)
	}
}
