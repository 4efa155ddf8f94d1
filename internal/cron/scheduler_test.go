package cron

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voidKandy/espionox-sub001/internal/memory"
)

// stubMaintainer counts Maintain calls and can block or fail on demand.
type stubMaintainer struct {
	calls   atomic.Int32
	err     error
	started chan struct{}
	release chan struct{}
}

func (m *stubMaintainer) Maintain(ctx context.Context) error {
	m.calls.Add(1)
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func maintenanceJob(schedule string, stores map[string]memory.Maintainer) *StoreMaintenanceJob {
	return &StoreMaintenanceJob{Stores: stores, ScheduleExpr: schedule, Logger: slog.Default()}
}

func TestScheduler_RejectsDuplicateJob(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(maintenanceJob("", nil)); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	err := s.RegisterJob(maintenanceJob("@daily", nil))
	if err == nil || !strings.Contains(err.Error(), "store_maintenance") {
		t.Fatalf("duplicate registration error = %v", err)
	}
}

func TestScheduler_StartValidatesSchedules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		schedule string
		ok       bool
	}{
		{DefaultMaintenanceSchedule, true},
		{"@hourly", true},
		{"*/15 * * * *", true},
		{"0 0 * * * *", false}, // seconds field is not accepted
		{"every hour", false},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			t.Parallel()

			s := NewScheduler(slog.Default())
			if err := s.RegisterJob(maintenanceJob(tt.schedule, nil)); err != nil {
				t.Fatal(err)
			}
			err := s.Start()
			defer func() { _ = s.Stop(context.Background()) }()
			if (err == nil) != tt.ok {
				t.Errorf("Start with %q: err = %v, want ok=%v", tt.schedule, err, tt.ok)
			}
		})
	}
}

func TestScheduler_RunNowMaintainsStores(t *testing.T) {
	t.Parallel()

	healthy := &stubMaintainer{}
	broken := &stubMaintainer{err: errors.New("database is locked")}
	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(maintenanceJob("", map[string]memory.Maintainer{
		"memory.sqlite":   broken,
		"memory.postgres": healthy,
	})); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = s.Stop(context.Background()) }()

	err := s.RunNow(context.Background(), "store_maintenance")
	if err == nil || !strings.Contains(err.Error(), "database is locked") {
		t.Fatalf("RunNow error = %v, want the sqlite failure", err)
	}
	if healthy.calls.Load() != 1 || broken.calls.Load() != 1 {
		t.Errorf("calls: healthy=%d broken=%d, want 1 each", healthy.calls.Load(), broken.calls.Load())
	}
}

func TestScheduler_RunNowRefusesOverlap(t *testing.T) {
	t.Parallel()

	slow := &stubMaintainer{started: make(chan struct{}), release: make(chan struct{})}
	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(maintenanceJob("", map[string]memory.Maintainer{"memory.sqlite": slow})); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "store_maintenance") }()

	select {
	case <-slow.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	err := s.RunNow(context.Background(), "store_maintenance")
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("overlapping RunNow error = %v", err)
	}

	close(slow.release)
	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
	if n := slow.calls.Load(); n != 1 {
		t.Errorf("Maintain calls = %d, want 1", n)
	}
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if s.logger == nil {
		t.Fatal("nil logger was not defaulted")
	}
	if err := s.RunNow(context.Background(), "vacuum"); err == nil {
		t.Error("unknown job ran")
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
