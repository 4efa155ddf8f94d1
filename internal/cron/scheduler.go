package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages periodic job execution using cron expressions.
// Each job is protected by a per-job mutex so that a slow tick is skipped
// rather than run in parallel with itself.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []Job
	names  map[string]struct{}
	locks  map[string]*sync.Mutex
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		names:  make(map[string]struct{}),
		locks:  make(map[string]*sync.Mutex),
		logger: logger.With("component", "cron"),
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.names[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.names[name] = struct{}{}
	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start initializes the cron scheduler and begins executing registered jobs.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// Same grammar as cron.ParseStandard, which config validation uses.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.cron = cron.New(cron.WithParser(parser))

	for _, job := range s.jobs {
		lock := s.locks[job.Name()]

		_, err := s.cron.AddFunc(job.Schedule(), func() {
			if !lock.TryLock() {
				s.logger.Warn("cron: job still running, skipping tick",
					"job", job.Name(),
				)
				return
			}
			defer lock.Unlock()
			s.run(ctx, job)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// RunNow executes the named job immediately, honoring the same per-job
// lock as scheduled ticks. It returns the job's error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	lock, ok := s.locks[name]
	var job Job
	for _, j := range s.jobs {
		if j.Name() == name {
			job = j
		}
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	if !lock.TryLock() {
		return fmt.Errorf("cron: job %q is already running", name)
	}
	defer lock.Unlock()
	return s.run(ctx, job)
}

// run executes job once. A panic is reported as an error.
func (s *Scheduler) run(ctx context.Context, job Job) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cron: job %q panicked: %v", job.Name(), r)
		}
		if err != nil {
			s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
			return
		}
		s.logger.Debug("cron: job completed", "job", job.Name(), "duration", time.Since(start))
	}()

	s.logger.Debug("cron: job started", "job", job.Name())
	return job.Run(ctx)
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		// Wait for running jobs to complete.
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
