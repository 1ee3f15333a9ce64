// Package scheduler runs the periodic circulation jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a standard five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule string
	run      JobFunc
	entryID  cron.EntryID
}

// Scheduler owns one cron instance and the jobs registered on it. A job that
// is still running when its next tick fires is skipped for that tick.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	mu        sync.RWMutex
	jobs      map[string]*job
	active    map[string]bool
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a scheduler evaluating schedules in the named timezone
// ("Local" or an IANA name).
func New(timezone string, timeout time.Duration) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" && timezone != "Local" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", timezone, err)
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		timeout: timeout,
		jobs:    make(map[string]*job),
		active:  make(map[string]bool),
	}, nil
}

// Add registers a job. An empty schedule disables the job.
func (s *Scheduler) Add(name, schedule string, run JobFunc) error {
	if schedule == "" {
		log.Printf("[SCHEDULER] %s: disabled", name)
		return nil
	}
	if err := ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s' for %s: %w", schedule, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{name: name, schedule: schedule, run: run}
	entryID, err := s.cron.AddFunc(schedule, func() { s.execute(j) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	j.entryID = entryID
	s.jobs[name] = j
	return nil
}

// Start begins firing jobs until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.isRunning = true
	s.cron.Start()

	for _, j := range s.jobs {
		log.Printf("[SCHEDULER] %s: schedule '%s', next run %v", j.name, j.schedule, s.cron.Entry(j.entryID).Next)
	}
	runCtx := s.ctx
	s.mu.Unlock()

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
}

// Stop stops firing new jobs and waits for running ones to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	<-done.Done()
	cancel()

	log.Printf("[SCHEDULER] stopped")
}

// RunNow executes a registered job immediately in the caller's goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.execute(j)
}

// IsRunning returns whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns when the named job fires next.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[name]
	if !ok || !s.isRunning {
		return nil
	}
	next := s.cron.Entry(j.entryID).Next
	return &next
}

func (s *Scheduler) execute(j *job) error {
	s.mu.Lock()
	if s.active[j.name] {
		s.mu.Unlock()
		log.Printf("[SCHEDULER] %s: skipped (still running)", j.name)
		return nil
	}
	s.active[j.name] = true
	parent := s.ctx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.active, j.name)
		s.mu.Unlock()
	}()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	started := time.Now()
	if err := j.run(ctx); err != nil {
		log.Printf("[SCHEDULER] %s: failed after %v: %v", j.name, time.Since(started).Round(time.Millisecond), err)
		return err
	}
	log.Printf("[SCHEDULER] %s: completed in %v", j.name, time.Since(started).Round(time.Millisecond))
	return nil
}
