/*
scheduler.go - Daily demurrage check trigger

PURPOSE:
  Fires the demurrage check once a day at a fixed wall-clock time and lets
  an operator trigger the same job on demand.

DESIGN:
  - One background goroutine sleeps on a timer until the next firing time
  - At most one run executes at a time; manual and scheduled runs share the guard
  - A scheduled firing that finds a run in progress is skipped and logged
  - A manual trigger during a run fails with ErrAlreadyRunning

CONFIGURATION:
  - At: "HH:MM" wall-clock time (default 18:31)
  - Location: timezone At is read in (default UTC; 18:31 UTC is 00:01 in Colombo)
  - Enabled: whether Start launches the loop (default: true)

USAGE:
  s, err := scheduler.New(checker, "18:31", time.UTC, logger)
  s.Start(ctx)
  // ... later
  s.Stop()

SEE ALSO:
  - demurrage/checker.go: The job
  - api/handlers.go: Manual trigger endpoint
*/
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/demurrage-engine/demurrage"
	"github.com/warp/demurrage-engine/metrics"
)

// DefaultAt is 00:01 Asia/Colombo expressed in UTC.
const DefaultAt = "18:31"

// ErrAlreadyRunning is returned by TriggerNow while another run is in progress.
var ErrAlreadyRunning = errors.New("demurrage check already running")

// Job is the work the scheduler fires.
type Job interface {
	Run(ctx context.Context, trigger demurrage.Trigger) demurrage.Result
}

// Scheduler fires Job daily.
type Scheduler struct {
	Job      Job
	Location *time.Location
	Enabled  bool
	Logger   *log.Logger

	hour, minute int
	at           string

	now func() time.Time

	running atomic.Bool

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	last    *demurrage.Result
}

// New creates an enabled scheduler firing at the "HH:MM" time at in loc.
// A nil loc means UTC.
func New(job Job, at string, loc *time.Location, logger *log.Logger) (*Scheduler, error) {
	if at == "" {
		at = DefaultAt
	}
	hour, minute, err := parseDailyAt(at)
	if err != nil {
		return nil, fmt.Errorf("invalid daily time %q: %w", at, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		Job:      job,
		Location: loc,
		Enabled:  true,
		Logger:   logger,
		hour:     hour,
		minute:   minute,
		at:       at,
		now:      time.Now,
	}, nil
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// At returns the configured firing time as "HH:MM".
func (s *Scheduler) At() string {
	return s.at
}

// NextRun returns the first firing time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.Location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.Location)
	}
	return next
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Last returns the most recent result, if any run has finished.
func (s *Scheduler) Last() (demurrage.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return demurrage.Result{}, false
	}
	return *s.last, true
}

// Start launches the daily loop. It stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logf("[Scheduler] Disabled, not starting")
		return
	}
	if s.started {
		return
	}

	s.stop = make(chan struct{})
	s.started = true
	s.wg.Add(1)
	go s.loop(ctx, s.stop)

	s.logf("[Scheduler] Started, daily at %s %s (next run %s)",
		s.at, s.Location, s.NextRun(s.now()).Format(time.RFC3339))
}

// Stop stops the loop and waits for an in-flight scheduled run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logf("[Scheduler] Stopped")
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	for {
		now := s.now()
		timer := time.NewTimer(s.NextRun(now).Sub(now))

		select {
		case <-timer.C:
			s.fire(ctx)
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// fire runs a scheduled check unless one is already in progress.
func (s *Scheduler) fire(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logf("[Scheduler] Previous run still in progress, skipping scheduled run")
		metrics.IncRunSkipped("already_running")
		return
	}
	defer s.running.Store(false)

	res := s.Job.Run(ctx, demurrage.TriggerScheduled)
	s.record(res)
}

// TriggerNow runs the job synchronously.
func (s *Scheduler) TriggerNow(ctx context.Context) (demurrage.Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return demurrage.Result{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logf("[Scheduler] Manual run requested")
	res := s.Job.Run(ctx, demurrage.TriggerManual)
	s.record(res)
	return res, nil
}

func (s *Scheduler) record(res demurrage.Result) {
	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	if res.Success {
		s.logf("[Scheduler] %s run %s: %s", res.Trigger, res.RunID, res.Message)
	} else {
		s.logf("[Scheduler] %s run %s failed: %s", res.Trigger, res.RunID, res.Message)
	}
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
