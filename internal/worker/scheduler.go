package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/metrics"
)

// ErrPanicked wraps a panic recovered from a pass or task
var ErrPanicked = errors.New("recovered panic")

// UnitKind tells periodic jobs and queue consumers apart
type UnitKind string

const (
	KindPeriodic UnitKind = "periodic"
	KindConsumer UnitKind = "consumer"
)

// Job is a recurring unit of work. Interval is measured from the end of
// one pass to the start of the next.
type Job struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool
	Run            func(ctx context.Context) error
}

// UnitStatus is a snapshot of one scheduled unit
type UnitStatus struct {
	Name      string    `json:"name"`
	Kind      UnitKind  `json:"kind"`
	Interval  string    `json:"interval,omitempty"`
	Passes    int64     `json:"passes"`
	Failures  int64     `json:"failures"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Running   bool      `json:"running"`
}

type unit struct {
	name     string
	kind     UnitKind
	interval time.Duration
	run      func(ctx context.Context, u *unit)

	mu     sync.Mutex
	status UnitStatus
}

func (u *unit) record(at time.Time, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status.Passes++
	u.status.LastRun = at
	if err != nil {
		u.status.Failures++
		u.status.LastError = err.Error()
	}
}

func (u *unit) setRunning(running bool) {
	u.mu.Lock()
	u.status.Running = running
	u.mu.Unlock()
}

func (u *unit) snapshot() UnitStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// Scheduler owns every periodic job and queue consumer of the process
type Scheduler struct {
	logger       *slog.Logger
	restartDelay time.Duration

	mu      sync.Mutex
	units   []*unit
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	outstanding atomic.Int64
}

// NewScheduler creates a scheduler with no units registered
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger:       logger,
		restartDelay: time.Second,
	}
}

// SetRestartDelay changes how long a failed consumer waits before it is restarted
func (s *Scheduler) SetRestartDelay(d time.Duration) {
	s.mu.Lock()
	s.restartDelay = d
	s.mu.Unlock()
}

// Every registers a periodic job
func (s *Scheduler) Every(job Job) error {
	if job.Interval <= 0 {
		return fmt.Errorf("%w: %s has interval %s", domain.ErrInvalidInterval, job.Name, job.Interval)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s has no work function", job.Name)
	}

	u := &unit{
		name:     job.Name,
		kind:     KindPeriodic,
		interval: job.Interval,
		status: UnitStatus{
			Name:     job.Name,
			Kind:     KindPeriodic,
			Interval: job.Interval.String(),
		},
	}
	u.run = func(ctx context.Context, u *unit) {
		s.runPeriodic(ctx, u, job)
	}
	return s.add(u)
}

// Go registers a long-running consumer. If fn returns or panics before
// shutdown it is restarted after the restart delay.
func (s *Scheduler) Go(name string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("consumer %s has no work function", name)
	}

	u := &unit{
		name:   name,
		kind:   KindConsumer,
		status: UnitStatus{Name: name, Kind: KindConsumer},
	}
	u.run = func(ctx context.Context, u *unit) {
		s.runConsumer(ctx, u, fn)
	}
	return s.add(u)
}

func (s *Scheduler) add(u *unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("cannot register %s: scheduler already started", u.name)
	}
	s.units = append(s.units, u)
	return nil
}

// Start launches every registered unit and returns immediately
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.group = &errgroup.Group{}

	for _, u := range s.units {
		s.outstanding.Add(1)
		u.setRunning(true)
		s.group.Go(func() error {
			defer func() {
				u.setRunning(false)
				s.outstanding.Add(-1)
			}()
			u.run(runCtx, u)
			return nil
		})
	}

	s.logger.Info("housekeeping units started", "units", len(s.units))
	return nil
}

// Stop cancels every unit and waits for them to return or for ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	group := s.group
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("housekeeping units stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("housekeeping units did not stop in time", "outstanding", s.Outstanding())
		return ctx.Err()
	}
}

// Outstanding returns the number of units whose goroutine has not returned
func (s *Scheduler) Outstanding() int {
	return int(s.outstanding.Load())
}

// Status returns a snapshot of every unit in registration order
func (s *Scheduler) Status() []UnitStatus {
	s.mu.Lock()
	units := make([]*unit, len(s.units))
	copy(units, s.units)
	s.mu.Unlock()

	out := make([]UnitStatus, len(units))
	for i, u := range units {
		out[i] = u.snapshot()
	}
	return out
}

func (s *Scheduler) runPeriodic(ctx context.Context, u *unit, job Job) {
	s.logger.Info("periodic job started", "job", job.Name, "interval", job.Interval)

	if job.RunImmediately {
		s.pass(ctx, u, job.Run)
	}

	timer := time.NewTimer(job.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.pass(ctx, u, job.Run)
			timer.Reset(job.Interval)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context, u *unit, fn func(ctx context.Context) error) {
	start := time.Now()
	passID := uuid.NewString()
	s.logger.Debug("pass started", "job", u.name, "pass_id", passID)

	err := safeCall(ctx, fn)

	metrics.UnitPassDuration.WithLabelValues(u.name).Observe(time.Since(start).Seconds())
	metrics.UnitPassesTotal.WithLabelValues(u.name).Inc()
	u.record(start, err)

	if err != nil {
		metrics.UnitFailuresTotal.WithLabelValues(u.name).Inc()
		if ctx.Err() == nil {
			s.logger.Error("pass failed", "job", u.name, "pass_id", passID, "error", err)
		}
		return
	}
	s.logger.Debug("pass completed", "job", u.name, "pass_id", passID, "duration", time.Since(start))
}

func (s *Scheduler) runConsumer(ctx context.Context, u *unit, fn func(ctx context.Context) error) {
	s.logger.Info("consumer started", "consumer", u.name)

	for {
		err := safeCall(ctx, fn)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, domain.ErrQueueClosed) || errors.Is(err, domain.ErrPoolClosed) {
			s.logger.Info("consumer source closed", "consumer", u.name, "reason", err)
			return
		}

		u.record(time.Now(), err)
		metrics.UnitFailuresTotal.WithLabelValues(u.name).Inc()
		s.logger.Error("consumer exited, restarting", "consumer", u.name, "error", err)

		s.mu.Lock()
		delay := s.restartDelay
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// safeCall runs fn and converts a panic into an error
func safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanicked, r, debug.Stack())
		}
	}()
	return fn(ctx)
}
