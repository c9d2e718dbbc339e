package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/metrics"
)

// Kind tags a pool with the pipeline it serves
type Kind string

const (
	SanitizationWorker Kind = "sanitization"
	AnalysisWorker     Kind = "analysis"
)

// Task is one unit of per-item work handed to a pool
type Task func(ctx context.Context) error

// PoolStats is a snapshot of a pool's load
type PoolStats struct {
	Kind     Kind `json:"kind"`
	Workers  int  `json:"workers"`
	Backlog  int  `json:"backlog"`
	Capacity int  `json:"capacity"`
	InFlight int  `json:"in_flight"`
}

// Pool runs tasks on a fixed number of goroutines. Submit blocks once the
// backlog is full, which pushes back on the consumer feeding it.
type Pool struct {
	kind    Kind
	workers int
	timeout time.Duration
	logger  *slog.Logger

	tasks    chan Task
	quit     chan struct{}
	quitOnce sync.Once

	mu     sync.RWMutex
	closed bool

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	inFlight atomic.Int64
}

// NewPool creates a pool; timeout bounds each task, zero disables it
func NewPool(kind Kind, workers, backlog int, timeout time.Duration, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if backlog < 0 {
		backlog = 0
	}
	return &Pool{
		kind:    kind,
		workers: workers,
		timeout: timeout,
		logger:  logger.With("pool", string(kind)),
		tasks:   make(chan Task, backlog),
		quit:    make(chan struct{}),
	}
}

// Kind returns the pool's tag
func (p *Pool) Kind() Kind {
	return p.kind
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(workerCtx, i)
	}
	p.logger.Info("worker pool started", "workers", p.workers, "backlog", cap(p.tasks))
}

// Submit hands a task to the pool, waiting while the backlog is full
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return domain.ErrPoolClosed
	}

	start := time.Now()
	select {
	case p.tasks <- task:
		metrics.PoolSubmitWait.WithLabelValues(string(p.kind)).Observe(time.Since(start).Seconds())
		metrics.PoolBacklog.WithLabelValues(string(p.kind)).Set(float64(len(p.tasks)))
		return nil
	case <-p.quit:
		return domain.ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", "worker_id", id)

	for task := range p.tasks {
		metrics.PoolBacklog.WithLabelValues(string(p.kind)).Set(float64(len(p.tasks)))
		p.execute(ctx, task)
	}
}

func (p *Pool) execute(ctx context.Context, task Task) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	taskCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := safeCall(taskCtx, task); err != nil {
		metrics.PoolTasksTotal.WithLabelValues(string(p.kind), "error").Inc()
		p.logger.Error("pool task failed", "error", err)
		return
	}
	metrics.PoolTasksTotal.WithLabelValues(string(p.kind), "ok").Inc()
}

// Stats returns the pool's current load
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Kind:     p.kind,
		Workers:  p.workers,
		Backlog:  len(p.tasks),
		Capacity: cap(p.tasks),
		InFlight: int(p.inFlight.Load()),
	}
}

// Shutdown stops accepting tasks, lets workers drain the backlog and waits
// for them. If ctx expires first, running tasks are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.quitOnce.Do(func() {
		close(p.quit)

		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.cancel != nil {
			p.cancel()
		}
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		return ctx.Err()
	}
}
