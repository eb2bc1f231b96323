package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/internal/telemetry"
)

// HandlerFunc runs one task. Returning an error reschedules the task with
// backoff until its attempt budget is spent.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// PoolMetrics provides observability for task execution. Pass nil to
// disable metrics collection with zero overhead.
type PoolMetrics interface {
	// ObserveTask records one finished task run with its kind, duration
	// and outcome.
	ObserveTask(kind string, duration time.Duration, err error)
}

// PoolConfig holds the worker pool settings.
type PoolConfig struct {
	// Workers is the number of goroutines executing tasks.
	Workers int `mapstructure:"workers" json:"workers" yaml:"workers"`

	// PollInterval is how often the poller checks for due tasks.
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval" yaml:"poll_interval"`

	// TaskTimeout bounds a single handler run.
	TaskTimeout time.Duration `mapstructure:"task_timeout" json:"task_timeout" yaml:"task_timeout"`
}

// DefaultPoolConfig returns the worker pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:      4,
		PollInterval: time.Second,
		TaskTimeout:  10 * time.Minute,
	}
}

// Pool executes queued tasks. A single poller claims due tasks from the
// queue and dispatches them over a channel to the workers; each worker runs
// the handler registered for the task kind and settles the claim.
type Pool struct {
	queue    *Queue
	handlers map[string]HandlerFunc
	metrics  PoolMetrics

	workers      int
	pollInterval time.Duration
	taskTimeout  time.Duration

	taskCh    chan *Task
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
	started   bool

	// Metrics
	mu          sync.Mutex
	completed   int
	failed      int
	lastError   error
	lastErrorAt time.Time
}

// NewPool creates a worker pool draining the given queue. metrics may be
// nil.
func NewPool(q *Queue, cfg PoolConfig, metrics PoolMetrics) *Pool {
	def := DefaultPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}

	return &Pool{
		queue:        q,
		handlers:     make(map[string]HandlerFunc),
		metrics:      metrics,
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		taskTimeout:  cfg.TaskTimeout,
		taskCh:       make(chan *Task, cfg.Workers*2),
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}
}

// Register binds a handler to a task kind. Registration happens during
// wiring, before Start; registering twice or with a nil handler is a
// programming error and panics.
func (p *Pool) Register(kind string, handler HandlerFunc) {
	if handler == nil {
		panic("tasks: Register handler is nil")
	}
	if _, ok := p.handlers[kind]; ok {
		panic("tasks: Register called twice for kind " + kind)
	}
	p.handlers[kind] = handler
}

// Start begins polling the queue and processing tasks.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	logger.Info("Starting task pool", "workers", p.workers, "pollInterval", p.pollInterval.String())

	p.wg.Add(1)
	go p.poller()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	// Monitor goroutine to close stoppedCh when poller and workers exit
	go func() {
		p.wg.Wait()
		close(p.stoppedCh)
	}()
}

// Stop gracefully shuts down the pool, waiting up to timeout for in-flight
// tasks to finish. Claimed tasks that never reached a worker are released
// back to the queue.
func (p *Pool) Stop(timeout time.Duration) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		// Never started - nothing to stop
		return
	}
	p.mu.Unlock()

	logger.Info("Stopping task pool")

	close(p.stopCh)

	select {
	case <-p.stoppedCh:
		logger.Info("Task pool stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Task pool stop timed out")
	}
}

// Stats returns the pending queue depth and the processed task counters.
func (p *Pool) Stats() (pending, completed, failed int) {
	pending, err := p.queue.PendingCount(context.Background())
	if err != nil {
		logger.Error("failed to count pending tasks", "error", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return pending, p.completed, p.failed
}

// LastError returns when the last task failure occurred and the error itself.
func (p *Pool) LastError() (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErrorAt, p.lastError
}

// poller claims due tasks and feeds them to the workers. It also sweeps for
// stale claims at half the claim timeout, so a crashed run is picked up again
// within one and a half timeouts at worst.
func (p *Pool) poller() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	staleEvery := p.queue.Config().ClaimTimeout / 2
	nextStaleSweep := time.Now().Add(staleEvery)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}

		now := time.Now()
		if now.After(nextStaleSweep) {
			if _, err := p.queue.RequeueStale(context.Background(), now); err != nil {
				logger.Error("stale task sweep failed", "error", err)
			}
			nextStaleSweep = now.Add(staleEvery)
		}

		if !p.dispatchDue() {
			return
		}
	}
}

// dispatchDue drains every currently due task into the worker channel.
// Returns false when the pool is stopping.
func (p *Pool) dispatchDue() bool {
	for {
		task, err := p.queue.Claim(context.Background(), time.Now())
		if err != nil {
			logger.Error("failed to claim task", "error", err)
			return true
		}
		if task == nil {
			return true
		}

		select {
		case p.taskCh <- task:
		case <-p.stopCh:
			if err := p.queue.release(context.Background(), task); err != nil {
				logger.Error("failed to release claimed task", "task", task.ID, "error", err)
			}
			return false
		}
	}
}

// worker executes dispatched tasks until the pool stops.
//
// Workers ignore the passed context for lifecycle management and only exit
// when stopCh is closed; each task gets its own fresh context with timeout in
// run, so an in-flight task is not cut off by the initialization context.
func (p *Pool) worker(_ context.Context, id int) {
	defer p.wg.Done()

	logger.Debug("Task pool worker started", "workerID", id)

	for {
		select {
		case task := <-p.taskCh:
			p.run(task)
		case <-p.stopCh:
			p.drain()
			logger.Debug("Task pool worker stopped", "workerID", id)
			return
		}
	}
}

// drain processes tasks still sitting in the channel during shutdown.
func (p *Pool) drain() {
	for {
		select {
		case task := <-p.taskCh:
			p.run(task)
		default:
			return
		}
	}
}

// run executes a single claimed task and settles its claim.
func (p *Pool) run(task *Task) {
	handler, ok := p.handlers[task.Kind]
	if !ok {
		err := fmt.Errorf("no handler registered for task kind %q", task.Kind)
		if ackErr := p.queue.Ack(context.Background(), task.ID); ackErr != nil {
			logger.Error("failed to drop task", "task", task.ID, "error", ackErr)
		}
		p.recordResult(task, err, 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()

	ctx, span := telemetry.StartTaskSpan(ctx, task.Kind, task.ID, task.Attempts)
	start := time.Now()
	err := handler(ctx, task.Payload)
	elapsed := time.Since(start)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	span.End()

	if err != nil {
		if failErr := p.queue.Fail(context.Background(), task, err); failErr != nil {
			logger.Error("failed to settle failed task", "task", task.ID, "error", failErr)
		}
	} else {
		if ackErr := p.queue.Ack(context.Background(), task.ID); ackErr != nil {
			logger.Error("failed to ack task", "task", task.ID, "error", ackErr)
		}
	}

	p.recordResult(task, err, elapsed)
}

// recordResult updates the pool counters after a task run.
func (p *Pool) recordResult(task *Task, err error, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveTask(task.Kind, elapsed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failed++
		p.lastError = err
		p.lastErrorAt = time.Now()
		logger.Error("Task failed",
			"kind", task.Kind,
			"task", task.ID,
			"attempt", task.Attempts,
			"elapsed", elapsed.String(),
			"error", err)
	} else {
		p.completed++
		logger.Debug("Task completed",
			"kind", task.Kind,
			"task", task.ID,
			"elapsed", elapsed.String())
	}
}
