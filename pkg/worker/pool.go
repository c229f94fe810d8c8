// Package worker provides the asynchronous worker pool that runs background
// memory jobs off the request path.
//
// Every job runs inside a recover boundary on a context that is detached from
// whatever request submitted it, so a failing or slow job can never reach the
// caller.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute.
type Job struct {
	// Name identifies the job in logs, e.g. "completed-chat".
	Name string

	// Key is an optional identifier logged with the job, e.g. a chat id.
	Key string

	Run func(ctx context.Context) error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// NumWorkers is the number of background workers in the pool (defaults to 3).
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds each job when non-zero.
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool runs jobs on a fixed set of goroutines.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Error("job not queued, pool closed, job dropped",
			"job", job.Name,
			"key", job.Key,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"job", job.Name,
			"key", job.Key,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"job", job.Name,
			"key", job.Key,
		)
		return false
	}
}

// Close stops accepting jobs and waits for queued and in-flight jobs to
// drain. Call this during graceful shutdown after intake has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob runs a job and contains anything it throws.
func (p *Pool) processJob(job Job) {
	ctx := p.ctx
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := p.run(ctx, job); err != nil {
		p.logger.Error("background job failed",
			"job", job.Name,
			"key", job.Key,
			"error", err,
		)
		return
	}

	p.logger.Debug("background job finished",
		"job", job.Name,
		"key", job.Key,
		"duration", time.Since(start),
	)
}

func (p *Pool) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			p.logger.Debug("background job panic stack",
				"job", job.Name,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	return job.Run(ctx)
}
