// Package workerpool provides a bounded worker pool for controlled concurrency.
// Used by the analysis worker to fan out completed-intake processing.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task represents a unit of work to be processed
type Task struct {
	ID      string
	Payload interface{}
	Context context.Context
}

// Result represents the outcome of task processing
type Result struct {
	TaskID  string
	Success bool
	Error   error
}

// WorkerFunc is the function signature for task processing
type WorkerFunc func(ctx context.Context, task *Task) *Result

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
	// MaxRetries is the maximum number of retries for failed tasks
	MaxRetries int
	// RetryDelay is the delay between retries
	RetryDelay time.Duration
	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:                 100,
		QueueSize:               10000,
		MaxRetries:              3,
		RetryDelay:              100 * time.Millisecond,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// Pool fans submitted tasks out to a fixed set of workers. A failed task is
// retried with backoff inside the pool; the submitter only sees a full queue.
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	taskChan chan *Task
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	tasksCompleted int64
	tasksFailed    int64
}

// New creates a new worker pool
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
		taskChan:   make(chan *Task, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches all workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit adds a task to the queue
func (p *Pool) Submit(task *Task) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("pool is shutting down")
	default:
	}

	select {
	case p.taskChan <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Stop gracefully shuts down the pool
func (p *Pool) Stop() error {
	p.logger.Info("stopping worker pool")

	// Signal shutdown
	p.cancel()

	// Close task channel to stop workers from receiving new tasks
	close(p.taskChan)

	// Wait for workers with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped",
			zap.Int64("tasks_completed", atomic.LoadInt64(&p.tasksCompleted)),
			zap.Int64("tasks_failed", atomic.LoadInt64(&p.tasksFailed)))
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}

	return nil
}

// worker is the main worker goroutine
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))

	for task := range p.taskChan {
		p.processTask(id, task)
	}

	p.logger.Debug("worker stopped", zap.Int("worker_id", id))
}

// processTask handles a single task with retries
func (p *Pool) processTask(workerID int, task *Task) {
	var result *Result
	var lastErr error

	ctx := task.Context
	if ctx == nil {
		ctx = p.ctx
	}

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			result = &Result{TaskID: task.ID, Success: false, Error: ctx.Err()}
			goto done
		default:
		}

		result = p.workerFunc(ctx, task)
		if result.Success {
			goto done
		}

		lastErr = result.Error

		// Don't retry on last attempt
		if attempt < p.config.MaxRetries {
			p.logger.Debug("retrying task",
				zap.String("task_id", task.ID),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				result = &Result{TaskID: task.ID, Success: false, Error: ctx.Err()}
				goto done
			case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
				// Linear backoff
			}
		}
	}

	// All retries exhausted
	result = &Result{
		TaskID:  task.ID,
		Success: false,
		Error:   fmt.Errorf("task failed after %d retries: %w", p.config.MaxRetries, lastErr),
	}

done:
	if result.Success {
		atomic.AddInt64(&p.tasksCompleted, 1)
	} else {
		atomic.AddInt64(&p.tasksFailed, 1)
		p.logger.Error("task failed",
			zap.String("task_id", task.ID),
			zap.Int("worker_id", workerID),
			zap.Error(result.Error))
	}
}
