// Package workerpool runs fire-and-forget background tasks on a fixed set of
// goroutines fed by a bounded queue.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
)

// ErrQueueFull is returned by Submit when the queue has no free slot.
var ErrQueueFull = errors.New("worker pool queue is full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker pool stopped")

// Task is one unit of background work. The context is detached from the
// request that submitted it and bounded by the pool's task timeout.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Submitter is the narrow surface services depend on.
type Submitter interface {
	Submit(task Task) error
}

type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	Logger      *logger.Logger
	Metrics     *metrics.PoolMetrics
}

type Pool struct {
	queue   chan Task
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logg    *logger.Logger
	metrics *metrics.PoolMetrics

	mu      sync.RWMutex
	stopped bool
}

// Start launches the workers. They exit when Stop is called or parent is done.
func Start(parent context.Context, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = time.Minute
	}
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		queue:   make(chan Task, opts.QueueSize),
		group:   group,
		ctx:     gctx,
		cancel:  cancel,
		timeout: opts.TaskTimeout,
		logg:    opts.Logger,
		metrics: opts.Metrics,
	}
	for i := 0; i < opts.Workers; i++ {
		group.Go(p.work)
	}
	return p
}

func (p *Pool) work() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case task, ok := <-p.queue:
			if !ok {
				return nil
			}
			p.run(task)
		}
	}
}

func (p *Pool) run(task Task) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		err = task.Run(ctx)
	}()

	p.metrics.TaskDone(task.Name, err)
	if err != nil && p.logg != nil {
		logCtx := p.logg.WithField(ctx, "task", task.Name)
		p.logg.Error(logCtx, "background task failed", err)
	}
}

// Submit enqueues task without blocking. A full queue drops the task.
func (p *Pool) Submit(task Task) error {
	if task.Run == nil {
		return errors.New("task func is required")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		p.metrics.Dropped()
		if p.logg != nil {
			p.logg.Warn(p.logg.WithField(context.Background(), "task", task.Name), "background task dropped")
		}
		return ErrQueueFull
	}
}

// Stop closes the queue, lets workers drain what is already queued, and waits.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	err := p.group.Wait()
	p.cancel()
	return err
}
