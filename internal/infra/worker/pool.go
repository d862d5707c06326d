package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"event-billing/internal/infra/metrics"
)

// ErrQueueFull is returned by Submit when every slot is taken.
var ErrQueueFull = errors.New("worker queue full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker pool stopped")

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed set of goroutines. Tasks run on a
// context that outlives the Start context, so work accepted before shutdown
// is drained rather than aborted. Cancelling the Start context closes the
// pool to new tasks; workers exit only once the queue is drained.
type Pool struct {
	name string
	log  *zerolog.Logger

	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int

	mu      sync.RWMutex
	stopped bool
}

func NewPool(name string, workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "WorkerPool").Str("pool", name).Logger()
	return &Pool{
		name: name,
		log:  &l,
		jobs: make(chan Task, workers*4),
		quit: make(chan struct{}),
		n:    workers,
	}
}

func (p *Pool) Start(ctx context.Context) {
	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-p.quit:
					p.drain(runCtx, id)
					return
				case task := <-p.jobs:
					p.run(runCtx, id, task)
				}
			}
		}(i)
	}
	go func() {
		select {
		case <-ctx.Done():
			p.shutdown()
		case <-p.quit:
		}
	}()
}

func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case task := <-p.jobs:
			p.run(ctx, id, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	if task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.IncWorkerTask(p.name, "error")
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		metrics.IncWorkerTask(p.name, "error")
		p.log.Error().Err(err).Int("worker", id).Msg("task error")
		return
	}
	metrics.IncWorkerTask(p.name, "ok")
}

// Stop refuses new tasks, runs what is already queued and waits for workers.
func (p *Pool) Stop() {
	p.shutdown()
	p.wg.Wait()
}

// shutdown flips the pool to stopped. A Submit holding the read lock has either
// enqueued already, and is drained, or sees stopped.
func (p *Pool) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.quit)
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		metrics.IncWorkerTask(p.name, "rejected")
		return ErrQueueFull
	}
}
