package writeback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/session"
)

const (
	DefaultWorkers    = 4
	DefaultBufferSize = 1024
)

// Config controls pool sizing and backpressure.
type Config struct {
	Workers    int
	BufferSize int
	DropIfFull bool
	// TaskTimeout bounds each task; zero leaves tasks unbounded.
	TaskTimeout time.Duration
}

// Pool runs submitted tasks on a fixed set of workers.
type Pool struct {
	cfg    Config
	logger *slog.Logger
	ch     chan session.Task
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	dropped   atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// NewPool starts cfg.Workers workers. A nil logger discards output.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Pool{
		cfg:    cfg,
		logger: logger,
		ch:     make(chan session.Task, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.run()
	}

	return p
}

func (p *Pool) run() {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.ch:
			p.exec(task)
		case <-p.done:
			for {
				select {
				case task := <-p.ch:
					p.exec(task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) exec(task session.Task) {
	ctx := context.Background()
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.Error("write-back task panicked", "panic", fmt.Sprint(r))
			return
		}
		p.completed.Add(1)
	}()

	task(ctx)
}

// Submit queues task. With DropIfFull it returns [session.ErrQueueFull] instead of
// waiting for queue space. After Close it returns [session.ErrExecutorClosed].
func (p *Pool) Submit(task session.Task) error {
	if p == nil {
		return session.ErrExecutorClosed
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return session.ErrExecutorClosed
	}

	if p.cfg.DropIfFull {
		select {
		case p.ch <- task:
			return nil
		default:
			p.dropped.Add(1)
			return session.ErrQueueFull
		}
	}

	p.ch <- task
	return nil
}

// Close stops accepting tasks, runs everything already queued, and waits for workers.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.done)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// Dropped returns the number of tasks rejected because the queue was full.
func (p *Pool) Dropped() uint64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}

// Completed returns the number of tasks that ran to completion.
func (p *Pool) Completed() uint64 {
	if p == nil {
		return 0
	}
	return p.completed.Load()
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	if p == nil {
		return 0
	}
	return len(p.ch)
}

// Inline runs each task synchronously inside Submit.
type Inline struct{}

// Submit runs task before returning.
func (Inline) Submit(task session.Task) error {
	task(context.Background())
	return nil
}
