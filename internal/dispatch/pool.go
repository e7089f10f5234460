package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
	"github.com/capitalize-ai/ai-engine/pkg/metrics"
)

const backendPool = "pool"

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

type task struct {
	ctx context.Context
	msg model.NormalizedMessage
}

// Pool processes messages on a fixed set of goroutines fed by a bounded queue.
type Pool struct {
	proc    Processor
	replier Replier
	logger  *logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan task
	wg     sync.WaitGroup
}

// NewPool starts the workers.
func NewPool(proc Processor, replier Replier, cfg PoolConfig, log *logger.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	p := &Pool{
		proc:    proc,
		replier: replier,
		logger:  log.Named("dispatch"),
		queue:   make(chan task, cfg.QueueSize),
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.work()
	}
	return p
}

// Dispatch enqueues msg. The request context's values are kept but its
// cancellation is not, so the work outlives the request.
func (p *Pool) Dispatch(ctx context.Context, msg model.NormalizedMessage) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- task{ctx: context.WithoutCancel(ctx), msg: msg}:
		metrics.DispatchQueueDepth.Set(float64(len(p.queue)))
		metrics.DispatchTasksTotal.WithLabelValues(backendPool, "queued").Inc()
		return nil
	default:
		metrics.DispatchTasksTotal.WithLabelValues(backendPool, "dropped").Inc()
		p.logger.Warn("dispatch queue full, message dropped",
			zap.String("tenant_id", msg.TenantID),
			zap.String("channel", string(msg.Channel)),
			zap.String("user_id", msg.ExternalUserID),
		)
		return ErrQueueFull
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for t := range p.queue {
		metrics.DispatchQueueDepth.Set(float64(len(p.queue)))
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchTasksTotal.WithLabelValues(backendPool, "panic").Inc()
			p.logger.Error("dispatch task panicked",
				zap.String("tenant_id", t.msg.TenantID),
				zap.String("channel", string(t.msg.Channel)),
				zap.String("user_id", t.msg.ExternalUserID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	deliver(t.ctx, p.proc, p.replier, p.logger, backendPool, t.msg)
}

// Shutdown stops accepting work and waits for queued messages to finish or
// ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
