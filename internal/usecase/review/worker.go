package review

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/replikanti/flowlint/internal/domain"
)

// Pool lifecycle states.
const (
	stateRunning int32 = iota
	stateDraining
	stateStopped
)

// defaultPollInterval is how long an idle worker sleeps between dequeues.
const defaultPollInterval = time.Second

// JobQueue is the inbound port the worker pool drains.
type JobQueue interface {
	Dequeue(ctx context.Context) (*domain.LeasedJob, error)
	Ack(ctx context.Context, id int64) error
	Nack(ctx context.Context, leased *domain.LeasedJob) (bool, error)
}

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, job domain.ReviewJob) error
}

// PoolOptions configures the worker pool.
type PoolOptions struct {
	// Workers is the number of concurrent job processors.
	Workers int

	// DrainTimeout bounds how long Drain waits for in-flight jobs.
	DrainTimeout time.Duration

	// PollInterval overrides the idle sleep between dequeues, for tests.
	PollInterval time.Duration
}

// Pool drains the job queue with a fixed set of workers and supports a
// bounded graceful drain: Running until asked to stop, Draining while
// in-flight jobs finish, then Stopped.
type Pool struct {
	queue  JobQueue
	proc   Processor
	logger Logger
	opts   PoolOptions

	state      atomic.Int32
	quit       chan struct{}
	wg         sync.WaitGroup
	cancelJobs context.CancelFunc
}

// NewPool wires a worker pool. Zero options fall back to one worker, a
// one-second poll interval, and a 45-second drain.
func NewPool(queue JobQueue, proc Processor, logger Logger, opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 45 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Pool{
		queue:  queue,
		proc:   proc,
		logger: logger,
		opts:   opts,
		quit:   make(chan struct{}),
	}
}

// Start launches the workers. It returns immediately; use Drain to stop.
//
// Cancellation of ctx stops the dequeue loops but does not cancel jobs
// already in flight: those run on a detached context so a shutdown signal
// lets them finish inside the drain window instead of aborting their
// outbound calls mid-job.
func (p *Pool) Start(ctx context.Context) {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancelJobs = cancel
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, jobCtx, i)
	}
	p.logger.LogInfo(ctx, "worker pool started", map[string]interface{}{
		"workers": p.opts.Workers,
	})
}

// Drain stops dequeuing and waits up to the drain timeout for in-flight jobs
// to finish. Only the first call drains; later calls return immediately, so
// a repeated shutdown signal cannot cut the first drain short.
func (p *Pool) Drain(ctx context.Context) {
	if !p.state.CompareAndSwap(stateRunning, stateDraining) {
		return
	}
	close(p.quit)
	p.logger.LogInfo(ctx, "worker pool draining", map[string]interface{}{
		"timeout": p.opts.DrainTimeout.String(),
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.LogInfo(ctx, "worker pool stopped", nil)
	case <-time.After(p.opts.DrainTimeout):
		// Abandoned jobs stay leased and will be redelivered after the
		// lease expires.
		p.logger.LogWarning(ctx, "drain timeout exceeded, abandoning in-flight jobs", nil)
	}
	if p.cancelJobs != nil {
		p.cancelJobs()
	}
	p.state.Store(stateStopped)
}

// run drains the queue until ctx is canceled or Drain closes the quit
// channel. Queue operations and job processing use jobCtx, which outlives
// ctx so in-flight work survives the shutdown signal.
func (p *Pool) run(ctx, jobCtx context.Context, worker int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		leased, err := p.queue.Dequeue(jobCtx)
		if err != nil {
			p.logger.LogError(jobCtx, "dequeue failed", map[string]interface{}{
				"worker": worker,
				"error":  err.Error(),
			})
			p.sleep(ctx)
			continue
		}
		if leased == nil {
			p.sleep(ctx)
			continue
		}

		p.handle(jobCtx, worker, leased)
	}
}

func (p *Pool) handle(ctx context.Context, worker int, leased *domain.LeasedJob) {
	fields := map[string]interface{}{
		"worker":   worker,
		"run_id":   uuid.NewString(),
		"job":      leased.Job.IdempotencyKey(),
		"attempt":  leased.Attempts,
		"queue_id": leased.ID,
	}

	p.logger.LogInfo(ctx, "processing job", fields)
	start := time.Now()

	if err := p.proc.Process(ctx, leased.Job); err != nil {
		fields["error"] = err.Error()
		fields["duration"] = time.Since(start).String()

		redelivered, nackErr := p.queue.Nack(ctx, leased)
		if nackErr != nil {
			fields["nack_error"] = nackErr.Error()
		}
		fields["redelivered"] = redelivered
		if redelivered {
			p.logger.LogWarning(ctx, "job failed, scheduled for retry", fields)
		} else {
			p.logger.LogError(ctx, "job failed permanently, dropped", fields)
		}
		return
	}

	if err := p.queue.Ack(ctx, leased.ID); err != nil {
		// The job succeeded; a lost ack means at most one redundant
		// redelivery, which the orchestrator handles idempotently.
		fields["error"] = err.Error()
		p.logger.LogWarning(ctx, "failed to ack completed job", fields)
		return
	}

	fields["duration"] = time.Since(start).String()
	p.logger.LogInfo(ctx, "job completed", fields)
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-time.After(p.opts.PollInterval):
	case <-p.quit:
	case <-ctx.Done():
	}
}
