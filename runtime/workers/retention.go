package workers

import (
	"chat-relay/domain"
	"context"
	"log/slog"
	"sync"
	"time"
)

type Enforcer interface {
	Enforce(ctx context.Context, job domain.RetentionJob)
}

// RetentionQueue hands retention jobs to the workers without ever blocking a send.
// When the buffer is full the job runs in a detached goroutine instead of
// being dropped, so every append is eventually followed by a retention pass.
type RetentionQueue struct {
	log      *slog.Logger
	enforcer Enforcer
	jobs     chan domain.RetentionJob
	timeout  time.Duration
	overflow sync.WaitGroup
}

func NewRetentionQueue(log *slog.Logger, enforcer Enforcer, bufferSize int, timeout time.Duration) *RetentionQueue {
	return &RetentionQueue{
		log:      log,
		enforcer: enforcer,
		jobs:     make(chan domain.RetentionJob, bufferSize),
		timeout:  timeout,
	}
}

func (q *RetentionQueue) Schedule(job domain.RetentionJob) {
	select {
	case q.jobs <- job:
	default:
		q.log.Warn("Retention queue full, running job out of band", "user_id", job.UserID, "channel_id", job.ChannelID)
		q.overflow.Add(1)
		go func() {
			defer q.overflow.Done()
			q.run(context.Background(), job)
		}()
	}
}

// Wait blocks until every out of band job has finished, then runs whatever
// is still buffered. Call it once the workers are stopped.
func (q *RetentionQueue) Wait() {
	q.overflow.Wait()
	q.drain()
}

// drain runs the buffered jobs without waiting for new ones.
func (q *RetentionQueue) drain() int {
	drained := 0
	for {
		select {
		case job := <-q.jobs:
			q.run(context.Background(), job)
			drained++
		default:
			return drained
		}
	}
}

func (q *RetentionQueue) Pending() int {
	return len(q.jobs)
}

func (q *RetentionQueue) run(ctx context.Context, job domain.RetentionJob) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	q.enforcer.Enforce(ctx, job)
}

// RetentionWorker drains the queue, several of them may share one queue.
type RetentionWorker struct {
	log   *slog.Logger
	queue *RetentionQueue
}

func NewRetentionWorker(log *slog.Logger, queue *RetentionQueue) RetentionWorker {
	return RetentionWorker{log: log, queue: queue}
}

func (w RetentionWorker) Run(ctx context.Context) error {
	for {
		select {
		case job := <-w.queue.jobs:
			w.queue.run(context.WithoutCancel(ctx), job)
		case <-ctx.Done():
			// Buffered jobs still run, each under its own timeout
			drained := w.queue.drain()
			w.log.Debug("Context done, stopping retention worker", "drained", drained)
			return nil
		}
	}
}
