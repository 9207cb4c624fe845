package workers

import (
	"chat-relay/domain"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingEnforcer struct {
	mu   sync.Mutex
	jobs []domain.RetentionJob
}

func (r *recordingEnforcer) Enforce(ctx context.Context, job domain.RetentionJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *recordingEnforcer) Jobs() []domain.RetentionJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RetentionJob(nil), r.jobs...)
}

func TestRetentionWorker_Drains_Queue(t *testing.T) {
	req := require.New(t)
	enforcer := &recordingEnforcer{}
	queue := NewRetentionQueue(slog.Default(), enforcer, 10, time.Second)
	worker := NewRetentionWorker(slog.Default(), queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	job := domain.RetentionJob{UserID: "alice", ChannelID: "general"}
	queue.Schedule(job)

	req.Eventually(func() bool { return len(enforcer.Jobs()) == 1 }, time.Second, 5*time.Millisecond)
	req.Equal(job, enforcer.Jobs()[0])
}

func TestRetentionQueue_Full_Runs_Out_Of_Band(t *testing.T) {
	req := require.New(t)
	enforcer := &recordingEnforcer{}
	// No worker and no buffer: every job overflows
	queue := NewRetentionQueue(slog.Default(), enforcer, 0, time.Second)

	for i := 0; i < 3; i++ {
		queue.Schedule(domain.RetentionJob{UserID: "alice", ChannelID: "general"})
	}
	queue.Wait()

	req.Len(enforcer.Jobs(), 3)
	req.Zero(queue.Pending())
}

func TestRetentionWorker_Stops_On_Cancel(t *testing.T) {
	req := require.New(t)
	queue := NewRetentionQueue(slog.Default(), &recordingEnforcer{}, 1, time.Second)
	worker := NewRetentionWorker(slog.Default(), queue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req.NoError(worker.Run(ctx))
}

func TestRetentionWorker_Cancel_Drains_Buffered_Jobs(t *testing.T) {
	req := require.New(t)
	enforcer := &recordingEnforcer{}
	queue := NewRetentionQueue(slog.Default(), enforcer, 10, time.Second)
	worker := NewRetentionWorker(slog.Default(), queue)

	// Given three jobs buffered before any worker picks them up
	for _, user := range []string{"alice", "bob", "carol"} {
		queue.Schedule(domain.RetentionJob{UserID: user, ChannelID: "general"})
	}

	// When the worker starts with its context already canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.NoError(worker.Run(ctx))
	queue.Wait()

	// Then every job was still enforced
	req.Len(enforcer.Jobs(), 3)
	req.Zero(queue.Pending())
}

func TestRetentionQueue_Wait_Runs_Buffered_Jobs_Without_Worker(t *testing.T) {
	req := require.New(t)
	enforcer := &recordingEnforcer{}
	queue := NewRetentionQueue(slog.Default(), enforcer, 10, time.Second)

	queue.Schedule(domain.RetentionJob{UserID: "alice", ChannelID: "general"})
	queue.Schedule(domain.RetentionJob{UserID: "bob", ChannelID: "general"})
	queue.Wait()

	req.Len(enforcer.Jobs(), 2)
	req.Zero(queue.Pending())
}
