package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/berginj/glovebrand/internal/branding"
	queuemem "github.com/berginj/glovebrand/internal/queue/memory"
	storemem "github.com/berginj/glovebrand/internal/store/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSweeper(t *testing.T, queue branding.Queue) (*Sweeper, *storemem.Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	store := storemem.New(clk)
	return New(DefaultConfig(), store, queue, clk, nil), store, clk
}

func seedJob(t *testing.T, store *storemem.Store, id string, stage branding.Stage) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, branding.Job{
		ID:      id,
		TeamURL: "https://hawks.example.com",
		Mode:    branding.ModeProposal,
		Stage:   branding.StageReceived,
	}))
	if stage != branding.StageReceived {
		require.NoError(t, store.UpdateStage(ctx, id, stage, branding.StageUpdate{}))
	}
}

func TestSweep_RequeuesOldQueuedJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	queue := queuemem.New(8, 5)
	s, store, clk := newTestSweeper(t, queue)
	seedJob(t, store, "j1", branding.StageQueued)
	clk.advance(10 * time.Minute)

	require.NoError(t, s.Sweep(ctx))

	job, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, branding.StageQueued, job.Stage)
	require.Equal(t, 1, job.RetryCount)
	require.NotNil(t, job.LastRetryAt)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Active)
}

func TestSweep_MaxRetriesExceededFailsInsteadOfRequeue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	queue := queuemem.New(8, 5)
	s, store, clk := newTestSweeper(t, queue)
	seedJob(t, store, "j1", branding.StageQueued)
	atCap := 2
	require.NoError(t, store.UpdateStage(ctx, "j1", branding.StageQueued, branding.StageUpdate{RetryCount: &atCap}))
	clk.advance(10 * time.Minute)

	require.NoError(t, s.Sweep(ctx))

	job, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, branding.StageFailed, job.Stage)
	require.Contains(t, job.Error, "auto-retry limit")
	require.Equal(t, 3, job.RetryCount)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Active)
}

func TestSweep_NoQueueFailsRetryCandidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, store, clk := newTestSweeper(t, nil)
	seedJob(t, store, "j1", branding.StageQueued)
	clk.advance(10 * time.Minute)

	require.NoError(t, s.Sweep(ctx))

	job, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, branding.StageFailed, job.Stage)
	require.Contains(t, job.Error, "cannot be retried automatically")
}

func TestSweep_StalledInProgressJobFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	queue := queuemem.New(8, 5)
	s, store, clk := newTestSweeper(t, queue)
	seedJob(t, store, "j1", branding.StageCrawled)
	clk.advance(30 * time.Minute)

	require.NoError(t, s.Sweep(ctx))

	job, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, branding.StageFailed, job.Stage)
	require.Contains(t, job.Error, "stalled in stage 'crawled'")

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Active, "stalled jobs are failed, never requeued")
}

func TestSweep_FreshJobsUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	queue := queuemem.New(8, 5)
	s, store, clk := newTestSweeper(t, queue)
	seedJob(t, store, "j1", branding.StageQueued)
	seedJob(t, store, "j2", branding.StageCrawled)
	clk.advance(time.Minute)

	require.NoError(t, s.Sweep(ctx))

	for _, id := range []string{"j1", "j2"} {
		job, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotEqual(t, branding.StageFailed, job.Stage)
		require.Zero(t, job.RetryCount)
	}
}

func TestRequeueDeadLetters_OperatorPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	queue := queuemem.New(8, 1)
	s, store, clk := newTestSweeper(t, queue)
	seedJob(t, store, "j1", branding.StageQueued)
	clk.advance(time.Minute)

	require.NoError(t, queue.Send(ctx, branding.Message{JobID: "j1", TeamURL: "https://hawks.example.com", Mode: branding.ModeProposal}))

	// Exhaust delivery so the message parks on the dead-letter queue.
	recvCtx, cancel := context.WithCancel(ctx)
	err := queue.Receive(recvCtx, func(context.Context, branding.Message) error {
		cancel()
		return errors.New("handler blew up")
	})
	require.ErrorIs(t, err, context.Canceled)

	parked, err := queue.PeekDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, parked, 1)

	msgs, err := s.RequeueDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "j1", msgs[0].JobID)

	job, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, branding.StageQueued, job.Stage)
	require.Equal(t, 1, job.RetryCount)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Active)
	require.Zero(t, stats.DeadLetters)
}
