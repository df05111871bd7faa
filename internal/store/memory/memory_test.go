package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/berginj/glovebrand/internal/branding"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore() (*Store, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	return New(clk), clk
}

func seedJob(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.Upsert(context.Background(), branding.Job{
		ID:      id,
		TeamURL: "https://hawks.example.com",
		Mode:    branding.ModeProposal,
		Stage:   branding.StageReceived,
	})
	require.NoError(t, err)
}

func TestUpdateStage_AdvancesStageAndTimestamps(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore()
	seedJob(t, s, "j1")

	clk.advance(time.Minute)
	require.NoError(t, s.UpdateStage(context.Background(), "j1", branding.StageValidated, branding.StageUpdate{}))

	job, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, branding.StageValidated, job.Stage)
	require.Equal(t, clk.now, job.UpdatedAt)
	require.Contains(t, job.StageTimestamps, branding.StageReceived)
	require.Contains(t, job.StageTimestamps, branding.StageValidated)
}

func TestUpdateStage_TimestampMapOnlyGrows(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore()
	seedJob(t, s, "j1")

	sequence := []branding.Stage{
		branding.StageQueued,
		branding.StageValidated,
		branding.StageCrawled,
		branding.StageValidated, // replayed checkpoint
		branding.StageLogoSelected,
	}
	seen := map[branding.Stage]struct{}{branding.StageReceived: {}}
	for _, stage := range sequence {
		clk.advance(time.Second)
		require.NoError(t, s.UpdateStage(context.Background(), "j1", stage, branding.StageUpdate{}))
		seen[stage] = struct{}{}

		job, err := s.Get(context.Background(), "j1")
		require.NoError(t, err)
		for stage := range seen {
			require.Contains(t, job.StageTimestamps, stage)
		}
	}

	// Replay updated the validated timestamp in place.
	job, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	require.True(t, job.StageTimestamps[branding.StageValidated].After(job.StageTimestamps[branding.StageCrawled]))
}

func TestUpdateStage_TerminalStageGuard(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore()
	seedJob(t, s, "j1")
	require.NoError(t, s.UpdateStage(context.Background(), "j1", branding.StageCanceled, branding.StageUpdate{}))

	// A late completed write from the same execution must not land.
	err := s.UpdateStage(context.Background(), "j1", branding.StageCompleted, branding.StageUpdate{})
	require.ErrorIs(t, err, branding.ErrTerminalStage)

	// Replaying the same terminal stage stays allowed.
	require.NoError(t, s.UpdateStage(context.Background(), "j1", branding.StageCanceled, branding.StageUpdate{}))

	job, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, branding.StageCanceled, job.Stage)
}

func TestUpdateStage_MergesWithoutClearing(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore()
	seedJob(t, s, "j1")

	require.NoError(t, s.UpdateStage(context.Background(), "j1", branding.StageCrawled, branding.StageUpdate{
		Outputs: &branding.Outputs{
			CrawlReport: &branding.ArtifactLocation{Path: "jobs/j1/crawl_report.json"},
		},
	}))
	require.NoError(t, s.UpdateStage(context.Background(), "j1", branding.StageLogoSelected, branding.StageUpdate{
		Outputs: &branding.Outputs{
			Logo: &branding.ArtifactLocation{Path: "jobs/j1/logo.svg"},
		},
	}))

	job, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	require.NotNil(t, job.Outputs.CrawlReport, "earlier output must survive later checkpoints")
	require.NotNil(t, job.Outputs.Logo)

	// An update without error fields leaves a stored error untouched.
	require.NoError(t, s.UpdateStage(context.Background(), "j1", branding.StageFailed, branding.StageUpdate{
		Error: "crawl failed",
	}))
	require.NoError(t, s.UpdateStage(context.Background(), "j1", branding.StageFailed, branding.StageUpdate{}))
	job, err = s.Get(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, "crawl failed", job.Error)
}

func TestUpdateStage_UnknownJob(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore()
	err := s.UpdateStage(context.Background(), "nope", branding.StageQueued, branding.StageUpdate{})
	require.ErrorIs(t, err, branding.ErrJobNotFound)
}

func TestListStale_FiltersByStageAndAge(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore()
	seedJob(t, s, "old-queued")
	require.NoError(t, s.UpdateStage(context.Background(), "old-queued", branding.StageQueued, branding.StageUpdate{}))

	clk.advance(30 * time.Minute)
	seedJob(t, s, "fresh-queued")
	require.NoError(t, s.UpdateStage(context.Background(), "fresh-queued", branding.StageQueued, branding.StageUpdate{}))
	seedJob(t, s, "old-but-running")

	cutoff := clk.now.Add(-10 * time.Minute)
	stale, err := s.ListStale(context.Background(), []branding.Stage{branding.StageQueued}, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "old-queued", stale[0].ID)
}

func TestLatestCompletedByTeamURL(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore()
	seedJob(t, s, "j1")
	require.NoError(t, s.UpdateStage(context.Background(), "j1", branding.StageCompleted, branding.StageUpdate{}))

	clk.advance(time.Hour)
	seedJob(t, s, "j2")
	require.NoError(t, s.UpdateStage(context.Background(), "j2", branding.StageCompleted, branding.StageUpdate{}))

	seedJob(t, s, "j3") // still running

	job, err := s.LatestCompletedByTeamURL(context.Background(), "https://hawks.example.com")
	require.NoError(t, err)
	require.Equal(t, "j2", job.ID)

	_, err = s.LatestCompletedByTeamURL(context.Background(), "https://other.example.com")
	require.ErrorIs(t, err, branding.ErrJobNotFound)
}

func TestListRecent_NewestFirst(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore()
	seedJob(t, s, "j1")
	clk.advance(time.Minute)
	seedJob(t, s, "j2")
	clk.advance(time.Minute)
	seedJob(t, s, "j3")

	jobs, err := s.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "j3", jobs[0].ID)
	require.Equal(t, "j2", jobs[1].ID)
}
