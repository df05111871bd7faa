package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/berginj/glovebrand/internal/branding"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock, "branding_jobs", fixedClock{now: testNow})
	require.NoError(t, err)
	return store, mock
}

func TestUpsert_InsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO branding_jobs").
		WithArgs(
			"j1", "https://hawks.example.com", "proposal", "", "received",
			testNow, testNow, pgxmock.AnyArg(), 0, (*time.Time)(nil),
			"", "", false, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Upsert(context.Background(), branding.Job{
		ID:      "j1",
		TeamURL: "https://hawks.example.com",
		Mode:    branding.ModeProposal,
		Stage:   branding.StageReceived,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_RequiresID(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	err := store.Upsert(context.Background(), branding.Job{})
	require.Error(t, err)
}

func TestUpdateStage_MergesRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE branding_jobs SET").
		WithArgs(
			"j1", "crawled", testNow, pgxmock.AnyArg(), pgxmock.AnyArg(),
			"", "", (*int)(nil), (*time.Time)(nil),
			(*bool)(nil), (*bool)(nil), []byte(nil), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateStage(context.Background(), "j1", branding.StageCrawled, branding.StageUpdate{
		Outputs: &branding.Outputs{
			CrawlReport: &branding.ArtifactLocation{Path: "jobs/j1/crawl_report.json"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStage_TerminalConflict(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE branding_jobs SET").
		WithArgs(
			"j1", "completed", testNow, pgxmock.AnyArg(), pgxmock.AnyArg(),
			"", "", (*int)(nil), (*time.Time)(nil),
			(*bool)(nil), (*bool)(nil), []byte(nil), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT stage FROM branding_jobs").
		WithArgs("j1").
		WillReturnRows(pgxmock.NewRows([]string{"stage"}).AddRow("canceled"))

	err := store.UpdateStage(context.Background(), "j1", branding.StageCompleted, branding.StageUpdate{})
	require.ErrorIs(t, err, branding.ErrTerminalStage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStage_MissingJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE branding_jobs SET").
		WithArgs(
			"nope", "queued", testNow, pgxmock.AnyArg(), pgxmock.AnyArg(),
			"", "", (*int)(nil), (*time.Time)(nil),
			(*bool)(nil), (*bool)(nil), []byte(nil), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT stage FROM branding_jobs").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"stage"}))

	err := store.UpdateStage(context.Background(), "nope", branding.StageQueued, branding.StageUpdate{})
	require.ErrorIs(t, err, branding.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func jobRowColumns() []string {
	return []string{
		"job_id", "team_url", "mode", "instance_id", "stage", "created_at", "updated_at",
		"stage_timestamps", "retry_count", "last_retry_at", "error", "error_details",
		"autofill_attempted", "autofill_succeeded", "wizard_warnings", "outputs",
	}
}

func TestGet_ScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM branding_jobs WHERE job_id").
		WithArgs("j1").
		WillReturnRows(pgxmock.NewRows(jobRowColumns()).AddRow(
			"j1", "https://hawks.example.com", "autofill", "inst-1", "completed",
			testNow, testNow,
			[]byte(`{"received":"2026-08-01T12:00:00Z"}`), 1, (*time.Time)(nil),
			"", "", true, true,
			[]byte(`["file input missing"]`),
			[]byte(`{"logo":{"path":"jobs/j1/logo.svg","url":"gs://b/jobs/j1/logo.svg"}}`),
		))

	job, err := store.Get(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, branding.ModeAutofill, job.Mode)
	require.Equal(t, branding.StageCompleted, job.Stage)
	require.Equal(t, 1, job.RetryCount)
	require.Equal(t, []string{"file input missing"}, job.WizardWarnings)
	require.NotNil(t, job.Outputs.Logo)
	require.Equal(t, "jobs/j1/logo.svg", job.Outputs.Logo.Path)
	require.Contains(t, job.StageTimestamps, branding.StageReceived)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM branding_jobs WHERE job_id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(jobRowColumns()))

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, branding.ErrJobNotFound)
}

func TestListStale_QueriesByStageSet(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cutoff := testNow.Add(-5 * time.Minute)
	mock.ExpectQuery("WHERE stage = ANY").
		WithArgs([]string{"queued", "received"}, cutoff, 25).
		WillReturnRows(pgxmock.NewRows(jobRowColumns()).AddRow(
			"j1", "https://hawks.example.com", "proposal", "", "queued",
			testNow.Add(-time.Hour), testNow.Add(-time.Hour),
			[]byte(`{}`), 0, (*time.Time)(nil), "", "", false, false,
			[]byte(`null`), []byte(`{}`),
		))

	jobs, err := store.ListStale(context.Background(),
		[]branding.Stage{branding.StageQueued, branding.StageReceived}, cutoff, 25)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, branding.StageQueued, jobs[0].Stage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestCompletedByTeamURL_UsesCompletedFilter(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("WHERE team_url = (.+) AND stage = 'completed'").
		WithArgs("https://hawks.example.com").
		WillReturnRows(pgxmock.NewRows(jobRowColumns()).AddRow(
			"j9", "https://hawks.example.com", "proposal", "", "completed",
			testNow, testNow, []byte(`{}`), 0, (*time.Time)(nil),
			"", "", false, false, []byte(`null`), []byte(`{}`),
		))

	job, err := store.LatestCompletedByTeamURL(context.Background(), "https://hawks.example.com")
	require.NoError(t, err)
	require.Equal(t, "j9", job.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
