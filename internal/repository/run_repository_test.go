package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-lab/timetable-api/internal/models"
)

func newRunRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRunRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_runs")).
		WithArgs(sqlmock.AnyArg(), "QUEUED", int64(42), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0, "client-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.TimetableRun{Seed: 42, CreatedBy: "client-1"}
	require.NoError(t, repo.Create(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusQueued, run.Status)

	rows := sqlmock.NewRows([]string{"id", "status", "seed", "params", "config_snapshot", "stats", "assigned_count", "unassigned_count", "created_by", "created_at", "started_at", "finished_at", "error_message"}).
		AddRow(run.ID, "QUEUED", int64(42), `{"extras":{}}`, nil, nil, 0, 0, "client-1", time.Now(), nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status, seed, params, config_snapshot, stats, assigned_count, unassigned_count, created_by, created_at, started_at, finished_at, error_message FROM timetable_runs WHERE id = $1")).
		WithArgs(run.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Equal(t, int64(42), fetched.Seed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	now := time.Now()
	status := models.RunStatusFinished
	stats := types.JSONText(`{"assignment_rate":0.95}`)
	assigned := 19
	unassigned := 1
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_runs SET status = $1, stats = $2, assigned_count = $3, unassigned_count = $4, finished_at = $5 WHERE id = $6")).
		WithArgs(status, sqlmock.AnyArg(), assigned, unassigned, now, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "run-1", UpdateRunParams{
		Status:          &status,
		Stats:           &stats,
		AssignedCount:   &assigned,
		UnassignedCount: &unassigned,
		FinishedAt:      &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryUpdateWithNoFieldsIsNoop(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	require.NoError(t, repo.Update(context.Background(), "run-1", UpdateRunParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	status := models.RunStatusFinished
	rows := sqlmock.NewRows([]string{"id", "status", "seed", "params", "config_snapshot", "stats", "assigned_count", "unassigned_count", "created_by", "created_at", "started_at", "finished_at", "error_message"}).
		AddRow("run-1", "FINISHED", int64(7), `{"extras":{}}`, `{"periods_per_day":30}`, `{"assignment_rate":1}`, 20, 0, "client-1", time.Now(), time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status, seed, params, config_snapshot, stats, assigned_count, unassigned_count, created_by, created_at, started_at, finished_at, error_message FROM timetable_runs WHERE 1=1 AND status = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(status).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetable_runs WHERE 1=1 AND status = $1")).
		WithArgs(status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	runs, total, err := repo.List(context.Background(), models.RunFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 20, runs[0].AssignedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	rows := sqlmock.NewRows([]string{"id", "status", "seed", "params", "config_snapshot", "stats", "assigned_count", "unassigned_count", "created_by", "created_at", "started_at", "finished_at", "error_message"}).
		AddRow("run-1", "QUEUED", int64(1), `{"extras":{}}`, nil, nil, 0, 0, "client-1", time.Now(), nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status, seed, params, config_snapshot, stats, assigned_count, unassigned_count, created_by, created_at, started_at, finished_at, error_message FROM timetable_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	runs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "run-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
