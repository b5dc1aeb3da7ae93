package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-lab/timetable-api/internal/models"
)

func newSettingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func TestSettingRepositoryList(t *testing.T) {
	db, mock, cleanup := newSettingRepoMock(t)
	defer cleanup()

	repo := NewSettingRepository(db)
	rows := sqlmock.NewRows([]string{"key", "value", "type", "description", "updated_by", "updated_at"}).
		AddRow("scheduler.periods_per_day", "30", "INTEGER", nil, "admin", time.Now()).
		AddRow("scheduler.weight_gap", "0.5", "FLOAT", nil, "admin", time.Now())
	mock.ExpectQuery("SELECT key, value").
		WillReturnRows(rows)

	result, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "30", result[0].Value)
}

func TestSettingRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newSettingRepoMock(t)
	defer cleanup()
	repo := NewSettingRepository(db)
	mock.ExpectExec("INSERT INTO scheduling_settings").
		WithArgs("scheduler.periods_per_day", "30", "INTEGER", sqlmock.AnyArg(), "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	setting := &models.SchedulingSetting{
		Key:       "scheduler.periods_per_day",
		Value:     "30",
		Type:      models.SettingTypeInteger,
		UpdatedBy: strPtr("admin"),
	}
	require.NoError(t, repo.Upsert(context.Background(), setting))
}

func TestSettingRepositoryBulkUpsert(t *testing.T) {
	db, mock, cleanup := newSettingRepoMock(t)
	defer cleanup()
	repo := NewSettingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scheduling_settings").
		WithArgs("scheduler.weight_preference", "1.5", "FLOAT", sqlmock.AnyArg(), "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO scheduling_settings").
		WithArgs("scheduler.annealing_iterations", "10000", "INTEGER", sqlmock.AnyArg(), "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	items := []models.SchedulingSetting{
		{Key: "scheduler.weight_preference", Value: "1.5", Type: models.SettingTypeFloat, UpdatedBy: strPtr("admin")},
		{Key: "scheduler.annealing_iterations", Value: "10000", Type: models.SettingTypeInteger, UpdatedBy: strPtr("admin")},
	}
	require.NoError(t, repo.BulkUpsert(context.Background(), items))
}

func strPtr(value string) *string {
	return &value
}
