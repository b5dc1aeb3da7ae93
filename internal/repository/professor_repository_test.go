package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-lab/timetable-api/internal/models"
)

func newProfessorRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestProfessorRepositoryList(t *testing.T) {
	db, mock, cleanup := newProfessorRepoMock(t)
	defer cleanup()
	repo := NewProfessorRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "full_name", "email", "active", "created_at", "updated_at"}).
		AddRow("p1", "PROF-001", "Ada Lovelace", nil, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, full_name, email, active, created_at, updated_at FROM professors WHERE 1=1 ORDER BY code ASC LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM professors WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.ProfessorFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfessorRepositoryListFiltersByActive(t *testing.T) {
	db, mock, cleanup := newProfessorRepoMock(t)
	defer cleanup()
	repo := NewProfessorRepository(db)

	active := true
	rows := sqlmock.NewRows([]string{"id", "code", "full_name", "email", "active", "created_at", "updated_at"})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, full_name, email, active, created_at, updated_at FROM professors WHERE 1=1 AND active = $1 ORDER BY code ASC LIMIT 20 OFFSET 0")).
		WithArgs(true).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM professors WHERE 1=1 AND active = $1")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	list, total, err := repo.List(context.Background(), models.ProfessorFilter{Active: &active})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfessorRepositoryCreateAndDeactivate(t *testing.T) {
	db, mock, cleanup := newProfessorRepoMock(t)
	defer cleanup()
	repo := NewProfessorRepository(db)

	mock.ExpectExec("INSERT INTO professors").
		WithArgs(sqlmock.AnyArg(), "PROF-001", "Ada Lovelace", sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	professor := &models.Professor{Code: "PROF-001", FullName: "Ada Lovelace", Active: true}
	require.NoError(t, repo.Create(context.Background(), professor))
	assert.NotEmpty(t, professor.ID)

	mock.ExpectExec("UPDATE professors SET active = false").
		WithArgs(sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfessorRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newProfessorRepoMock(t)
	defer cleanup()
	repo := NewProfessorRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM professors WHERE code = $1 LIMIT 1")).
		WithArgs("PROF-001").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsByCode(context.Background(), "PROF-001", "")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM professors WHERE code = $1 AND id <> $2 LIMIT 1")).
		WithArgs("PROF-001", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err = repo.ExistsByCode(context.Background(), "PROF-001", "p1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
