package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/univ-lab/timetable-api/internal/models"
)

// RunRepository persists timetable run metadata.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs the repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// DB exposes the underlying handle so result writers can share a transaction.
func (r *RunRepository) DB() *sqlx.DB {
	return r.db
}

// Create inserts a new run row with generated defaults.
func (r *RunRepository) Create(ctx context.Context, run *models.TimetableRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO timetable_runs (id, status, seed, params, config_snapshot, stats, assigned_count, unassigned_count, created_by, created_at, started_at, finished_at, error_message)
VALUES (:id, :status, :seed, :params, :config_snapshot, :stats, :assigned_count, :unassigned_count, :created_by, :created_at, :started_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create timetable run: %w", err)
	}
	return nil
}

// GetByID returns a run row by its identifier.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	const query = `SELECT id, status, seed, params, config_snapshot, stats, assigned_count, unassigned_count, created_by, created_at, started_at, finished_at, error_message
FROM timetable_runs WHERE id = $1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateRunParams defines the mutable fields of a run row.
type UpdateRunParams struct {
	Status          *models.RunStatus
	ConfigSnapshot  *types.JSONText
	Stats           *types.JSONText
	AssignedCount   *int
	UnassignedCount *int
	StartedAt       *time.Time
	FinishedAt      *time.Time
	ErrorMessage    *string
}

// Update persists the provided changes for a run row.
func (r *RunRepository) Update(ctx context.Context, id string, params UpdateRunParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.ConfigSnapshot != nil {
		set = append(set, fmt.Sprintf("config_snapshot = $%d", argPos))
		args = append(args, *params.ConfigSnapshot)
		argPos++
	}
	if params.Stats != nil {
		set = append(set, fmt.Sprintf("stats = $%d", argPos))
		args = append(args, *params.Stats)
		argPos++
	}
	if params.AssignedCount != nil {
		set = append(set, fmt.Sprintf("assigned_count = $%d", argPos))
		args = append(args, *params.AssignedCount)
		argPos++
	}
	if params.UnassignedCount != nil {
		set = append(set, fmt.Sprintf("unassigned_count = $%d", argPos))
		args = append(args, *params.UnassignedCount)
		argPos++
	}
	if params.StartedAt != nil {
		set = append(set, fmt.Sprintf("started_at = $%d", argPos))
		args = append(args, *params.StartedAt)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE timetable_runs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update timetable run: %w", err)
	}
	return nil
}

// List returns runs matching the filter with pagination metadata.
func (r *RunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.TimetableRun, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"created_at":  "created_at",
		"finished_at": "finished_at",
		"status":      "status",
	}
	sortBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortBy = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, status, seed, params, config_snapshot, stats, assigned_count, unassigned_count, created_by, created_at, started_at, finished_at, error_message
FROM timetable_runs WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, where, sortBy, order, size, offset)

	var runs []models.TimetableRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetable runs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM timetable_runs WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetable runs: %w", err)
	}

	return runs, total, nil
}

// ListQueued fetches queued runs in submission order, used for cold start
// recovery.
func (r *RunRepository) ListQueued(ctx context.Context, limit int) ([]models.TimetableRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, status, seed, params, config_snapshot, stats, assigned_count, unassigned_count, created_by, created_at, started_at, finished_at, error_message
FROM timetable_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var runs []models.TimetableRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued runs: %w", err)
	}
	return runs, nil
}

// Delete removes a run. Assignments and unassigned rows cascade with it.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM timetable_runs WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete timetable run: %w", err)
	}
	return nil
}
