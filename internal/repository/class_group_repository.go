package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univ-lab/timetable-api/internal/models"
)

// ClassGroupRepository handles class group persistence.
type ClassGroupRepository struct {
	db *sqlx.DB
}

// NewClassGroupRepository constructs a ClassGroupRepository.
func NewClassGroupRepository(db *sqlx.DB) *ClassGroupRepository {
	return &ClassGroupRepository{db: db}
}

// List returns class groups matching the filter with pagination metadata.
func (r *ClassGroupRepository) List(ctx context.Context, filter models.ClassGroupFilter) ([]models.ClassGroup, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Regime != nil {
		conditions = append(conditions, fmt.Sprintf("regime = $%d", len(args)+1))
		args = append(args, *filter.Regime)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("code ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"code":           "code",
		"year":           "year",
		"priority_class": "priority_class",
		"created_at":     "created_at",
	}
	sortBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortBy = "code"
	}
	order := "ASC"
	if strings.EqualFold(filter.SortOrder, "desc") {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT id, code, year, regime, priority_class, active, created_at, updated_at
FROM class_groups WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, where, sortBy, order, size, offset)

	var groups []models.ClassGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class groups: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM class_groups WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count class groups: %w", err)
	}

	return groups, total, nil
}

// FindByID fetches one class group by id.
func (r *ClassGroupRepository) FindByID(ctx context.Context, id string) (*models.ClassGroup, error) {
	const query = `SELECT id, code, year, regime, priority_class, active, created_at, updated_at
FROM class_groups WHERE id = $1`
	var group models.ClassGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// ExistsByCode reports whether a class group with the code already exists,
// optionally ignoring one row.
func (r *ClassGroupRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM class_groups WHERE code = $1"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class group code: %w", err)
	}
	return true, nil
}

// Create inserts a new class group row.
func (r *ClassGroupRepository) Create(ctx context.Context, group *models.ClassGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	const query = `INSERT INTO class_groups (id, code, year, regime, priority_class, active, created_at, updated_at)
VALUES (:id, :code, :year, :regime, :priority_class, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create class group: %w", err)
	}
	return nil
}

// Update persists mutable class group fields.
func (r *ClassGroupRepository) Update(ctx context.Context, group *models.ClassGroup) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_groups
SET year = :year, regime = :regime, priority_class = :priority_class, active = :active, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("update class group: %w", err)
	}
	return nil
}

// UpsertByCode inserts the class group or refreshes the existing row with
// the same code. The stored id is written back into the struct.
func (r *ClassGroupRepository) UpsertByCode(ctx context.Context, group *models.ClassGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	const query = `INSERT INTO class_groups (id, code, year, regime, priority_class, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (code) DO UPDATE
SET year = EXCLUDED.year, regime = EXCLUDED.regime, priority_class = EXCLUDED.priority_class,
    active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
RETURNING id`
	if err := r.db.GetContext(ctx, &group.ID, query, group.ID, group.Code, group.Year, group.Regime,
		group.PriorityClass, group.Active, now, now); err != nil {
		return fmt.Errorf("upsert class group: %w", err)
	}
	return nil
}

// IDsByCode maps class group codes to row ids.
func (r *ClassGroupRepository) IDsByCode(ctx context.Context) (map[string]string, error) {
	const query = `SELECT id, code FROM class_groups`
	var rows []struct {
		ID   string `db:"id"`
		Code string `db:"code"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("map class group codes: %w", err)
	}
	index := make(map[string]string, len(rows))
	for _, row := range rows {
		index[row.Code] = row.ID
	}
	return index, nil
}

// Deactivate soft deletes a class group.
func (r *ClassGroupRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE class_groups SET active = false, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate class group: %w", err)
	}
	return nil
}
