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

// ProfessorRepository handles professor persistence.
type ProfessorRepository struct {
	db *sqlx.DB
}

// NewProfessorRepository constructs a ProfessorRepository.
func NewProfessorRepository(db *sqlx.DB) *ProfessorRepository {
	return &ProfessorRepository{db: db}
}

// List returns professors matching the filter with pagination metadata.
func (r *ProfessorRepository) List(ctx context.Context, filter models.ProfessorFilter) ([]models.Professor, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR full_name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"code":       "code",
		"full_name":  "full_name",
		"created_at": "created_at",
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

	query := fmt.Sprintf(`SELECT id, code, full_name, email, active, created_at, updated_at
FROM professors WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, where, sortBy, order, size, offset)

	var professors []models.Professor
	if err := r.db.SelectContext(ctx, &professors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list professors: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM professors WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count professors: %w", err)
	}

	return professors, total, nil
}

// FindByID fetches one professor by id.
func (r *ProfessorRepository) FindByID(ctx context.Context, id string) (*models.Professor, error) {
	const query = `SELECT id, code, full_name, email, active, created_at, updated_at FROM professors WHERE id = $1`
	var professor models.Professor
	if err := r.db.GetContext(ctx, &professor, query, id); err != nil {
		return nil, err
	}
	return &professor, nil
}

// ExistsByCode reports whether a professor with the code already exists,
// optionally ignoring one row.
func (r *ProfessorRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM professors WHERE code = $1"
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
		return false, fmt.Errorf("check professor code: %w", err)
	}
	return true, nil
}

// Create inserts a new professor row.
func (r *ProfessorRepository) Create(ctx context.Context, professor *models.Professor) error {
	if professor.ID == "" {
		professor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	professor.CreatedAt = now
	professor.UpdatedAt = now

	const query = `INSERT INTO professors (id, code, full_name, email, active, created_at, updated_at)
VALUES (:id, :code, :full_name, :email, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, professor); err != nil {
		return fmt.Errorf("create professor: %w", err)
	}
	return nil
}

// Update persists mutable professor fields.
func (r *ProfessorRepository) Update(ctx context.Context, professor *models.Professor) error {
	professor.UpdatedAt = time.Now().UTC()
	const query = `UPDATE professors
SET full_name = :full_name, email = :email, active = :active, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, professor); err != nil {
		return fmt.Errorf("update professor: %w", err)
	}
	return nil
}

// UpsertByCode inserts the professor or refreshes the existing row with the
// same code. The stored id is written back into the struct.
func (r *ProfessorRepository) UpsertByCode(ctx context.Context, professor *models.Professor) error {
	if professor.ID == "" {
		professor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	professor.CreatedAt = now
	professor.UpdatedAt = now

	const query = `INSERT INTO professors (id, code, full_name, email, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (code) DO UPDATE
SET full_name = EXCLUDED.full_name, email = EXCLUDED.email, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
RETURNING id`
	if err := r.db.GetContext(ctx, &professor.ID, query, professor.ID, professor.Code, professor.FullName,
		professor.Email, professor.Active, now, now); err != nil {
		return fmt.Errorf("upsert professor: %w", err)
	}
	return nil
}

// IDsByCode maps professor codes to row ids.
func (r *ProfessorRepository) IDsByCode(ctx context.Context) (map[string]string, error) {
	const query = `SELECT id, code FROM professors`
	var rows []struct {
		ID   string `db:"id"`
		Code string `db:"code"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("map professor codes: %w", err)
	}
	index := make(map[string]string, len(rows))
	for _, row := range rows {
		index[row.Code] = row.ID
	}
	return index, nil
}

// Deactivate soft deletes a professor.
func (r *ProfessorRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE professors SET active = false, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate professor: %w", err)
	}
	return nil
}

// ListActive returns every active professor, used when assembling run input.
func (r *ProfessorRepository) ListActive(ctx context.Context) ([]models.Professor, error) {
	const query = `SELECT id, code, full_name, email, active, created_at, updated_at
FROM professors WHERE active = true ORDER BY code ASC`
	var professors []models.Professor
	if err := r.db.SelectContext(ctx, &professors, query); err != nil {
		return nil, fmt.Errorf("list active professors: %w", err)
	}
	return professors, nil
}
