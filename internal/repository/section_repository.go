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

// SectionRepository handles course section persistence.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs a SectionRepository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns sections matching the filter with pagination metadata.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.ClassGroupID != "" {
		conditions = append(conditions, fmt.Sprintf("class_group_id = $%d", len(args)+1))
		args = append(args, filter.ClassGroupID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR course_name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"code":        "code",
		"course_name": "course_name",
		"duration":    "duration",
		"created_at":  "created_at",
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

	query := fmt.Sprintf(`SELECT id, code, course_name, professor_id, class_group_id, room_type, knowledge_area, duration, active, created_at, updated_at
FROM sections WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, where, sortBy, order, size, offset)

	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sections WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}

	return sections, total, nil
}

// FindByID fetches one section by id.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, code, course_name, professor_id, class_group_id, room_type, knowledge_area, duration, active, created_at, updated_at
FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// ExistsByCode reports whether a section with the code already exists,
// optionally ignoring one row.
func (r *SectionRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM sections WHERE code = $1"
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
		return false, fmt.Errorf("check section code: %w", err)
	}
	return true, nil
}

// Create inserts a new section row.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	section.CreatedAt = now
	section.UpdatedAt = now

	const query = `INSERT INTO sections (id, code, course_name, professor_id, class_group_id, room_type, knowledge_area, duration, active, created_at, updated_at)
VALUES (:id, :code, :course_name, :professor_id, :class_group_id, :room_type, :knowledge_area, :duration, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update persists mutable section fields.
func (r *SectionRepository) Update(ctx context.Context, section *models.Section) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sections
SET course_name = :course_name, professor_id = :professor_id, class_group_id = :class_group_id,
    room_type = :room_type, knowledge_area = :knowledge_area, duration = :duration, active = :active,
    updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// UpsertByCode inserts the section or refreshes the existing row with the
// same code. The stored id is written back into the struct.
func (r *SectionRepository) UpsertByCode(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	section.CreatedAt = now
	section.UpdatedAt = now

	const query = `INSERT INTO sections (id, code, course_name, professor_id, class_group_id, room_type, knowledge_area, duration, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (code) DO UPDATE
SET course_name = EXCLUDED.course_name, professor_id = EXCLUDED.professor_id,
    class_group_id = EXCLUDED.class_group_id, room_type = EXCLUDED.room_type,
    knowledge_area = EXCLUDED.knowledge_area, duration = EXCLUDED.duration,
    active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
RETURNING id`
	if err := r.db.GetContext(ctx, &section.ID, query, section.ID, section.Code, section.CourseName,
		section.ProfessorID, section.ClassGroupID, section.RoomType, section.KnowledgeArea,
		section.Duration, section.Active, now, now); err != nil {
		return fmt.Errorf("upsert section: %w", err)
	}
	return nil
}

// Deactivate soft deletes a section.
func (r *SectionRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE sections SET active = false, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate section: %w", err)
	}
	return nil
}

// ListForScheduling returns every active section joined with its class group
// regime and priority, restricted to active groups and professors so a run
// never schedules retired catalog rows.
func (r *SectionRepository) ListForScheduling(ctx context.Context) ([]models.SchedulingSection, error) {
	const query = `SELECT s.id, s.code, s.professor_id, s.class_group_id, s.room_type, s.knowledge_area, s.duration,
       g.regime, g.priority_class
FROM sections s
JOIN class_groups g ON g.id = s.class_group_id
JOIN professors p ON p.id = s.professor_id
WHERE s.active = true AND g.active = true AND p.active = true
ORDER BY s.code ASC`
	var sections []models.SchedulingSection
	if err := r.db.SelectContext(ctx, &sections, query); err != nil {
		return nil, fmt.Errorf("list sections for scheduling: %w", err)
	}
	return sections, nil
}
