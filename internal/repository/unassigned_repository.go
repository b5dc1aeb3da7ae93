package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univ-lab/timetable-api/internal/models"
)

// UnassignedRepository manages the sections a run failed to place.
type UnassignedRepository struct {
	db *sqlx.DB
}

// NewUnassignedRepository builds the repository.
func NewUnassignedRepository(db *sqlx.DB) *UnassignedRepository {
	return &UnassignedRepository{db: db}
}

func (r *UnassignedRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores the unplaced sections of a run.
func (r *UnassignedRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.UnassignedSection) error {
	if len(rows) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `INSERT INTO unassigned_sections (id, run_id, section_id, reason, created_at)
VALUES (:id, :run_id, :section_id, :reason, :created_at)`

	for i := range rows {
		row := &rows[i]
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, row); err != nil {
			return fmt.Errorf("insert unassigned section: %w", err)
		}
	}
	return nil
}

// ListByRun returns the unplaced sections of a run joined with display
// context, ordered by section code.
func (r *UnassignedRepository) ListByRun(ctx context.Context, runID string) ([]models.UnassignedDetail, error) {
	const query = `SELECT u.id, u.run_id, u.section_id, u.reason, u.created_at,
       s.code AS section_code, s.course_name, p.full_name AS professor_name, g.code AS group_code
FROM unassigned_sections u
JOIN sections s ON s.id = u.section_id
JOIN professors p ON p.id = s.professor_id
JOIN class_groups g ON g.id = s.class_group_id
WHERE u.run_id = $1
ORDER BY s.code ASC`
	var details []models.UnassignedDetail
	if err := r.db.SelectContext(ctx, &details, query, runID); err != nil {
		return nil, fmt.Errorf("list unassigned sections: %w", err)
	}
	return details, nil
}

// DeleteByRun clears stored rows before a re-run persists fresh ones.
func (r *UnassignedRepository) DeleteByRun(ctx context.Context, exec sqlx.ExtContext, runID string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM unassigned_sections WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete unassigned sections: %w", err)
	}
	return nil
}
