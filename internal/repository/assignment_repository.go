package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univ-lab/timetable-api/internal/models"
)

// AssignmentRepository manages the committed placements of a run.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository builds the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores the placements of a run.
func (r *AssignmentRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.TimetableAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `INSERT INTO timetable_assignments (id, run_id, section_id, room_id, day, start_period, duration, score, created_at)
VALUES (:id, :run_id, :section_id, :room_id, :day, :start_period, :duration, :score, :created_at)`

	for i := range assignments {
		assignment := &assignments[i]
		if assignment.ID == "" {
			assignment.ID = uuid.NewString()
		}
		if assignment.CreatedAt.IsZero() {
			assignment.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, assignment); err != nil {
			return fmt.Errorf("insert timetable assignment: %w", err)
		}
	}
	return nil
}

// ListByRun returns the placements of a run joined with display context,
// ordered by day and start period.
func (r *AssignmentRepository) ListByRun(ctx context.Context, runID string) ([]models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.run_id, a.section_id, a.room_id, a.day, a.start_period, a.duration, a.score, a.created_at,
       s.code AS section_code, s.course_name, s.professor_id, p.full_name AS professor_name,
       s.class_group_id, g.code AS group_code, r.code AS room_code
FROM timetable_assignments a
JOIN sections s ON s.id = a.section_id
JOIN professors p ON p.id = s.professor_id
JOIN class_groups g ON g.id = s.class_group_id
JOIN rooms r ON r.id = a.room_id
WHERE a.run_id = $1
ORDER BY a.day ASC, a.start_period ASC, s.code ASC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, runID); err != nil {
		return nil, fmt.Errorf("list run assignments: %w", err)
	}
	return details, nil
}

// DeleteByRun clears stored placements before a re-run persists fresh ones.
func (r *AssignmentRepository) DeleteByRun(ctx context.Context, exec sqlx.ExtContext, runID string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM timetable_assignments WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete run assignments: %w", err)
	}
	return nil
}
