package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univ-lab/timetable-api/internal/models"
)

// AvailabilityRepository handles professor availability persistence.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs an AvailabilityRepository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByProfessor returns the availability grid of one professor ordered by
// day and period.
func (r *AvailabilityRepository) ListByProfessor(ctx context.Context, professorID string) ([]models.AvailabilitySlot, error) {
	const query = `SELECT id, professor_id, day, period, weight, created_at
FROM availability_slots WHERE professor_id = $1 ORDER BY day ASC, period ASC`
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, professorID); err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return slots, nil
}

// ReplaceForProfessor swaps the full availability grid of a professor inside
// one transaction. An empty slice clears the grid.
func (r *AvailabilityRepository) ReplaceForProfessor(ctx context.Context, professorID string, slots []models.AvailabilitySlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin availability tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_slots WHERE professor_id = $1`, professorID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear availability: %w", err)
	}

	const insert = `INSERT INTO availability_slots (id, professor_id, day, period, weight, created_at)
VALUES (:id, :professor_id, :day, :period, :weight, :created_at)`
	now := time.Now().UTC()
	for i := range slots {
		slot := &slots[i]
		slot.ProfessorID = professorID
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insert, slot); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert availability slot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit availability tx: %w", err)
	}
	return nil
}

// ListAll returns every stored availability slot, used when assembling run
// input.
func (r *AvailabilityRepository) ListAll(ctx context.Context) ([]models.AvailabilitySlot, error) {
	const query = `SELECT id, professor_id, day, period, weight, created_at
FROM availability_slots ORDER BY professor_id ASC, day ASC, period ASC`
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, fmt.Errorf("list all availability: %w", err)
	}
	return slots, nil
}
