package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/models"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
)

type availabilityRepository interface {
	ListByProfessor(ctx context.Context, professorID string) ([]models.AvailabilitySlot, error)
	ReplaceForProfessor(ctx context.Context, professorID string, slots []models.AvailabilitySlot) error
}

// AvailabilitySlotInput is one preference cell in a replace payload.
type AvailabilitySlotInput struct {
	Day    int `json:"day" validate:"min=0,max=4"`
	Period int `json:"period" validate:"required,min=1"`
	Weight int `json:"weight" validate:"min=0,max=1"`
}

// ReplaceAvailabilityRequest replaces the full preference grid of one
// professor. Cells left out of the payload are treated as weight zero.
type ReplaceAvailabilityRequest struct {
	Slots []AvailabilitySlotInput `json:"slots" validate:"dive"`
}

// AvailabilityService manages professor availability preferences.
type AvailabilityService struct {
	repo       availabilityRepository
	professors professorFinder
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(repo availabilityRepository, professors professorFinder, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{repo: repo, professors: professors, validator: validate, logger: logger}
}

// ListByProfessor returns the stored preference cells of one professor.
func (s *AvailabilityService) ListByProfessor(ctx context.Context, professorID string) ([]models.AvailabilitySlot, error) {
	if err := s.ensureProfessor(ctx, professorID); err != nil {
		return nil, err
	}
	slots, err := s.repo.ListByProfessor(ctx, professorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability")
	}
	return slots, nil
}

// Replace swaps the complete preference grid of a professor in one
// transaction. An empty slot list clears the grid.
func (s *AvailabilityService) Replace(ctx context.Context, professorID string, req ReplaceAvailabilityRequest) ([]models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if err := s.ensureProfessor(ctx, professorID); err != nil {
		return nil, err
	}

	seen := make(map[[2]int]bool, len(req.Slots))
	slots := make([]models.AvailabilitySlot, 0, len(req.Slots))
	for _, input := range req.Slots {
		cell := [2]int{input.Day, input.Period}
		if seen[cell] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate availability cell day %d period %d", input.Day, input.Period))
		}
		seen[cell] = true
		slots = append(slots, models.AvailabilitySlot{
			ProfessorID: professorID,
			Day:         input.Day,
			Period:      input.Period,
			Weight:      input.Weight,
		})
	}

	if err := s.repo.ReplaceForProfessor(ctx, professorID, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace availability")
	}

	stored, err := s.repo.ListByProfessor(ctx, professorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload availability")
	}
	return stored, nil
}

func (s *AvailabilityService) ensureProfessor(ctx context.Context, professorID string) error {
	if _, err := s.professors.FindByID(ctx, professorID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check professor")
	}
	return nil
}
