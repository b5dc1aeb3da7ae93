package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/models"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
)

type classGroupRepository interface {
	List(ctx context.Context, filter models.ClassGroupFilter) ([]models.ClassGroup, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassGroup, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, group *models.ClassGroup) error
	Update(ctx context.Context, group *models.ClassGroup) error
	Deactivate(ctx context.Context, id string) error
}

// CreateClassGroupRequest represents payload for creating class groups.
// Regime and priority class are derived from the code and year when omitted.
type CreateClassGroupRequest struct {
	Code          string         `json:"code" validate:"required,min=2,max=30"`
	Year          int            `json:"year" validate:"required,min=1,max=6"`
	Regime        *models.Regime `json:"regime" validate:"omitempty,oneof=day night unrestricted"`
	PriorityClass *int           `json:"priority_class" validate:"omitempty,min=1"`
}

// UpdateClassGroupRequest represents payload for updating class groups.
type UpdateClassGroupRequest struct {
	Code          string         `json:"code" validate:"required,min=2,max=30"`
	Year          int            `json:"year" validate:"required,min=1,max=6"`
	Regime        *models.Regime `json:"regime" validate:"omitempty,oneof=day night unrestricted"`
	PriorityClass *int           `json:"priority_class" validate:"omitempty,min=1"`
	Active        *bool          `json:"active"`
}

// ClassGroupService orchestrates class group operations.
type ClassGroupService struct {
	repo      classGroupRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassGroupService constructs a ClassGroupService.
func NewClassGroupService(repo classGroupRepository, validate *validator.Validate, logger *zap.Logger) *ClassGroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassGroupService{repo: repo, validator: validate, logger: logger}
}

// List returns class groups plus pagination data.
func (s *ClassGroupService) List(ctx context.Context, filter models.ClassGroupFilter) ([]models.ClassGroup, *models.Pagination, error) {
	groups, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class groups")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return groups, pagination, nil
}

// Get returns a class group by id.
func (s *ClassGroupService) Get(ctx context.Context, id string) (*models.ClassGroup, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class group")
	}
	return group, nil
}

// Create registers a new class group, resolving regime and priority class
// from the code and year unless the request pins them.
func (s *ClassGroupService) Create(ctx context.Context, req CreateClassGroupRequest) (*models.ClassGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class group payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureUniqueCode(ctx, code, ""); err != nil {
		return nil, err
	}

	group := &models.ClassGroup{
		Code:          code,
		Year:          req.Year,
		Regime:        resolveRegime(code, req.Regime),
		PriorityClass: resolvePriorityClass(req.Year, req.PriorityClass),
		Active:        true,
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class group")
	}
	return group, nil
}

// Update modifies an existing class group, re-deriving regime and priority
// class when the request leaves them unset.
func (s *ClassGroupService) Update(ctx context.Context, id string, req UpdateClassGroupRequest) (*models.ClassGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class group payload")
	}

	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class group")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureUniqueCode(ctx, code, id); err != nil {
		return nil, err
	}

	group.Code = code
	group.Year = req.Year
	group.Regime = resolveRegime(code, req.Regime)
	group.PriorityClass = resolvePriorityClass(req.Year, req.PriorityClass)
	if req.Active != nil {
		group.Active = *req.Active
	}

	if err := s.repo.Update(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class group")
	}
	return group, nil
}

// Deactivate marks a class group inactive.
func (s *ClassGroupService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "class group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class group")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate class group")
	}
	return nil
}

func (s *ClassGroupService) ensureUniqueCode(ctx context.Context, code, excludeID string) error {
	exists, err := s.repo.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check code uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "class group code already used")
	}
	return nil
}

// resolveRegime reads the shift marker from the second character of the group
// code: D is the day shift, N the night shift, anything else is unrestricted.
func resolveRegime(code string, override *models.Regime) models.Regime {
	if override != nil {
		return *override
	}
	if len(code) < 2 {
		return models.RegimeUnrestricted
	}
	switch code[1] {
	case 'D':
		return models.RegimeDay
	case 'N':
		return models.RegimeNight
	default:
		return models.RegimeUnrestricted
	}
}

// resolvePriorityClass maps the study year onto a preference tier: first and
// third year groups get the early sub-range of their shift, everyone else the
// late one.
func resolvePriorityClass(year int, override *int) int {
	if override != nil {
		return *override
	}
	if year == 1 || year == 3 {
		return 1
	}
	return 2
}
