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

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, section *models.Section) error
	Deactivate(ctx context.Context, id string) error
}

type professorFinder interface {
	FindByID(ctx context.Context, id string) (*models.Professor, error)
}

type classGroupFinder interface {
	FindByID(ctx context.Context, id string) (*models.ClassGroup, error)
}

// CreateSectionRequest represents payload for creating sections.
type CreateSectionRequest struct {
	Code          string `json:"code" validate:"required,max=30"`
	CourseName    string `json:"course_name" validate:"required"`
	ProfessorID   string `json:"professor_id" validate:"required,uuid4"`
	ClassGroupID  string `json:"class_group_id" validate:"required,uuid4"`
	RoomType      string `json:"room_type" validate:"required,max=50"`
	KnowledgeArea string `json:"knowledge_area" validate:"required,max=50"`
	Duration      int    `json:"duration" validate:"required,min=1"`
}

// UpdateSectionRequest represents payload for updating sections.
type UpdateSectionRequest struct {
	Code          string `json:"code" validate:"required,max=30"`
	CourseName    string `json:"course_name" validate:"required"`
	ProfessorID   string `json:"professor_id" validate:"required,uuid4"`
	ClassGroupID  string `json:"class_group_id" validate:"required,uuid4"`
	RoomType      string `json:"room_type" validate:"required,max=50"`
	KnowledgeArea string `json:"knowledge_area" validate:"required,max=50"`
	Duration      int    `json:"duration" validate:"required,min=1"`
	Active        *bool  `json:"active"`
}

// SectionService orchestrates course section operations.
type SectionService struct {
	repo       sectionRepository
	professors professorFinder
	groups     classGroupFinder
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSectionService constructs a SectionService.
func NewSectionService(repo sectionRepository, professors professorFinder, groups classGroupFinder, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, professors: professors, groups: groups, validator: validate, logger: logger}
}

// List returns sections plus pagination data.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
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
	return sections, pagination, nil
}

// Get returns a section by id.
func (s *SectionService) Get(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// Create registers a new section after checking its professor and class
// group exist.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureUniqueCode(ctx, code, ""); err != nil {
		return nil, err
	}
	if err := s.ensureReferences(ctx, req.ProfessorID, req.ClassGroupID); err != nil {
		return nil, err
	}

	section := &models.Section{
		Code:          code,
		CourseName:    strings.TrimSpace(req.CourseName),
		ProfessorID:   req.ProfessorID,
		ClassGroupID:  req.ClassGroupID,
		RoomType:      strings.ToLower(strings.TrimSpace(req.RoomType)),
		KnowledgeArea: strings.ToLower(strings.TrimSpace(req.KnowledgeArea)),
		Duration:      req.Duration,
		Active:        true,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	return section, nil
}

// Update modifies an existing section.
func (s *SectionService) Update(ctx context.Context, id string, req UpdateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureUniqueCode(ctx, code, id); err != nil {
		return nil, err
	}
	if err := s.ensureReferences(ctx, req.ProfessorID, req.ClassGroupID); err != nil {
		return nil, err
	}

	section.Code = code
	section.CourseName = strings.TrimSpace(req.CourseName)
	section.ProfessorID = req.ProfessorID
	section.ClassGroupID = req.ClassGroupID
	section.RoomType = strings.ToLower(strings.TrimSpace(req.RoomType))
	section.KnowledgeArea = strings.ToLower(strings.TrimSpace(req.KnowledgeArea))
	section.Duration = req.Duration
	if req.Active != nil {
		section.Active = *req.Active
	}

	if err := s.repo.Update(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}
	return section, nil
}

// Deactivate marks a section inactive so future runs skip it.
func (s *SectionService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate section")
	}
	return nil
}

func (s *SectionService) ensureUniqueCode(ctx context.Context, code, excludeID string) error {
	exists, err := s.repo.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check code uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "section code already used")
	}
	return nil
}

func (s *SectionService) ensureReferences(ctx context.Context, professorID, classGroupID string) error {
	if _, err := s.professors.FindByID(ctx, professorID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrValidation, "professor does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check professor")
	}
	if _, err := s.groups.FindByID(ctx, classGroupID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrValidation, "class group does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class group")
	}
	return nil
}
