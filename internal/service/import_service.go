package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/csvio"
	"github.com/univ-lab/timetable-api/internal/dto"
	"github.com/univ-lab/timetable-api/internal/models"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
)

type importProfessorStore interface {
	UpsertByCode(ctx context.Context, professor *models.Professor) error
	IDsByCode(ctx context.Context) (map[string]string, error)
}

type importClassGroupStore interface {
	UpsertByCode(ctx context.Context, group *models.ClassGroup) error
	IDsByCode(ctx context.Context) (map[string]string, error)
}

type importRoomStore interface {
	UpsertByCode(ctx context.Context, room *models.Room) error
}

type importSectionStore interface {
	UpsertByCode(ctx context.Context, section *models.Section) error
}

type importAvailabilityStore interface {
	ReplaceForProfessor(ctx context.Context, professorID string, slots []models.AvailabilitySlot) error
}

// ImportConfig bounds a single upload.
type ImportConfig struct {
	MaxRows   int
	Delimiter rune
}

// ImportService ingests semicolon-delimited catalog spreadsheets. Rows are
// upserted by code, so re-uploading a corrected file is always safe. All rows
// are validated before anything is written.
type ImportService struct {
	professors   importProfessorStore
	groups       importClassGroupStore
	rooms        importRoomStore
	sections     importSectionStore
	availability importAvailabilityStore
	logger       *zap.Logger
	cfg          ImportConfig
}

// NewImportService constructs an ImportService instance.
func NewImportService(
	professors importProfessorStore,
	groups importClassGroupStore,
	rooms importRoomStore,
	sections importSectionStore,
	availability importAvailabilityStore,
	logger *zap.Logger,
	cfg ImportConfig,
) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = csvio.DefaultDelimiter
	}
	return &ImportService{
		professors:   professors,
		groups:       groups,
		rooms:        rooms,
		sections:     sections,
		availability: availability,
		logger:       logger,
		cfg:          cfg,
	}
}

// Import dispatches an upload to the loader for the given entity.
func (s *ImportService) Import(ctx context.Context, entity string, r io.Reader) (*dto.ImportSummary, error) {
	switch entity {
	case "professors":
		return s.importProfessors(ctx, r)
	case "class-groups":
		return s.importClassGroups(ctx, r)
	case "rooms":
		return s.importRooms(ctx, r)
	case "sections":
		return s.importSections(ctx, r)
	case "availability":
		return s.importAvailability(ctx, r)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown import entity %q", entity))
	}
}

func (s *ImportService) importProfessors(ctx context.Context, r io.Reader) (*dto.ImportSummary, error) {
	records, err := csvio.ReadProfessors(r, s.cfg.Delimiter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to parse professors file")
	}
	if err := s.checkRowCount(len(records)); err != nil {
		return nil, err
	}

	seen := map[string]int{}
	professors := make([]*models.Professor, 0, len(records))
	for i, rec := range records {
		row := dataRow(i)
		code := strings.ToUpper(strings.TrimSpace(rec.Code))
		if code == "" {
			return nil, rowError(row, "code is required")
		}
		if first, ok := seen[code]; ok {
			return nil, rowError(row, fmt.Sprintf("code %s already used on row %d", code, first))
		}
		seen[code] = row
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			return nil, rowError(row, "name is required")
		}
		professor := &models.Professor{Code: code, FullName: name, Active: true}
		if email := strings.TrimSpace(rec.Email); email != "" {
			professor.Email = &email
		}
		professors = append(professors, professor)
	}

	for _, professor := range professors {
		if err := s.professors.UpsertByCode(ctx, professor); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save professors")
		}
	}

	s.logger.Sugar().Infow("professors imported", "count", len(professors))
	return &dto.ImportSummary{Professors: len(professors)}, nil
}

func (s *ImportService) importClassGroups(ctx context.Context, r io.Reader) (*dto.ImportSummary, error) {
	records, err := csvio.ReadClassGroups(r, s.cfg.Delimiter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to parse class groups file")
	}
	if err := s.checkRowCount(len(records)); err != nil {
		return nil, err
	}

	seen := map[string]int{}
	groups := make([]*models.ClassGroup, 0, len(records))
	for i, rec := range records {
		row := dataRow(i)
		code := strings.ToUpper(strings.TrimSpace(rec.Code))
		if code == "" {
			return nil, rowError(row, "code is required")
		}
		if first, ok := seen[code]; ok {
			return nil, rowError(row, fmt.Sprintf("code %s already used on row %d", code, first))
		}
		seen[code] = row
		if rec.Year < 1 || rec.Year > 6 {
			return nil, rowError(row, fmt.Sprintf("year %d out of range 1..6", rec.Year))
		}
		groups = append(groups, &models.ClassGroup{
			Code:          code,
			Year:          rec.Year,
			Regime:        resolveRegime(code, nil),
			PriorityClass: resolvePriorityClass(rec.Year, nil),
			Active:        true,
		})
	}

	for _, group := range groups {
		if err := s.groups.UpsertByCode(ctx, group); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save class groups")
		}
	}

	s.logger.Sugar().Infow("class groups imported", "count", len(groups))
	return &dto.ImportSummary{ClassGroups: len(groups)}, nil
}

func (s *ImportService) importRooms(ctx context.Context, r io.Reader) (*dto.ImportSummary, error) {
	records, err := csvio.ReadRooms(r, s.cfg.Delimiter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to parse rooms file")
	}
	if err := s.checkRowCount(len(records)); err != nil {
		return nil, err
	}

	seen := map[string]int{}
	rooms := make([]*models.Room, 0, len(records))
	for i, rec := range records {
		row := dataRow(i)
		code := strings.ToUpper(strings.TrimSpace(rec.Code))
		if code == "" {
			return nil, rowError(row, "code is required")
		}
		if first, ok := seen[code]; ok {
			return nil, rowError(row, fmt.Sprintf("code %s already used on row %d", code, first))
		}
		seen[code] = row
		roomType := strings.ToLower(strings.TrimSpace(rec.Type))
		if roomType == "" {
			return nil, rowError(row, "type is required")
		}
		area := strings.ToLower(strings.TrimSpace(rec.KnowledgeArea))
		if area == "" {
			return nil, rowError(row, "knowledge_area is required")
		}
		rooms = append(rooms, &models.Room{Code: code, Type: roomType, KnowledgeArea: area})
	}

	for _, room := range rooms {
		if err := s.rooms.UpsertByCode(ctx, room); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save rooms")
		}
	}

	s.logger.Sugar().Infow("rooms imported", "count", len(rooms))
	return &dto.ImportSummary{Rooms: len(rooms)}, nil
}

func (s *ImportService) importSections(ctx context.Context, r io.Reader) (*dto.ImportSummary, error) {
	records, err := csvio.ReadSections(r, s.cfg.Delimiter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to parse sections file")
	}
	if err := s.checkRowCount(len(records)); err != nil {
		return nil, err
	}

	professorIDs, err := s.professors.IDsByCode(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professors")
	}
	groupIDs, err := s.groups.IDsByCode(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class groups")
	}

	seen := map[string]int{}
	sections := make([]*models.Section, 0, len(records))
	for i, rec := range records {
		row := dataRow(i)
		code := strings.ToUpper(strings.TrimSpace(rec.Code))
		if code == "" {
			return nil, rowError(row, "code is required")
		}
		if first, ok := seen[code]; ok {
			return nil, rowError(row, fmt.Sprintf("code %s already used on row %d", code, first))
		}
		seen[code] = row
		courseName := strings.TrimSpace(rec.CourseName)
		if courseName == "" {
			return nil, rowError(row, "course_name is required")
		}
		professorCode := strings.ToUpper(strings.TrimSpace(rec.ProfessorCode))
		professorID, ok := professorIDs[professorCode]
		if !ok {
			return nil, rowError(row, fmt.Sprintf("unknown professor code %s", professorCode))
		}
		groupCode := strings.ToUpper(strings.TrimSpace(rec.ClassGroupCode))
		groupID, ok := groupIDs[groupCode]
		if !ok {
			return nil, rowError(row, fmt.Sprintf("unknown class group code %s", groupCode))
		}
		roomType := strings.ToLower(strings.TrimSpace(rec.RoomType))
		if roomType == "" {
			return nil, rowError(row, "room_type is required")
		}
		if rec.Duration < 1 {
			return nil, rowError(row, fmt.Sprintf("duration %d must be at least 1", rec.Duration))
		}
		sections = append(sections, &models.Section{
			Code:          code,
			CourseName:    courseName,
			ProfessorID:   professorID,
			ClassGroupID:  groupID,
			RoomType:      roomType,
			KnowledgeArea: strings.ToLower(strings.TrimSpace(rec.KnowledgeArea)),
			Duration:      rec.Duration,
			Active:        true,
		})
	}

	for _, section := range sections {
		if err := s.sections.UpsertByCode(ctx, section); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save sections")
		}
	}

	s.logger.Sugar().Infow("sections imported", "count", len(sections))
	return &dto.ImportSummary{Sections: len(sections)}, nil
}

// importAvailability replaces the stored preference grid of every professor
// present in the file. Unknown professor codes are skipped with a warning
// because upstream sheets routinely carry staff who have left.
func (s *ImportService) importAvailability(ctx context.Context, r io.Reader) (*dto.ImportSummary, error) {
	records, err := csvio.ReadAvailability(r, s.cfg.Delimiter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to parse availability file")
	}
	if err := s.checkRowCount(len(records)); err != nil {
		return nil, err
	}

	professorIDs, err := s.professors.IDsByCode(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professors")
	}

	type cell struct {
		code   string
		day    int
		period int
	}
	seen := map[cell]int{}
	slotsByCode := map[string][]models.AvailabilitySlot{}
	order := []string{}
	warnings := []string{}
	for i, rec := range records {
		row := dataRow(i)
		code := strings.ToUpper(strings.TrimSpace(rec.ProfessorCode))
		if code == "" {
			return nil, rowError(row, "professor_code is required")
		}
		if rec.Day < 0 || rec.Day > 4 {
			return nil, rowError(row, fmt.Sprintf("day %d out of range 0..4", rec.Day))
		}
		if rec.Period < 1 {
			return nil, rowError(row, fmt.Sprintf("period %d must be at least 1", rec.Period))
		}
		if rec.Weight < 0 || rec.Weight > 1 {
			return nil, rowError(row, fmt.Sprintf("weight %d must be 0 or 1", rec.Weight))
		}
		key := cell{code: code, day: rec.Day, period: rec.Period}
		if first, ok := seen[key]; ok {
			return nil, rowError(row, fmt.Sprintf("cell day %d period %d for %s already used on row %d", rec.Day, rec.Period, code, first))
		}
		seen[key] = row
		if _, ok := professorIDs[code]; !ok {
			warnings = append(warnings, fmt.Sprintf("row %d: unknown professor code %s, skipped", row, code))
			continue
		}
		if _, ok := slotsByCode[code]; !ok {
			order = append(order, code)
		}
		slotsByCode[code] = append(slotsByCode[code], models.AvailabilitySlot{
			Day:    rec.Day,
			Period: rec.Period,
			Weight: rec.Weight,
		})
	}

	count := 0
	for _, code := range order {
		slots := slotsByCode[code]
		if err := s.availability.ReplaceForProfessor(ctx, professorIDs[code], slots); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save availability")
		}
		count += len(slots)
	}

	s.logger.Sugar().Infow("availability imported", "slots", count, "professors", len(order), "skipped_rows", len(warnings))
	return &dto.ImportSummary{Availability: count, Warnings: warnings}, nil
}

func (s *ImportService) checkRowCount(n int) error {
	if n == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "file has no data rows")
	}
	if n > s.cfg.MaxRows {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file has %d rows, limit is %d", n, s.cfg.MaxRows))
	}
	return nil
}

// dataRow converts a record index to its line number in the file, counting
// the header row.
func dataRow(i int) int {
	return i + 2
}

func rowError(row int, msg string) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("row %d: %s", row, msg))
}
