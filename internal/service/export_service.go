package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/engine"
	"github.com/univ-lab/timetable-api/internal/models"
	"github.com/univ-lab/timetable-api/pkg/export"
	"github.com/univ-lab/timetable-api/pkg/storage"
)

type exportRunReader interface {
	GetByID(ctx context.Context, id string) (*models.TimetableRun, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService builds timetable datasets and persists rendered files.
// Week grids render in landscape because a full week spans six columns.
type ExportService struct {
	runs        exportRunReader
	assignments assignmentReader
	unassigned  unassignedReader
	storage     fileStorage
	csv         csvRenderer
	pdf         pdfRenderer
	pdfWide     pdfRenderer
	signer      *storage.DownloadSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(runs exportRunReader, assignments assignmentReader, unassigned unassignedReader, store fileStorage, signer *storage.DownloadSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		runs:        runs,
		assignments: assignments,
		unassigned:  unassigned,
		storage:     store,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		pdfWide:     export.NewLandscapePDFExporter(),
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Generate builds the dataset for the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	run, err := s.runs.GetByID(ctx, job.RunID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	dataset, title, err := s.buildDataset(ctx, job, run)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		renderer := s.pdf
		if job.Type == models.ExportTypeGrid {
			renderer = s.pdfWide
		}
		payload, err = renderer.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	signedURL := fmt.Sprintf("%s/export/download/%s", prefix, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", job.Type, shortID(job.RunID), timestamp, job.Params.Format)
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob, run *models.TimetableRun) (export.Dataset, string, error) {
	switch job.Type {
	case models.ExportTypeAssignments:
		return s.buildAssignmentsDataset(ctx, job)
	case models.ExportTypeGrid:
		return s.buildGridDataset(ctx, job, run)
	case models.ExportTypeUnassigned:
		return s.buildUnassignedDataset(ctx, job)
	case models.ExportTypeSummary:
		return s.buildSummaryDataset(run)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export type %s", job.Type)
	}
}

var assignmentHeaders = []string{"Section", "Course", "Professor", "Class Group", "Room", "Day", "Start", "End", "Score"}

func (s *ExportService) buildAssignmentsDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	rows, err := s.assignments.ListByRun(ctx, job.RunID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Section":     row.SectionCode,
			"Course":      row.CourseName,
			"Professor":   row.ProfessorName,
			"Class Group": row.GroupCode,
			"Room":        row.RoomCode,
			"Day":         engine.DayName(row.Day),
			"Start":       strconv.Itoa(row.StartPeriod),
			"End":         strconv.Itoa(row.StartPeriod + row.Duration - 1),
			"Score":       strconv.Itoa(row.Score),
		})
	}
	dataset := export.Dataset{Headers: assignmentHeaders, Rows: dataRows}
	title := fmt.Sprintf("Timetable %s", shortID(job.RunID))
	return dataset, title, nil
}

// buildGridDataset renders the week as a period-by-day table. With a class
// group or professor scope it produces a single grid; unscoped it emits one
// block per class group.
func (s *ExportService) buildGridDataset(ctx context.Context, job *models.ExportJob, run *models.TimetableRun) (export.Dataset, string, error) {
	rows, err := s.assignments.ListByRun(ctx, job.RunID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	periods := periodsFromSnapshot(run)
	if periods == 0 {
		periods = maxOccupiedPeriod(rows)
	}

	switch {
	case job.Params.ClassGroupID != nil && *job.Params.ClassGroupID != "":
		scoped := filterByGroup(rows, *job.Params.ClassGroupID)
		label := groupLabel(scoped, *job.Params.ClassGroupID)
		dataset := singleGrid(scoped, periods, func(d models.AssignmentDetail) string {
			return fmt.Sprintf("%s %s", d.SectionCode, d.RoomCode)
		})
		return dataset, fmt.Sprintf("Week Grid %s", label), nil
	case job.Params.ProfessorID != nil && *job.Params.ProfessorID != "":
		scoped := filterByProfessor(rows, *job.Params.ProfessorID)
		label := professorLabel(scoped, *job.Params.ProfessorID)
		dataset := singleGrid(scoped, periods, func(d models.AssignmentDetail) string {
			return fmt.Sprintf("%s %s", d.SectionCode, d.GroupCode)
		})
		return dataset, fmt.Sprintf("Week Grid %s", label), nil
	default:
		return allGroupsGrid(rows, periods), "Week Grid", nil
	}
}

func (s *ExportService) buildUnassignedDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	rows, err := s.unassigned.ListByRun(ctx, job.RunID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Section":     row.SectionCode,
			"Course":      row.CourseName,
			"Professor":   row.ProfessorName,
			"Class Group": row.GroupCode,
			"Reason":      string(row.Reason),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Section", "Course", "Professor", "Class Group", "Reason"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Unassigned Sections %s", shortID(job.RunID))
	return dataset, title, nil
}

func (s *ExportService) buildSummaryDataset(run *models.TimetableRun) (export.Dataset, string, error) {
	var stats engine.Stats
	if len(run.Stats) > 0 {
		if err := json.Unmarshal(run.Stats, &stats); err != nil {
			return export.Dataset{}, "", fmt.Errorf("decode run stats: %w", err)
		}
	}

	rows := []map[string]string{
		{"Metric": "Total Sections", "Value": strconv.Itoa(stats.TotalSections)},
		{"Metric": "Assigned", "Value": strconv.Itoa(stats.AssignedCount)},
		{"Metric": "Unassigned", "Value": strconv.Itoa(stats.UnassignedCount)},
		{"Metric": "Assignment Rate", "Value": fmt.Sprintf("%.4f", stats.AssignmentRate)},
		{"Metric": "Preference Score", "Value": strconv.Itoa(stats.PreferenceScore)},
		{"Metric": "Objective Before", "Value": fmt.Sprintf("%.4f", stats.ObjectiveBefore)},
		{"Metric": "Objective After", "Value": fmt.Sprintf("%.4f", stats.ObjectiveAfter)},
		{"Metric": "Iterations", "Value": strconv.Itoa(stats.Iterations)},
		{"Metric": "Accepted Moves", "Value": strconv.Itoa(stats.AcceptedMoves)},
		{"Metric": "Rejected Moves", "Value": strconv.Itoa(stats.RejectedMoves)},
		{"Metric": "Infeasible Moves", "Value": strconv.Itoa(stats.InfeasibleMoves)},
		{"Metric": "Professors Used", "Value": strconv.Itoa(stats.ProfessorsUsed)},
		{"Metric": "Rooms Used", "Value": strconv.Itoa(stats.RoomsUsed)},
		{"Metric": "Groups Placed", "Value": strconv.Itoa(stats.GroupsPlaced)},
		{"Metric": "Elapsed (ms)", "Value": strconv.FormatInt(stats.ElapsedMS, 10)},
	}
	for day, count := range stats.AssignmentsPerDay {
		rows = append(rows, map[string]string{
			"Metric": fmt.Sprintf("Assignments %s", engine.DayName(day)),
			"Value":  strconv.Itoa(count),
		})
	}

	dataset := export.Dataset{Headers: []string{"Metric", "Value"}, Rows: rows}
	title := fmt.Sprintf("Run Summary %s", shortID(run.ID))
	return dataset, title, nil
}

var gridHeaders = []string{"Period", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// singleGrid lays scoped assignments onto a period-by-day table.
func singleGrid(rows []models.AssignmentDetail, periods int, cell func(models.AssignmentDetail) string) export.Dataset {
	grid := make(map[int]map[string]string, periods)
	for period := 1; period <= periods; period++ {
		grid[period] = map[string]string{"Period": strconv.Itoa(period)}
	}
	for _, row := range rows {
		day := engine.DayName(row.Day)
		for p := row.StartPeriod; p < row.StartPeriod+row.Duration; p++ {
			if entry, ok := grid[p]; ok {
				entry[day] = cell(row)
			}
		}
	}
	dataRows := make([]map[string]string, 0, periods)
	for period := 1; period <= periods; period++ {
		dataRows = append(dataRows, grid[period])
	}
	return export.Dataset{Headers: gridHeaders, Rows: dataRows}
}

// allGroupsGrid emits one block of period rows per class group, ordered by
// group code.
func allGroupsGrid(rows []models.AssignmentDetail, periods int) export.Dataset {
	byGroup := make(map[string][]models.AssignmentDetail)
	for _, row := range rows {
		byGroup[row.GroupCode] = append(byGroup[row.GroupCode], row)
	}
	codes := make([]string, 0, len(byGroup))
	for code := range byGroup {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	headers := append([]string{"Class Group"}, gridHeaders...)
	dataRows := make([]map[string]string, 0, len(codes)*periods)
	for _, code := range codes {
		block := singleGrid(byGroup[code], periods, func(d models.AssignmentDetail) string {
			return fmt.Sprintf("%s %s", d.SectionCode, d.RoomCode)
		})
		for _, row := range block.Rows {
			row["Class Group"] = code
			dataRows = append(dataRows, row)
		}
	}
	return export.Dataset{Headers: headers, Rows: dataRows}
}

func filterByGroup(rows []models.AssignmentDetail, groupID string) []models.AssignmentDetail {
	return lo.Filter(rows, func(row models.AssignmentDetail, _ int) bool {
		return row.ClassGroupID == groupID
	})
}

func filterByProfessor(rows []models.AssignmentDetail, professorID string) []models.AssignmentDetail {
	return lo.Filter(rows, func(row models.AssignmentDetail, _ int) bool {
		return row.ProfessorID == professorID
	})
}

func groupLabel(rows []models.AssignmentDetail, fallback string) string {
	if len(rows) > 0 {
		return rows[0].GroupCode
	}
	return shortID(fallback)
}

func professorLabel(rows []models.AssignmentDetail, fallback string) string {
	if len(rows) > 0 {
		return rows[0].ProfessorName
	}
	return shortID(fallback)
}

// periodsFromSnapshot reads the grid height out of the stored run
// configuration.
func periodsFromSnapshot(run *models.TimetableRun) int {
	if run == nil || len(run.ConfigSnapshot) == 0 {
		return 0
	}
	var cfg engine.Config
	if err := json.Unmarshal(run.ConfigSnapshot, &cfg); err != nil {
		return 0
	}
	return cfg.Grid.PeriodsPerDay
}

func maxOccupiedPeriod(rows []models.AssignmentDetail) int {
	max := 0
	for _, row := range rows {
		if end := row.StartPeriod + row.Duration - 1; end > max {
			max = end
		}
	}
	return max
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
