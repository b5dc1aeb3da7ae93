package service

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/engine"
	"github.com/univ-lab/timetable-api/internal/models"
	"github.com/univ-lab/timetable-api/pkg/export"
	"github.com/univ-lab/timetable-api/pkg/storage"
)

type mockExportRunReader struct {
	run *models.TimetableRun
	err error
}

func (m *mockExportRunReader) GetByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	run := *m.run
	return &run, nil
}

type spyPDFRenderer struct {
	calls     int
	lastTitle string
}

func (r *spyPDFRenderer) Render(data export.Dataset, title string) ([]byte, error) {
	r.calls++
	r.lastTitle = title
	return []byte("%PDF"), nil
}

func exportAssignmentRows() []models.AssignmentDetail {
	return []models.AssignmentDetail{
		{
			TimetableAssignment: models.TimetableAssignment{Day: 0, StartPeriod: 3, Duration: 2, Score: 2},
			SectionCode:         "SEC1",
			CourseName:          "Calculus I",
			ProfessorID:         "p1",
			ProfessorName:       "Ada Lovelace",
			ClassGroupID:        "g1",
			GroupCode:           "1DG1",
			RoomCode:            "R101",
		},
		{
			TimetableAssignment: models.TimetableAssignment{Day: 2, StartPeriod: 1, Duration: 1, Score: 1},
			SectionCode:         "SEC2",
			CourseName:          "Physics",
			ProfessorID:         "p2",
			ProfessorName:       "Lise Meitner",
			ClassGroupID:        "g2",
			GroupCode:           "2NG1",
			RoomCode:            "R202",
		},
	}
}

func exportRunFixture(t *testing.T, periods int) *models.TimetableRun {
	t.Helper()
	run := &models.TimetableRun{
		ID:        "run-7f2c4e9a11d4",
		Status:    models.RunStatusFinished,
		CreatedBy: "admin",
		CreatedAt: time.Now(),
	}
	if periods > 0 {
		cfg := engine.DefaultConfig()
		cfg.Grid.PeriodsPerDay = periods
		snapshot, err := json.Marshal(cfg)
		require.NoError(t, err)
		run.ConfigSnapshot = snapshot
	}
	return run
}

func newExportFixture(t *testing.T, run *models.TimetableRun, assignments []models.AssignmentDetail, unassigned []models.UnassignedDetail) (*ExportService, *storage.LocalStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewDownloadSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	runs := &mockExportRunReader{run: run}
	svc := NewExportService(runs, &mockAssignmentReader{rows: assignments}, &mockUnassignedReader{rows: unassigned}, store, signer, cfg, zap.NewNop())
	return svc, store
}

func TestExportServiceGenerateCSV(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store := newExportFixture(t, run, exportAssignmentRows(), nil)
	job := &models.ExportJob{
		ID:        "job-1",
		RunID:     run.ID,
		Type:      models.ExportTypeAssignments,
		Params:    models.ExportJobParams{Format: models.ExportFormatCSV},
		CreatedBy: "admin",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ExportFormatCSV, result.Format)
	require.Contains(t, result.URL, "/api/v1/export/download/")
	require.True(t, strings.HasSuffix(result.RelativePath, ".csv"))

	payload, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "Section,Course,Professor,Class Group,Room,Day,Start,End,Score", lines[0])
	require.Equal(t, "SEC1,Calculus I,Ada Lovelace,1DG1,R101,Monday,3,4,2", lines[1])
	require.Equal(t, "SEC2,Physics,Lise Meitner,2NG1,R202,Wednesday,1,1,1", lines[2])

	jobID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	require.Equal(t, "job-1", jobID)
	require.Equal(t, result.RelativePath, relPath)
}

func TestExportServiceGridPDFUsesLandscape(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store := newExportFixture(t, run, exportAssignmentRows(), nil)
	portrait := &spyPDFRenderer{}
	landscape := &spyPDFRenderer{}
	svc.pdf = portrait
	svc.pdfWide = landscape

	job := &models.ExportJob{
		ID:        "job-2",
		RunID:     run.ID,
		Type:      models.ExportTypeGrid,
		Params:    models.ExportJobParams{Format: models.ExportFormatPDF},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 0, portrait.calls)
	require.Equal(t, 1, landscape.calls)
	require.Equal(t, "Week Grid", landscape.lastTitle)

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGridScopedToGroup(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, _ := newExportFixture(t, run, exportAssignmentRows(), nil)
	groupID := "g1"
	job := &models.ExportJob{
		ID:     "job-3",
		RunID:  run.ID,
		Type:   models.ExportTypeGrid,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV, ClassGroupID: &groupID},
	}

	dataset, title, err := svc.buildGridDataset(context.Background(), job, run)
	require.NoError(t, err)
	require.Equal(t, "Week Grid 1DG1", title)
	require.Len(t, dataset.Rows, 6)
	require.Equal(t, "SEC1 R101", dataset.Rows[2]["Monday"])
	require.Equal(t, "SEC1 R101", dataset.Rows[3]["Monday"])
	require.Empty(t, dataset.Rows[0]["Monday"])
	require.Empty(t, dataset.Rows[2]["Wednesday"])
}

func TestExportServiceGridScopedToProfessor(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, _ := newExportFixture(t, run, exportAssignmentRows(), nil)
	professorID := "p2"
	job := &models.ExportJob{
		ID:     "job-4",
		RunID:  run.ID,
		Type:   models.ExportTypeGrid,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV, ProfessorID: &professorID},
	}

	dataset, title, err := svc.buildGridDataset(context.Background(), job, run)
	require.NoError(t, err)
	require.Equal(t, "Week Grid Lise Meitner", title)
	require.Equal(t, "SEC2 2NG1", dataset.Rows[0]["Wednesday"])
	require.Empty(t, dataset.Rows[2]["Monday"])
}

func TestExportServiceGridAllGroups(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, _ := newExportFixture(t, run, exportAssignmentRows(), nil)
	job := &models.ExportJob{
		ID:     "job-5",
		RunID:  run.ID,
		Type:   models.ExportTypeGrid,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}

	dataset, title, err := svc.buildGridDataset(context.Background(), job, run)
	require.NoError(t, err)
	require.Equal(t, "Week Grid", title)
	require.Equal(t, "Class Group", dataset.Headers[0])
	require.Len(t, dataset.Rows, 12)
	require.Equal(t, "1DG1", dataset.Rows[0]["Class Group"])
	require.Equal(t, "2NG1", dataset.Rows[6]["Class Group"])
	require.Equal(t, "SEC1 R101", dataset.Rows[2]["Monday"])
	require.Equal(t, "SEC2 R202", dataset.Rows[6]["Wednesday"])
}

func TestExportServiceGridFallsBackToOccupiedPeriods(t *testing.T) {
	run := exportRunFixture(t, 0)
	svc, _ := newExportFixture(t, run, exportAssignmentRows(), nil)
	job := &models.ExportJob{
		ID:     "job-6",
		RunID:  run.ID,
		Type:   models.ExportTypeGrid,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}

	dataset, _, err := svc.buildGridDataset(context.Background(), job, run)
	require.NoError(t, err)
	require.Len(t, dataset.Rows, 8)
}

func TestExportServiceSummaryDataset(t *testing.T) {
	run := exportRunFixture(t, 6)
	stats := engine.Stats{
		TotalSections:     3,
		AssignedCount:     2,
		UnassignedCount:   1,
		AssignmentRate:    2.0 / 3.0,
		AssignmentsPerDay: [engine.DaysPerWeek]int{1, 0, 1, 0, 0},
	}
	statsJSON, err := json.Marshal(stats)
	require.NoError(t, err)
	run.Stats = statsJSON
	svc, _ := newExportFixture(t, run, nil, nil)

	dataset, title, err := svc.buildSummaryDataset(run)
	require.NoError(t, err)
	require.Contains(t, title, "Run Summary")

	values := make(map[string]string, len(dataset.Rows))
	for _, row := range dataset.Rows {
		values[row["Metric"]] = row["Value"]
	}
	require.Equal(t, "3", values["Total Sections"])
	require.Equal(t, "2", values["Assigned"])
	require.Equal(t, "0.6667", values["Assignment Rate"])
	require.Equal(t, "1", values["Assignments Monday"])
	require.Equal(t, "0", values["Assignments Tuesday"])
}

func TestExportServiceUnassignedDataset(t *testing.T) {
	run := exportRunFixture(t, 6)
	unassigned := []models.UnassignedDetail{
		{
			UnassignedSection: models.UnassignedSection{Reason: models.UnassignedNoFeasibleTimeSlot},
			SectionCode:       "SEC9",
			CourseName:        "Chemistry",
			ProfessorName:     "Marie Curie",
			GroupCode:         "1DG2",
		},
	}
	svc, _ := newExportFixture(t, run, nil, unassigned)
	job := &models.ExportJob{
		ID:     "job-7",
		RunID:  run.ID,
		Type:   models.ExportTypeUnassigned,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}

	dataset, _, err := svc.buildUnassignedDataset(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, dataset.Rows, 1)
	require.Equal(t, "SEC9", dataset.Rows[0]["Section"])
	require.Equal(t, "no_feasible_time_slot", dataset.Rows[0]["Reason"])
}

func TestExportServiceUnsupportedFormat(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, _ := newExportFixture(t, run, exportAssignmentRows(), nil)
	job := &models.ExportJob{
		ID:     "job-8",
		RunID:  run.ID,
		Type:   models.ExportTypeAssignments,
		Params: models.ExportJobParams{Format: models.ExportFormat("xlsx")},
	}

	_, err := svc.Generate(context.Background(), job)
	require.ErrorContains(t, err, "unsupported format")
}
