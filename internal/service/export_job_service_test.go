package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/dto"
	"github.com/univ-lab/timetable-api/internal/models"
	"github.com/univ-lab/timetable-api/internal/repository"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
	"github.com/univ-lab/timetable-api/pkg/jobs"
)

type mockExportJobStore struct {
	jobs    map[string]*models.ExportJob
	created int
	queued  []models.ExportJob
	expired []models.ExportJob
	getErr  error
}

func newMockExportJobStore() *mockExportJobStore {
	return &mockExportJobStore{jobs: map[string]*models.ExportJob{}}
}

func (m *mockExportJobStore) Create(ctx context.Context, job *models.ExportJob) error {
	m.created++
	if job.ID == "" {
		job.ID = fmt.Sprintf("export-%d", m.created)
	}
	job.CreatedAt = time.Now()
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *mockExportJobStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *job
	return &found, nil
}

func (m *mockExportJobStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockExportJobStore) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	return m.queued, nil
}

func (m *mockExportJobStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return m.expired, nil
}

type failingExportGenerator struct {
	err error
}

func (f *failingExportGenerator) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	return nil, f.err
}

func newExportJobFixture(t *testing.T, run *models.TimetableRun) (*ExportJobService, *mockExportJobStore, *mockRunQueue, *ExportService) {
	t.Helper()
	store := newMockExportJobStore()
	queue := &mockRunQueue{}
	exporter, _ := newExportFixture(t, run, exportAssignmentRows(), nil)
	cfg := ExportJobServiceConfig{ResultTTL: time.Hour, MaxRetries: 3}
	svc := NewExportJobService(store, &mockExportRunReader{run: run}, queue, exporter, validator.New(), zap.NewNop(), cfg)
	return svc, store, queue, exporter
}

func TestExportJobCreateQueuesJob(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store, queue, _ := newExportJobFixture(t, run)
	req := dto.ExportRequest{Type: models.ExportTypeAssignments, Format: models.ExportFormatCSV}
	actor := &models.JWTClaims{ClientID: "portal"}

	resp, err := svc.CreateExport(context.Background(), run.ID, req, actor)
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Equal(t, run.ID, resp.RunID)
	require.Len(t, queue.jobs, 1)
	require.Equal(t, resp.ID, queue.jobs[0].ID)
	require.Equal(t, "portal", store.jobs[resp.ID].CreatedBy)
}

func TestExportJobCreateRejectsDualScope(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, _, queue, _ := newExportJobFixture(t, run)
	groupID := testGroupID
	professorID := testProfessorID
	req := dto.ExportRequest{
		Type:         models.ExportTypeGrid,
		Format:       models.ExportFormatPDF,
		ClassGroupID: &groupID,
		ProfessorID:  &professorID,
	}

	_, err := svc.CreateExport(context.Background(), run.ID, req, nil)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.Contains(t, err.Error(), "not both")
	require.Empty(t, queue.jobs)
}

func TestExportJobCreateRejectsScopeOnNonGrid(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, _, _, _ := newExportJobFixture(t, run)
	groupID := testGroupID
	req := dto.ExportRequest{
		Type:         models.ExportTypeAssignments,
		Format:       models.ExportFormatCSV,
		ClassGroupID: &groupID,
	}

	_, err := svc.CreateExport(context.Background(), run.ID, req, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "scope filters only apply to grid exports")
}

func TestExportJobCreateRunNotReady(t *testing.T) {
	run := exportRunFixture(t, 6)
	run.Status = models.RunStatusRunning
	svc, store, _, _ := newExportJobFixture(t, run)
	req := dto.ExportRequest{Type: models.ExportTypeSummary, Format: models.ExportFormatPDF}

	_, err := svc.CreateExport(context.Background(), run.ID, req, nil)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrRunNotReady.Code, appErrors.FromError(err).Code)
	require.Zero(t, store.created)
}

func TestExportJobCreateEnqueueFailureMarksFailed(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store, queue, _ := newExportJobFixture(t, run)
	queue.err = errors.New("queue full")
	req := dto.ExportRequest{Type: models.ExportTypeAssignments, Format: models.ExportFormatCSV}

	_, err := svc.CreateExport(context.Background(), run.ID, req, nil)
	require.Error(t, err)
	require.Equal(t, 1, store.created)
	job := store.jobs["export-1"]
	require.Equal(t, models.ExportStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	require.NotNil(t, job.FinishedAt)
}

func TestExportJobGetStatus(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store, _, _ := newExportJobFixture(t, run)
	url := "/api/v1/export/download/tok123"
	store.jobs["export-1"] = &models.ExportJob{
		ID:        "export-1",
		RunID:     run.ID,
		Type:      models.ExportTypeGrid,
		Status:    models.ExportStatusFinished,
		ResultURL: &url,
	}

	resp, err := svc.GetStatus(context.Background(), "export-1")
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusFinished, resp.Status)
	require.Equal(t, models.ExportTypeGrid, resp.Type)
	require.NotNil(t, resp.ResultURL)
	require.Equal(t, url, *resp.ResultURL)
}

func TestExportJobGetStatusNotFound(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, _, _, _ := newExportJobFixture(t, run)

	_, err := svc.GetStatus(context.Background(), "gone")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportJobResolveDownload(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store, _, exporter := newExportJobFixture(t, run)
	job := &models.ExportJob{
		ID:     "export-1",
		RunID:  run.ID,
		Type:   models.ExportTypeAssignments,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}
	result, err := exporter.Generate(context.Background(), job)
	require.NoError(t, err)
	job.Status = models.ExportStatusFinished
	job.ResultURL = &result.URL
	store.jobs[job.ID] = job

	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	defer download.File.Close()
	require.Equal(t, models.ExportFormatCSV, download.Format)
	require.True(t, strings.HasSuffix(download.Filename, ".csv"))

	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	require.Contains(t, string(data), "SEC1")
}

func TestExportJobResolveDownloadBadToken(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, _, _, _ := newExportJobFixture(t, run)

	_, err := svc.ResolveDownload(context.Background(), "not-a-token")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	require.Contains(t, err.Error(), "invalid or expired download token")
}

func TestExportJobResolveDownloadTokenMismatch(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store, _, exporter := newExportJobFixture(t, run)
	job := &models.ExportJob{
		ID:     "export-1",
		RunID:  run.ID,
		Type:   models.ExportTypeAssignments,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}
	result, err := exporter.Generate(context.Background(), job)
	require.NoError(t, err)
	stale := "/api/v1/export/download/other-token"
	job.Status = models.ExportStatusFinished
	job.ResultURL = &stale
	store.jobs[job.ID] = job

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	require.Error(t, err)
	require.Contains(t, err.Error(), "token mismatch")
}

func TestExportJobResolveDownloadNotFinished(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store, _, exporter := newExportJobFixture(t, run)
	job := &models.ExportJob{
		ID:     "export-1",
		RunID:  run.ID,
		Type:   models.ExportTypeAssignments,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}
	result, err := exporter.Generate(context.Background(), job)
	require.NoError(t, err)
	job.Status = models.ExportStatusProcessing
	job.ResultURL = &result.URL
	store.jobs[job.ID] = job

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrExportNotReady.Code, appErrors.FromError(err).Code)
}

func TestExportJobRecoverPendingExports(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store, queue, _ := newExportJobFixture(t, run)
	store.queued = []models.ExportJob{
		{ID: "export-1", Type: models.ExportTypeAssignments},
		{ID: "export-2", Type: models.ExportTypeGrid},
	}

	svc.RecoverPendingExports(context.Background())
	require.Len(t, queue.jobs, 2)
	require.Equal(t, "export-1", queue.jobs[0].ID)
	require.Equal(t, "export-2", queue.jobs[1].ID)
}

func TestExportJobCleanupRemovesExpiredFiles(t *testing.T) {
	run := exportRunFixture(t, 6)
	svc, store, _, exporter := newExportJobFixture(t, run)
	job := &models.ExportJob{
		ID:     "export-1",
		RunID:  run.ID,
		Type:   models.ExportTypeAssignments,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}
	result, err := exporter.Generate(context.Background(), job)
	require.NoError(t, err)
	job.Status = models.ExportStatusFinished
	job.ResultURL = &result.URL
	store.jobs[job.ID] = job
	store.expired = []models.ExportJob{*job}

	svc.cleanupExpired(context.Background())

	_, err = exporter.Open(result.RelativePath)
	require.Error(t, err)
	require.True(t, os.IsNotExist(err) || errors.Is(err, os.ErrNotExist))
}

func TestExportWorkerHandleSuccess(t *testing.T) {
	run := exportRunFixture(t, 6)
	_, store, _, exporter := newExportJobFixture(t, run)
	store.jobs["export-1"] = &models.ExportJob{
		ID:     "export-1",
		RunID:  run.ID,
		Type:   models.ExportTypeAssignments,
		Status: models.ExportStatusQueued,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}
	worker := NewExportWorker(store, exporter, nil, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "export-1", Attempt: 1})
	require.NoError(t, err)
	job := store.jobs["export-1"]
	require.Equal(t, models.ExportStatusFinished, job.Status)
	require.NotNil(t, job.ResultURL)
	require.Contains(t, *job.ResultURL, "/export/download/")
	require.NotNil(t, job.FinishedAt)
}

func TestExportWorkerRequeuesOnRetryableFailure(t *testing.T) {
	run := exportRunFixture(t, 6)
	_, store, _, _ := newExportJobFixture(t, run)
	store.jobs["export-1"] = &models.ExportJob{
		ID:     "export-1",
		RunID:  run.ID,
		Type:   models.ExportTypeGrid,
		Status: models.ExportStatusQueued,
		Params: models.ExportJobParams{Format: models.ExportFormatPDF},
	}
	worker := NewExportWorker(store, &failingExportGenerator{err: errors.New("render failed")}, nil, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "export-1", Attempt: 1})
	require.Error(t, err)
	job := store.jobs["export-1"]
	require.Equal(t, models.ExportStatusQueued, job.Status)
	require.NotNil(t, job.ErrorMessage)
	require.Nil(t, job.FinishedAt)
}

func TestExportWorkerFailsAfterMaxRetries(t *testing.T) {
	run := exportRunFixture(t, 6)
	_, store, _, _ := newExportJobFixture(t, run)
	store.jobs["export-1"] = &models.ExportJob{
		ID:     "export-1",
		RunID:  run.ID,
		Type:   models.ExportTypeGrid,
		Status: models.ExportStatusQueued,
		Params: models.ExportJobParams{Format: models.ExportFormatPDF},
	}
	worker := NewExportWorker(store, &failingExportGenerator{err: errors.New("render failed")}, nil, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "export-1", Attempt: 3})
	require.Error(t, err)
	job := store.jobs["export-1"]
	require.Equal(t, models.ExportStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	require.NotNil(t, job.FinishedAt)
}

func TestExportWorkerSkipsVanishedJob(t *testing.T) {
	run := exportRunFixture(t, 6)
	_, store, _, exporter := newExportJobFixture(t, run)
	worker := NewExportWorker(store, exporter, nil, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "gone", Attempt: 1})
	require.NoError(t, err)
}
