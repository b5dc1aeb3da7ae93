package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-lab/timetable-api/internal/dto"
	"github.com/univ-lab/timetable-api/internal/middleware"
	"github.com/univ-lab/timetable-api/internal/models"
	"github.com/univ-lab/timetable-api/internal/service"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
)

type exportJobServiceMock struct {
	capturedRun string
	captured    dto.ExportRequest
	download    *service.ExportDownload
	downloadErr error
}

func (m *exportJobServiceMock) CreateExport(ctx context.Context, runID string, req dto.ExportRequest, actor *models.JWTClaims) (*dto.ExportJobResponse, error) {
	m.capturedRun = runID
	m.captured = req
	return &dto.ExportJobResponse{ID: "export-1", RunID: runID, Status: models.ExportStatusQueued}, nil
}

func (m *exportJobServiceMock) GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	return &dto.ExportStatusResponse{ID: id, Status: models.ExportStatusFinished}, nil
}

func (m *exportJobServiceMock) ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	return m.download, nil
}

func TestExportHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exportJobServiceMock{}
	handler := NewExportHandler(mockSvc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/runs/run-1/export", bytes.NewReader([]byte(`{"type":"grid","format":"pdf"}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{ClientID: "admin"})

	handler.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "run-1", mockSvc.capturedRun)
	assert.Equal(t, models.ExportTypeGrid, mockSvc.captured.Type)
	assert.Equal(t, models.ExportFormatPDF, mockSvc.captured.Format)
}

func TestExportHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&exportJobServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/runs/run-1/export", bytes.NewReader([]byte(`{"type":`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "run-1_grid.csv")
	require.NoError(t, os.WriteFile(path, []byte("Period;Monday\n1;MAT101-A R101\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewExportHandler(&exportJobServiceMock{download: &service.ExportDownload{
		File:     file,
		Filename: "run-1_grid.csv",
		Format:   models.ExportFormatCSV,
	}})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/export/download/token-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: "token-1"}}

	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "run-1_grid.csv")
	assert.Contains(t, w.Body.String(), "MAT101-A")
}

func TestExportHandlerDownloadExpired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&exportJobServiceMock{downloadErr: appErrors.ErrForbidden})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/export/download/bad-token", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: "bad-token"}}

	handler.Download(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}
