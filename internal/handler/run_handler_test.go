package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univ-lab/timetable-api/internal/dto"
	"github.com/univ-lab/timetable-api/internal/middleware"
	"github.com/univ-lab/timetable-api/internal/models"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
)

type runServiceMock struct {
	captured    dto.CreateRunRequest
	assignments []models.AssignmentDetail
	cacheHit    bool
	deleteErr   error
}

func (m *runServiceMock) CreateRun(ctx context.Context, req dto.CreateRunRequest, actor *models.JWTClaims) (*dto.RunResponse, error) {
	m.captured = req
	return &dto.RunResponse{ID: "run-1", Status: models.RunStatusQueued, Seed: 42}, nil
}

func (m *runServiceMock) GetRun(ctx context.Context, id string) (*dto.RunDetailResponse, error) {
	if id == "missing" {
		return nil, appErrors.ErrNotFound
	}
	return &dto.RunDetailResponse{RunResponse: dto.RunResponse{ID: id, Status: models.RunStatusFinished}}, nil
}

func (m *runServiceMock) ListRuns(ctx context.Context, filter models.RunFilter) ([]dto.RunResponse, *models.Pagination, error) {
	return []dto.RunResponse{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *runServiceMock) Assignments(ctx context.Context, runID string) ([]models.AssignmentDetail, bool, error) {
	return m.assignments, m.cacheHit, nil
}

func (m *runServiceMock) Unassigned(ctx context.Context, runID string) ([]models.UnassignedDetail, bool, error) {
	return nil, false, nil
}

func (m *runServiceMock) DeleteRun(ctx context.Context, id string) error {
	return m.deleteErr
}

func TestRunHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &runServiceMock{}
	handler := NewRunHandler(mockSvc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/runs", bytes.NewReader([]byte(`{"seed":42,"maxIterations":5000}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{ClientID: "admin"})

	handler.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, mockSvc.captured.Seed)
	assert.Equal(t, int64(42), *mockSvc.captured.Seed)
	require.NotNil(t, mockSvc.captured.MaxIterations)
	assert.Equal(t, 5000, *mockSvc.captured.MaxIterations)
}

func TestRunHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRunHandler(&runServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/runs", bytes.NewReader([]byte(`{"seed":`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandlerAssignmentsMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &runServiceMock{
		assignments: []models.AssignmentDetail{{SectionCode: "MAT101-A", RoomCode: "R101"}},
		cacheHit:    true,
	}
	handler := NewRunHandler(mockSvc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/runs/run-1/assignments", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Assignments(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MAT101-A")
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)
	assert.Contains(t, w.Body.String(), "processing_time_ms")
}

func TestRunHandlerDeleteConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRunHandler(&runServiceMock{deleteErr: appErrors.ErrConflict})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/runs/run-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Delete(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")
}
