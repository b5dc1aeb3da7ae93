package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/univ-lab/timetable-api/internal/dto"
	"github.com/univ-lab/timetable-api/internal/middleware"
	"github.com/univ-lab/timetable-api/internal/models"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
	"github.com/univ-lab/timetable-api/pkg/response"
)

type runService interface {
	CreateRun(ctx context.Context, req dto.CreateRunRequest, actor *models.JWTClaims) (*dto.RunResponse, error)
	GetRun(ctx context.Context, id string) (*dto.RunDetailResponse, error)
	ListRuns(ctx context.Context, filter models.RunFilter) ([]dto.RunResponse, *models.Pagination, error)
	Assignments(ctx context.Context, runID string) ([]models.AssignmentDetail, bool, error)
	Unassigned(ctx context.Context, runID string) ([]models.UnassignedDetail, bool, error)
	DeleteRun(ctx context.Context, id string) error
}

// RunHandler wires timetable run services to HTTP routes.
type RunHandler struct {
	runs runService
}

// NewRunHandler constructs a new RunHandler.
func NewRunHandler(runs runService) *RunHandler {
	return &RunHandler{runs: runs}
}

// Create godoc
// @Summary Queue a timetable run
// @Description Creates a run and schedules it for background processing
// @Tags Runs
// @Accept json
// @Produce json
// @Param payload body dto.CreateRunRequest true "Run payload"
// @Success 202 {object} response.Envelope
// @Router /runs [post]
func (h *RunHandler) Create(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	run, err := h.runs.CreateRun(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, run, nil)
}

// List godoc
// @Summary List timetable runs
// @Tags Runs
// @Produce json
// @Param status query string false "Filter by status (QUEUED/RUNNING/FINISHED/FAILED)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /runs [get]
func (h *RunHandler) List(c *gin.Context) {
	filter := models.RunFilter{
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		val := models.RunStatus(status)
		filter.Status = &val
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	runs, pagination, err := h.runs.ListRuns(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// Get godoc
// @Summary Get run detail
// @Description Returns run status, stats and the configuration snapshot
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /runs/{id} [get]
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// Assignments godoc
// @Summary List run assignments
// @Description Returns the committed timetable of a finished run
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /runs/{id}/assignments [get]
func (h *RunHandler) Assignments(c *gin.Context) {
	start := time.Now()
	assignments, cacheHit, err := h.runs.Assignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetMeta(c, "processing_time_ms", time.Since(start).Milliseconds())
	response.JSON(c, http.StatusOK, assignments, nil, middleware.ExtractMeta(c))
}

// Unassigned godoc
// @Summary List unassigned sections
// @Description Returns sections a finished run could not place, with reasons
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /runs/{id}/unassigned [get]
func (h *RunHandler) Unassigned(c *gin.Context) {
	start := time.Now()
	unassigned, cacheHit, err := h.runs.Unassigned(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetMeta(c, "processing_time_ms", time.Since(start).Milliseconds())
	response.JSON(c, http.StatusOK, unassigned, nil, middleware.ExtractMeta(c))
}

// Delete godoc
// @Summary Delete run
// @Description Removes a settled run with its assignments
// @Tags Runs
// @Param id path string true "Run ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /runs/{id} [delete]
func (h *RunHandler) Delete(c *gin.Context) {
	if err := h.runs.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
