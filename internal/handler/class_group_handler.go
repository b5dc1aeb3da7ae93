package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/univ-lab/timetable-api/internal/models"
	"github.com/univ-lab/timetable-api/internal/service"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
	"github.com/univ-lab/timetable-api/pkg/response"
)

// ClassGroupHandler wires class group services to HTTP routes.
type ClassGroupHandler struct {
	groups *service.ClassGroupService
}

// NewClassGroupHandler constructs a new ClassGroupHandler.
func NewClassGroupHandler(groups *service.ClassGroupService) *ClassGroupHandler {
	return &ClassGroupHandler{groups: groups}
}

// List godoc
// @Summary List class groups
// @Tags Class Groups
// @Produce json
// @Param regime query string false "Filter by regime (day/night/unrestricted)"
// @Param active query bool false "Filter by active status"
// @Param search query string false "Search by code"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /class-groups [get]
func (h *ClassGroupHandler) List(c *gin.Context) {
	filter := models.ClassGroupFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if regime := strings.ToLower(c.Query("regime")); regime != "" {
		val := models.Regime(regime)
		filter.Regime = &val
	}
	if active := c.Query("active"); active != "" {
		switch strings.ToLower(active) {
		case "true":
			val := true
			filter.Active = &val
		case "false":
			val := false
			filter.Active = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	groups, pagination, err := h.groups.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, pagination)
}

// Get godoc
// @Summary Get class group detail
// @Tags Class Groups
// @Produce json
// @Param id path string true "Class group ID"
// @Success 200 {object} response.Envelope
// @Router /class-groups/{id} [get]
func (h *ClassGroupHandler) Get(c *gin.Context) {
	group, err := h.groups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Create godoc
// @Summary Create class group
// @Tags Class Groups
// @Accept json
// @Produce json
// @Param payload body service.CreateClassGroupRequest true "Class group payload"
// @Success 201 {object} response.Envelope
// @Router /class-groups [post]
func (h *ClassGroupHandler) Create(c *gin.Context) {
	var req service.CreateClassGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid class group payload"))
		return
	}
	group, err := h.groups.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Update class group
// @Tags Class Groups
// @Accept json
// @Produce json
// @Param id path string true "Class group ID"
// @Param payload body service.UpdateClassGroupRequest true "Class group payload"
// @Success 200 {object} response.Envelope
// @Router /class-groups/{id} [put]
func (h *ClassGroupHandler) Update(c *gin.Context) {
	var req service.UpdateClassGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid class group payload"))
		return
	}
	group, err := h.groups.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Deactivate class group
// @Tags Class Groups
// @Param id path string true "Class group ID"
// @Success 204
// @Router /class-groups/{id} [delete]
func (h *ClassGroupHandler) Delete(c *gin.Context) {
	if err := h.groups.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
