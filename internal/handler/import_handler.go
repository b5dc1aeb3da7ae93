package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univ-lab/timetable-api/internal/dto"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
	"github.com/univ-lab/timetable-api/pkg/response"
)

type importService interface {
	Import(ctx context.Context, entity string, r io.Reader) (*dto.ImportSummary, error)
}

// ImportHandler accepts CSV catalog uploads.
type ImportHandler struct {
	imports     importService
	maxFileSize int64
}

// NewImportHandler constructs a new ImportHandler. maxFileSize bounds the
// accepted multipart body in bytes.
func NewImportHandler(imports importService, maxFileSize int64) *ImportHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 * 1024 * 1024
	}
	return &ImportHandler{imports: imports, maxFileSize: maxFileSize}
}

// Upload godoc
// @Summary Import catalog data from CSV
// @Description Accepts a semicolon-delimited CSV file for the named entity
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param entity path string true "Entity (professors/class-groups/rooms/sections/availability)"
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /import/{entity} [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	if c.Request.ContentLength > h.maxFileSize {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusRequestEntityTooLarge, "file exceeds upload size limit"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusRequestEntityTooLarge, "file exceeds upload size limit"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file field is required"))
		return
	}
	defer file.Close() //nolint:errcheck

	summary, err := h.imports.Import(c.Request.Context(), c.Param("entity"), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{
		"filename": header.Filename,
	})
}
