package dto

import "github.com/univ-lab/timetable-api/internal/models"

// ExportRequest captures POST /runs/:id/export payload.
type ExportRequest struct {
	Type         models.ExportType   `json:"type" validate:"required,oneof=assignments grid unassigned summary"`
	Format       models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	ClassGroupID *string             `json:"classGroupId,omitempty" validate:"omitempty,uuid4"`
	ProfessorID  *string             `json:"professorId,omitempty" validate:"omitempty,uuid4"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	RunID  string              `json:"run_id"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse exposes export job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	RunID     string              `json:"run_id"`
	Type      models.ExportType   `json:"type"`
	Status    models.ExportStatus `json:"status"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
