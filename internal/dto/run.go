package dto

import (
	"encoding/json"
	"time"

	"github.com/univ-lab/timetable-api/internal/models"
)

// CreateRunRequest captures POST /runs payload. Every field is optional;
// omitted tuning falls back to the configured defaults and an omitted seed
// is drawn randomly and persisted for reproducibility.
type CreateRunRequest struct {
	Seed               *int64   `json:"seed,omitempty"`
	MaxIterations      *int     `json:"maxIterations,omitempty" validate:"omitempty,min=0"`
	SampleSize         *int     `json:"sampleSize,omitempty" validate:"omitempty,min=1"`
	InitialTemperature *float64 `json:"initialTemperature,omitempty" validate:"omitempty,gt=0"`
	CoolingRate        *float64 `json:"coolingRate,omitempty" validate:"omitempty,gt=0,lt=1"`
	MinTemperature     *float64 `json:"minTemperature,omitempty" validate:"omitempty,gt=0"`
}

// RunResponse is returned after enqueueing a run and in list views.
type RunResponse struct {
	ID              string           `json:"id"`
	Status          models.RunStatus `json:"status"`
	Seed            int64            `json:"seed"`
	AssignedCount   int              `json:"assigned_count"`
	UnassignedCount int              `json:"unassigned_count"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	Error           *string          `json:"error,omitempty"`
}

// RunDetailResponse adds the persisted stats and the configuration snapshot
// the worker used, so a finished run can be reproduced later.
type RunDetailResponse struct {
	RunResponse
	Params         models.RunParams `json:"params"`
	Stats          json.RawMessage  `json:"stats,omitempty"`
	ConfigSnapshot json.RawMessage  `json:"config_snapshot,omitempty"`
}
