package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RunStatus captures timetable run lifecycle states.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "QUEUED"
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// UnassignedReason enumerates why a section was left out of a timetable.
type UnassignedReason string

const (
	UnassignedNoRoomOfRequiredCategory UnassignedReason = "no_room_of_required_category"
	UnassignedNoFeasibleTimeSlot       UnassignedReason = "no_feasible_time_slot"
	UnassignedConflictExhausted        UnassignedReason = "conflict_exhausted"
)

// TimetableRun is one persisted scheduling run. ConfigSnapshot holds the
// fully resolved grid/weights/annealing configuration the worker used, so a
// finished run can be reproduced even after settings change.
type TimetableRun struct {
	ID              string         `db:"id" json:"id"`
	Status          RunStatus      `db:"status" json:"status"`
	Seed            int64          `db:"seed" json:"seed"`
	Params          RunParams      `db:"params" json:"params"`
	ConfigSnapshot  types.JSONText `db:"config_snapshot" json:"config_snapshot,omitempty"`
	Stats           types.JSONText `db:"stats" json:"stats,omitempty"`
	AssignedCount   int            `db:"assigned_count" json:"assigned_count"`
	UnassignedCount int            `db:"unassigned_count" json:"unassigned_count"`
	CreatedBy       string         `db:"created_by" json:"created_by"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	StartedAt       *time.Time     `db:"started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage    *string        `db:"error_message" json:"error_message,omitempty"`
}

// RunParams stores per-run tuning overrides persisted as JSONB. Nil fields
// fall back to the configured defaults.
type RunParams struct {
	MaxIterations      *int              `json:"maxIterations,omitempty"`
	SampleSize         *int              `json:"sampleSize,omitempty"`
	InitialTemperature *float64          `json:"initialTemperature,omitempty"`
	CoolingRate        *float64          `json:"coolingRate,omitempty"`
	MinTemperature     *float64          `json:"minTemperature,omitempty"`
	Extras             map[string]string `json:"extras,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p RunParams) Value() (driver.Value, error) {
	if p.Extras == nil {
		p.Extras = map[string]string{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal run params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *RunParams) Scan(value interface{}) error {
	if value == nil {
		*p = RunParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for RunParams", value)
	}
	if len(data) == 0 {
		*p = RunParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal run params: %w", err)
	}
	return nil
}

// TimetableAssignment is one committed placement inside a run.
type TimetableAssignment struct {
	ID          string    `db:"id" json:"id"`
	RunID       string    `db:"run_id" json:"run_id"`
	SectionID   string    `db:"section_id" json:"section_id"`
	RoomID      string    `db:"room_id" json:"room_id"`
	Day         int       `db:"day" json:"day"`
	StartPeriod int       `db:"start_period" json:"start_period"`
	Duration    int       `db:"duration" json:"duration"`
	Score       int       `db:"score" json:"score"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AssignmentDetail joins an assignment with its display context.
type AssignmentDetail struct {
	TimetableAssignment
	SectionCode   string `db:"section_code" json:"section_code"`
	CourseName    string `db:"course_name" json:"course_name"`
	ProfessorID   string `db:"professor_id" json:"professor_id"`
	ProfessorName string `db:"professor_name" json:"professor_name"`
	ClassGroupID  string `db:"class_group_id" json:"class_group_id"`
	GroupCode     string `db:"group_code" json:"group_code"`
	RoomCode      string `db:"room_code" json:"room_code"`
}

// UnassignedSection records a section a run could not place, with its reason.
type UnassignedSection struct {
	ID        string           `db:"id" json:"id"`
	RunID     string           `db:"run_id" json:"run_id"`
	SectionID string           `db:"section_id" json:"section_id"`
	Reason    UnassignedReason `db:"reason" json:"reason"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// UnassignedDetail joins an unassigned record with its display context.
type UnassignedDetail struct {
	UnassignedSection
	SectionCode   string `db:"section_code" json:"section_code"`
	CourseName    string `db:"course_name" json:"course_name"`
	ProfessorName string `db:"professor_name" json:"professor_name"`
	GroupCode     string `db:"group_code" json:"group_code"`
}

// RunFilter captures filtering options for listing runs.
type RunFilter struct {
	Status    *RunStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
