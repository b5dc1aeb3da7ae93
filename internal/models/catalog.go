package models

import "time"

// Regime mirrors the scheduling regimes understood by the engine.
type Regime string

const (
	RegimeDay          Regime = "day"
	RegimeNight        Regime = "night"
	RegimeUnrestricted Regime = "unrestricted"
)

// Professor represents an instructor record.
type Professor struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProfessorFilter captures filtering options for listing professors.
type ProfessorFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassGroup represents a cohort of students that attends sections together.
// Regime and priority class are resolved from the group code at creation
// time and stored explicitly so the engine never re-derives them.
type ClassGroup struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	Year          int       `db:"year" json:"year"`
	Regime        Regime    `db:"regime" json:"regime"`
	PriorityClass int       `db:"priority_class" json:"priority_class"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ClassGroupFilter captures filtering options for listing class groups.
type ClassGroupFilter struct {
	Regime    *Regime
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Room represents a schedulable room with its category.
type Room struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	Type          string    `db:"type" json:"type"`
	KnowledgeArea string    `db:"knowledge_area" json:"knowledge_area"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// RoomFilter captures filtering options for listing rooms.
type RoomFilter struct {
	Type          string
	KnowledgeArea string
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// Section represents one course section: a professor teaching a class group
// for a contiguous block of periods in a room of the required category.
type Section struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	CourseName    string    `db:"course_name" json:"course_name"`
	ProfessorID   string    `db:"professor_id" json:"professor_id"`
	ClassGroupID  string    `db:"class_group_id" json:"class_group_id"`
	RoomType      string    `db:"room_type" json:"room_type"`
	KnowledgeArea string    `db:"knowledge_area" json:"knowledge_area"`
	Duration      int       `db:"duration" json:"duration"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// SectionFilter captures filtering options for listing sections.
type SectionFilter struct {
	ProfessorID  string
	ClassGroupID string
	Active       *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// AvailabilitySlot records one professor preference cell. Weight 1 marks a
// favored period; missing cells count as weight 0.
type AvailabilitySlot struct {
	ID          string    `db:"id" json:"id"`
	ProfessorID string    `db:"professor_id" json:"professor_id"`
	Day         int       `db:"day" json:"day"`
	Period      int       `db:"period" json:"period"`
	Weight      int       `db:"weight" json:"weight"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SchedulingSection is the section row joined with its class group fields,
// exactly what a timetable run needs as input.
type SchedulingSection struct {
	ID            string `db:"id"`
	Code          string `db:"code"`
	ProfessorID   string `db:"professor_id"`
	ClassGroupID  string `db:"class_group_id"`
	RoomType      string `db:"room_type"`
	KnowledgeArea string `db:"knowledge_area"`
	Duration      int    `db:"duration"`
	Regime        Regime `db:"regime"`
	PriorityClass int    `db:"priority_class"`
}
