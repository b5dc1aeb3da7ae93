package engine

import (
	"math/rand"
	"sort"
	"time"
)

// RoomCategory pairs a room type with its knowledge-area tag. A section may
// only be placed in a room whose category matches on both fields.
type RoomCategory struct {
	Type          string `json:"type"`
	KnowledgeArea string `json:"knowledge_area"`
}

// Section is one course section to place. Values are read-only inputs.
type Section struct {
	ID            string
	ProfessorID   string
	ClassGroupID  string
	RoomCategory  RoomCategory
	Duration      int
	Regime        Regime
	PriorityClass int
	Active        bool
}

// Room is a schedulable room. Values are read-only inputs.
type Room struct {
	ID       string
	Category RoomCategory
}

// Assignment is one committed placement. Score is the availability weight
// sum the placement earned.
type Assignment struct {
	SectionID string `json:"section_id"`
	RoomID    string `json:"room_id"`
	Day       int    `json:"day"`
	Start     int    `json:"start_period"`
	Duration  int    `json:"duration"`
	Score     int    `json:"score"`
}

// Span returns the assignment's period span.
func (a Assignment) Span() Span {
	return Span{Day: a.Day, Start: a.Start, Duration: a.Duration}
}

// UnassignedReason tags why a section could not be placed.
type UnassignedReason string

const (
	ReasonNoRoomOfRequiredCategory UnassignedReason = "no_room_of_required_category"
	ReasonNoFeasibleTimeSlot       UnassignedReason = "no_feasible_time_slot"
	ReasonConflictExhausted        UnassignedReason = "conflict_exhausted"
)

// Unassigned pairs a skipped section with its reason tag.
type Unassigned struct {
	SectionID string           `json:"section_id"`
	Reason    UnassignedReason `json:"reason"`
}

// Stats aggregates run quality and refinement counters.
type Stats struct {
	TotalSections     int                `json:"total_sections"`
	AssignedCount     int                `json:"assigned_count"`
	UnassignedCount   int                `json:"unassigned_count"`
	AssignmentRate    float64            `json:"assignment_rate"`
	PreferenceScore   int                `json:"preference_score"`
	ObjectiveBefore   float64            `json:"objective_before"`
	ObjectiveAfter    float64            `json:"objective_after"`
	Iterations        int                `json:"iterations"`
	AcceptedMoves     int                `json:"accepted_moves"`
	RejectedMoves     int                `json:"rejected_moves"`
	InfeasibleMoves   int                `json:"infeasible_moves"`
	AssignmentsPerDay [DaysPerWeek]int   `json:"assignments_per_day"`
	ProfessorsUsed    int                `json:"professors_used"`
	RoomsUsed         int                `json:"rooms_used"`
	GroupsPlaced      int                `json:"groups_placed"`
	ElapsedMS         int64              `json:"elapsed_ms"`
}

// Result is the output of one scheduling run. Assignments keep commit order;
// unassigned sections keep the order they were attempted in.
type Result struct {
	Assignments []Assignment `json:"assignments"`
	Unassigned  []Unassigned `json:"unassigned"`
	Stats       Stats        `json:"stats"`
}

// Inputs carries the already validated collections for one run.
type Inputs struct {
	Sections     []Section
	Rooms        []Room
	Availability []AvailabilitySlot
}

// ObjectiveWeights tunes the refiner's soft-constraint trade-offs.
type ObjectiveWeights struct {
	Preference float64 `json:"preference"`
	Gap        float64 `json:"gap"`
	DayBalance float64 `json:"day_balance"`
}

// AnnealingConfig bounds the refinement pass. MaxIterations 0 disables it.
type AnnealingConfig struct {
	InitialTemperature float64 `json:"initial_temperature"`
	CoolingRate        float64 `json:"cooling_rate"`
	MaxIterations      int     `json:"max_iterations"`
	MinTemperature     float64 `json:"min_temperature"`
	SampleSize         int     `json:"sample_size"`
}

// Config carries grid geometry plus refinement tuning for one run.
type Config struct {
	Grid      GridConfig       `json:"grid"`
	Weights   ObjectiveWeights `json:"weights"`
	Annealing AnnealingConfig  `json:"annealing"`
}

// DefaultConfig returns the standard 30-period grid: day classes run in
// periods 1-20 and night classes in 21-30, with rest windows at 9-10 and
// 19-20. Priority class 1 prefers mornings, class 2 afternoons.
func DefaultConfig() Config {
	return Config{
		Grid: GridConfig{
			PeriodsPerDay: 30,
			RestWindows:   []PeriodRange{{Start: 9, End: 10}, {Start: 19, End: 20}},
			DayRange:      PeriodRange{Start: 1, End: 20},
			NightRange:    PeriodRange{Start: 21, End: 30},
			Preferred: []PreferredRange{
				{PriorityClass: 1, Regime: RegimeDay, Range: PeriodRange{Start: 1, End: 10}},
				{PriorityClass: 2, Regime: RegimeDay, Range: PeriodRange{Start: 11, End: 20}},
			},
		},
		Weights: ObjectiveWeights{Preference: 1.0, Gap: 0.5, DayBalance: 0.25},
		Annealing: AnnealingConfig{
			InitialTemperature: 25.0,
			CoolingRate:        0.995,
			MaxIterations:      5000,
			MinTemperature:     0.01,
			SampleSize:         8,
		},
	}
}

// Engine drives one scheduling run. A value is single-use and must not be
// shared between goroutines.
type Engine struct {
	grid      *TimeGrid
	weights   ObjectiveWeights
	annealing AnnealingConfig
	rng       *rand.Rand

	sections []Section
	rooms    []Room
	avail    *availabilitySet
	groups   []string

	tracker     *conflictTracker
	roomUsage   map[string]int
	sectionByID map[string]*Section

	assignments []Assignment
	unplaced    []string

	prefTotal int
	scratch   []uint64
}

// New validates the configuration and prepares a run over the inputs.
// Inactive sections are dropped here. Pass a seeded rng to make refinement
// reproducible; nil falls back to a time-seeded source.
func New(inputs Inputs, cfg Config, rng *rand.Rand) (*Engine, error) {
	grid, err := NewTimeGrid(cfg.Grid)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	sections := make([]Section, 0, len(inputs.Sections))
	for _, sec := range inputs.Sections {
		if sec.Active {
			sections = append(sections, sec)
		}
	}
	sortSections(sections)

	e := &Engine{
		grid:        grid,
		weights:     cfg.Weights,
		annealing:   normalizeAnnealing(cfg.Annealing),
		rng:         rng,
		sections:    sections,
		rooms:       append([]Room(nil), inputs.Rooms...),
		avail:       newAvailabilitySet(cfg.Grid.PeriodsPerDay, inputs.Availability),
		tracker:     newConflictTracker(cfg.Grid.PeriodsPerDay),
		roomUsage:   make(map[string]int, len(inputs.Rooms)),
		sectionByID: make(map[string]*Section, len(sections)),
		scratch:     newBitWords(cfg.Grid.PeriodsPerDay),
	}
	seen := make(map[string]bool)
	for i := range e.sections {
		sec := &e.sections[i]
		e.sectionByID[sec.ID] = sec
		if !seen[sec.ClassGroupID] {
			seen[sec.ClassGroupID] = true
			e.groups = append(e.groups, sec.ClassGroupID)
		}
	}
	sort.Strings(e.groups)
	return e, nil
}

// Grid exposes the validated time grid backing the run.
func (e *Engine) Grid() *TimeGrid {
	return e.grid
}

// Run executes greedy construction, annealing refinement, and assembly.
// The only error cause is a ConsistencyError, which aborts the run.
func (e *Engine) Run() (*Result, error) {
	started := time.Now()
	if err := e.construct(); err != nil {
		return nil, err
	}
	before := e.objective()
	refined, err := e.refine()
	if err != nil {
		return nil, err
	}
	result := e.assemble(before, refined)
	result.Stats.ElapsedMS = time.Since(started).Milliseconds()
	return result, nil
}

// sortSections orders the construction queue: lower priority class first,
// longer sections first within a class, section id as the stable tail.
func sortSections(sections []Section) {
	sort.Slice(sections, func(i, j int) bool {
		if sections[i].PriorityClass != sections[j].PriorityClass {
			return sections[i].PriorityClass < sections[j].PriorityClass
		}
		if sections[i].Duration != sections[j].Duration {
			return sections[i].Duration > sections[j].Duration
		}
		return sections[i].ID < sections[j].ID
	})
}

func normalizeAnnealing(cfg AnnealingConfig) AnnealingConfig {
	def := DefaultConfig().Annealing
	if cfg.InitialTemperature <= 0 {
		cfg.InitialTemperature = def.InitialTemperature
	}
	if cfg.CoolingRate <= 0 || cfg.CoolingRate >= 1 {
		cfg.CoolingRate = def.CoolingRate
	}
	if cfg.MaxIterations < 0 {
		cfg.MaxIterations = 0
	}
	if cfg.MinTemperature <= 0 {
		cfg.MinTemperature = def.MinTemperature
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	return cfg
}
