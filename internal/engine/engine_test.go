package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Grid = GridConfig{
		PeriodsPerDay: 12,
		RestWindows:   []PeriodRange{{Start: 5, End: 5}},
		DayRange:      PeriodRange{Start: 1, End: 8},
		NightRange:    PeriodRange{Start: 9, End: 12},
		Preferred: []PreferredRange{
			{PriorityClass: 1, Regime: RegimeDay, Range: PeriodRange{Start: 1, End: 4}},
			{PriorityClass: 2, Regime: RegimeDay, Range: PeriodRange{Start: 6, End: 8}},
		},
	}
	cfg.Annealing.MaxIterations = 400
	cfg.Annealing.SampleSize = 4
	return cfg
}

func testSection(id string, mods ...func(*Section)) Section {
	sec := Section{
		ID:            id,
		ProfessorID:   "prof-a",
		ClassGroupID:  "1DA",
		RoomCategory:  RoomCategory{Type: "theory", KnowledgeArea: "general"},
		Duration:      2,
		Regime:        RegimeDay,
		PriorityClass: 1,
		Active:        true,
	}
	for _, mod := range mods {
		mod(&sec)
	}
	return sec
}

func testRoom(id string) Room {
	return Room{ID: id, Category: RoomCategory{Type: "theory", KnowledgeArea: "general"}}
}

func newTestEngine(t *testing.T, inputs Inputs, mods ...func(*Config)) *Engine {
	t.Helper()
	cfg := testConfig()
	for _, mod := range mods {
		mod(&cfg)
	}
	eng, err := New(inputs, cfg, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	return eng
}

// denseInputs builds a fixture with mixed regimes, durations, and room
// categories, loose enough that every section has room to land somewhere.
func denseInputs() Inputs {
	lab := RoomCategory{Type: "lab", KnowledgeArea: "informatics"}
	sections := []Section{
		testSection("s01", func(s *Section) { s.ProfessorID = "prof-a"; s.Duration = 2 }),
		testSection("s02", func(s *Section) { s.ProfessorID = "prof-b"; s.Duration = 2 }),
		testSection("s03", func(s *Section) { s.ProfessorID = "prof-c"; s.RoomCategory = lab }),
		testSection("s04", func(s *Section) { s.ProfessorID = "prof-a"; s.Duration = 1 }),
		testSection("s05", func(s *Section) { s.ProfessorID = "prof-b"; s.Duration = 3 }),
		testSection("s06", func(s *Section) { s.ProfessorID = "prof-a"; s.ClassGroupID = "2DB"; s.PriorityClass = 2 }),
		testSection("s07", func(s *Section) { s.ProfessorID = "prof-b"; s.ClassGroupID = "2DB"; s.PriorityClass = 2 }),
		testSection("s08", func(s *Section) { s.ProfessorID = "prof-c"; s.ClassGroupID = "2DB"; s.PriorityClass = 2; s.Duration = 1 }),
		testSection("s09", func(s *Section) { s.ProfessorID = "prof-a"; s.ClassGroupID = "2DB"; s.PriorityClass = 2; s.RoomCategory = lab }),
		testSection("s10", func(s *Section) { s.ProfessorID = "prof-c"; s.ClassGroupID = "1NA"; s.Regime = RegimeNight }),
		testSection("s11", func(s *Section) { s.ProfessorID = "prof-a"; s.ClassGroupID = "1NA"; s.Regime = RegimeNight }),
	}
	rooms := []Room{
		testRoom("room-a"),
		testRoom("room-b"),
		{ID: "room-lab", Category: lab},
	}
	availability := []AvailabilitySlot{
		{ProfessorID: "prof-a", Day: 0, Period: 1, Weight: 1},
		{ProfessorID: "prof-a", Day: 0, Period: 2, Weight: 1},
		{ProfessorID: "prof-a", Day: 0, Period: 3, Weight: 1},
		{ProfessorID: "prof-a", Day: 0, Period: 4, Weight: 1},
		{ProfessorID: "prof-b", Day: 1, Period: 6, Weight: 1},
		{ProfessorID: "prof-b", Day: 1, Period: 7, Weight: 1},
		{ProfessorID: "prof-b", Day: 1, Period: 8, Weight: 1},
		{ProfessorID: "prof-c", Day: 2, Period: 1, Weight: 1},
		{ProfessorID: "prof-c", Day: 2, Period: 2, Weight: 1},
		{ProfessorID: "prof-c", Day: 4, Period: 11, Weight: 0},
	}
	return Inputs{Sections: sections, Rooms: rooms, Availability: availability}
}

func TestRunAssignsAllWhenCapacityAllows(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-1", func(s *Section) { s.ProfessorID = "prof-a" }),
			testSection("sec-2", func(s *Section) { s.ProfessorID = "prof-b"; s.ClassGroupID = "2DB"; s.PriorityClass = 2 }),
		},
		Rooms: []Room{testRoom("room-a"), testRoom("room-b")},
	}
	eng := newTestEngine(t, inputs)

	result, err := eng.Run()
	require.NoError(t, err)
	require.Len(t, result.Assignments, 2)
	require.Empty(t, result.Unassigned)
	assert.Equal(t, 2, result.Stats.AssignedCount)
	assert.Equal(t, 1.0, result.Stats.AssignmentRate)
	require.NoError(t, Verify(eng.Grid(), inputs.Sections, inputs.Rooms, result))
}

func TestRunSkipsInactiveSections(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-on"),
			testSection("sec-off", func(s *Section) { s.Active = false }),
		},
		Rooms: []Room{testRoom("room-a")},
	}
	eng := newTestEngine(t, inputs)

	result, err := eng.Run()
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "sec-on", result.Assignments[0].SectionID)
	assert.Equal(t, 1, result.Stats.TotalSections)
	assert.Empty(t, result.Unassigned)
}

func TestRunMarksMissingRoomCategory(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-lab", func(s *Section) {
				s.RoomCategory = RoomCategory{Type: "lab", KnowledgeArea: "informatics"}
			}),
		},
		Rooms: []Room{testRoom("room-a")},
	}
	eng := newTestEngine(t, inputs)

	result, err := eng.Run()
	require.NoError(t, err)
	require.Empty(t, result.Assignments)
	require.Len(t, result.Unassigned, 1)
	assert.Equal(t, "sec-lab", result.Unassigned[0].SectionID)
	assert.Equal(t, ReasonNoRoomOfRequiredCategory, result.Unassigned[0].Reason)
}

func TestRunMarksNoFeasibleTimeSlot(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-long", func(s *Section) { s.Duration = 9 }),
		},
		Rooms: []Room{testRoom("room-a")},
	}
	eng := newTestEngine(t, inputs)

	result, err := eng.Run()
	require.NoError(t, err)
	require.Empty(t, result.Assignments)
	require.Len(t, result.Unassigned, 1)
	assert.Equal(t, ReasonNoFeasibleTimeSlot, result.Unassigned[0].Reason)
}

// Six identical night sections share one professor, one group, and one room,
// and the night range fits exactly one span per day. Five days take five of
// them; the sixth runs out of conflict-free candidates.
func TestRunMarksConflictExhausted(t *testing.T) {
	var sections []Section
	for _, id := range []string{"night-1", "night-2", "night-3", "night-4", "night-5", "night-6"} {
		sections = append(sections, testSection(id, func(s *Section) {
			s.ClassGroupID = "1NA"
			s.Regime = RegimeNight
			s.Duration = 4
		}))
	}
	inputs := Inputs{Sections: sections, Rooms: []Room{testRoom("room-a")}}
	eng := newTestEngine(t, inputs)

	result, err := eng.Run()
	require.NoError(t, err)
	require.Len(t, result.Assignments, 5)
	require.Len(t, result.Unassigned, 1)
	assert.Equal(t, "night-6", result.Unassigned[0].SectionID)
	assert.Equal(t, ReasonConflictExhausted, result.Unassigned[0].Reason)

	days := make(map[int]bool)
	for _, asg := range result.Assignments {
		days[asg.Day] = true
	}
	assert.Len(t, days, 5)
}

func TestRunKeepsNightSectionsInNightRange(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-night", func(s *Section) {
				s.ClassGroupID = "1NA"
				s.Regime = RegimeNight
			}),
		},
		Rooms: []Room{testRoom("room-a")},
	}
	eng := newTestEngine(t, inputs)

	result, err := eng.Run()
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	asg := result.Assignments[0]
	night := eng.Grid().AllowedRange(RegimeNight)
	assert.GreaterOrEqual(t, asg.Start, night.Start)
	assert.LessOrEqual(t, asg.Span().End(), night.End)
}

func TestRunKeepsClassGroupConflictFree(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-1", func(s *Section) { s.ProfessorID = "prof-a"; s.Duration = 1 }),
			testSection("sec-2", func(s *Section) { s.ProfessorID = "prof-b"; s.Duration = 1 }),
		},
		Rooms: []Room{testRoom("room-a"), testRoom("room-b")},
	}
	eng := newTestEngine(t, inputs)

	result, err := eng.Run()
	require.NoError(t, err)
	require.Len(t, result.Assignments, 2)
	require.NoError(t, Verify(eng.Grid(), inputs.Sections, inputs.Rooms, result))

	a, b := result.Assignments[0], result.Assignments[1]
	if a.Day == b.Day {
		overlap := a.Start <= b.Span().End() && b.Start <= a.Span().End()
		assert.False(t, overlap, "same class group booked twice on day %d", a.Day)
	}
}

func TestRunStaysOutOfRestWindows(t *testing.T) {
	eng := newTestEngine(t, denseInputs())

	result, err := eng.Run()
	require.NoError(t, err)
	require.NotEmpty(t, result.Assignments)
	for _, asg := range result.Assignments {
		for p := asg.Start; p <= asg.Span().End(); p++ {
			assert.False(t, eng.Grid().IsRest(p), "assignment %s covers rest period %d", asg.SectionID, p)
		}
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	first, err := mustRun(denseInputs(), 42)
	require.NoError(t, err)
	second, err := mustRun(denseInputs(), 42)
	require.NoError(t, err)

	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Unassigned, second.Unassigned)
	assert.Equal(t, first.Stats.PreferenceScore, second.Stats.PreferenceScore)
	assert.Equal(t, first.Stats.AcceptedMoves, second.Stats.AcceptedMoves)
}

func TestRunNeverHitsConsistencyError(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		result, err := mustRun(denseInputs(), seed)
		require.NoError(t, err, "seed %d", seed)
		require.NotNil(t, result)
	}
}

func TestRunResultPassesVerify(t *testing.T) {
	inputs := denseInputs()
	eng := newTestEngine(t, inputs)

	result, err := eng.Run()
	require.NoError(t, err)
	require.NoError(t, Verify(eng.Grid(), inputs.Sections, inputs.Rooms, result))
}

func TestRunReportsStats(t *testing.T) {
	inputs := denseInputs()
	eng := newTestEngine(t, inputs)

	result, err := eng.Run()
	require.NoError(t, err)

	stats := result.Stats
	assert.Equal(t, len(result.Assignments), stats.AssignedCount)
	assert.Equal(t, len(result.Unassigned), stats.UnassignedCount)
	assert.Equal(t, stats.AssignedCount+stats.UnassignedCount, stats.TotalSections)

	perDay := 0
	scoreSum := 0
	for _, asg := range result.Assignments {
		scoreSum += asg.Score
	}
	for _, count := range stats.AssignmentsPerDay {
		perDay += count
	}
	assert.Equal(t, stats.AssignedCount, perDay)
	assert.Equal(t, scoreSum, stats.PreferenceScore)
	assert.Positive(t, stats.Iterations)
}

func TestNewRejectsInvalidGrid(t *testing.T) {
	cfg := testConfig()
	cfg.Grid.NightRange = PeriodRange{Start: 8, End: 12}

	_, err := New(denseInputs(), cfg, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "regime_ranges", cfgErr.Field)
}

func randSource(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func mustRun(inputs Inputs, seed int64) (*Result, error) {
	eng, err := New(inputs, testConfig(), randSource(seed))
	if err != nil {
		return nil, err
	}
	return eng.Run()
}
