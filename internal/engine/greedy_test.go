package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constructOnly(t *testing.T, inputs Inputs) (*Engine, []Assignment) {
	t.Helper()
	eng := newTestEngine(t, inputs, func(cfg *Config) { cfg.Annealing.MaxIterations = 0 })
	require.NoError(t, eng.construct())
	return eng, eng.assignments
}

func TestConstructOrdersQueueByPriorityDurationID(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-b", func(s *Section) { s.PriorityClass = 2; s.ClassGroupID = "2DB" }),
			testSection("sec-a", func(s *Section) { s.PriorityClass = 1; s.Duration = 1 }),
			testSection("sec-c", func(s *Section) { s.PriorityClass = 1; s.Duration = 3 }),
			testSection("sec-d", func(s *Section) { s.PriorityClass = 1; s.Duration = 1 }),
		},
		Rooms: []Room{testRoom("room-a"), testRoom("room-b")},
	}
	_, assignments := constructOnly(t, inputs)

	require.Len(t, assignments, 4)
	var order []string
	for _, asg := range assignments {
		order = append(order, asg.SectionID)
	}
	assert.Equal(t, []string{"sec-c", "sec-a", "sec-d", "sec-b"}, order)
}

func TestConstructPicksFavoredSpanWithinTier(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{testSection("sec-1")},
		Rooms:    []Room{testRoom("room-a")},
		Availability: []AvailabilitySlot{
			{ProfessorID: "prof-a", Day: 1, Period: 2, Weight: 1},
			{ProfessorID: "prof-a", Day: 1, Period: 3, Weight: 1},
		},
	}
	_, assignments := constructOnly(t, inputs)

	require.Len(t, assignments, 1)
	assert.Equal(t, 1, assignments[0].Day)
	assert.Equal(t, 2, assignments[0].Start)
	assert.Equal(t, 2, assignments[0].Score)
}

func TestConstructNeverLeavesPreferredTierForScore(t *testing.T) {
	// Heavy availability on the fallback span must not beat a zero-score
	// candidate inside the preferred tier.
	inputs := Inputs{
		Sections: []Section{testSection("sec-1")},
		Rooms:    []Room{testRoom("room-a")},
		Availability: []AvailabilitySlot{
			{ProfessorID: "prof-a", Day: 0, Period: 6, Weight: 1},
			{ProfessorID: "prof-a", Day: 0, Period: 7, Weight: 1},
		},
	}
	_, assignments := constructOnly(t, inputs)

	require.Len(t, assignments, 1)
	assert.LessOrEqual(t, assignments[0].Span().End(), 4, "assignment left the preferred tier")
	assert.Equal(t, 0, assignments[0].Score)
}

func TestConstructTieBreaksOnLeastUsedRoom(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-1", func(s *Section) { s.ProfessorID = "prof-a" }),
			testSection("sec-2", func(s *Section) { s.ProfessorID = "prof-b" }),
		},
		Rooms: []Room{testRoom("room-a"), testRoom("room-b")},
	}
	_, assignments := constructOnly(t, inputs)

	require.Len(t, assignments, 2)
	first, second := assignments[0], assignments[1]
	assert.Equal(t, "room-a", first.RoomID, "empty usage ties break on room id")
	assert.Equal(t, "room-b", second.RoomID, "second section takes the least used room")
	assert.Equal(t, 0, second.Day)
	assert.Equal(t, 3, second.Start)
}

func TestConstructMovesToNextDayWhenSlotsTaken(t *testing.T) {
	// One room, one group: day 0 of the preferred tier only fits two spans,
	// so the third section lands on day 1.
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-1"),
			testSection("sec-2"),
			testSection("sec-3"),
		},
		Rooms: []Room{testRoom("room-a")},
	}
	eng, assignments := constructOnly(t, inputs)
	require.Len(t, assignments, 3)

	byID := make(map[string]Assignment)
	for _, asg := range assignments {
		byID[asg.SectionID] = asg
	}
	assert.Equal(t, Span{Day: 0, Start: 1, Duration: 2}, byID["sec-1"].Span())
	assert.Equal(t, Span{Day: 0, Start: 3, Duration: 2}, byID["sec-2"].Span())
	assert.Equal(t, Span{Day: 1, Start: 1, Duration: 2}, byID["sec-3"].Span())
	require.NoError(t, Verify(eng.Grid(), inputs.Sections, inputs.Rooms, &Result{Assignments: assignments}))
}

func TestConstructRecordsUnplacedAndContinues(t *testing.T) {
	inputs := Inputs{
		Sections: []Section{
			testSection("sec-okay"),
			testSection("sec-impossible", func(s *Section) { s.Duration = 9 }),
		},
		Rooms: []Room{testRoom("room-a")},
	}
	eng, assignments := constructOnly(t, inputs)

	require.Len(t, assignments, 1)
	assert.Equal(t, "sec-okay", assignments[0].SectionID)
	require.Len(t, eng.unplaced, 1)
	assert.Equal(t, "sec-impossible", eng.unplaced[0])
}
