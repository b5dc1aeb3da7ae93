package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvailabilityWeightDefaultsToZero(t *testing.T) {
	set := newAvailabilitySet(12, []AvailabilitySlot{
		{ProfessorID: "prof-a", Day: 0, Period: 3, Weight: 1},
		{ProfessorID: "prof-a", Day: 0, Period: 4, Weight: 0},
	})

	assert.Equal(t, 1, set.weight("prof-a", 0, 3))
	assert.Equal(t, 0, set.weight("prof-a", 0, 4), "explicit zero weight")
	assert.Equal(t, 0, set.weight("prof-a", 0, 5), "missing entry")
	assert.Equal(t, 0, set.weight("prof-a", 1, 3), "other day")
	assert.Equal(t, 0, set.weight("prof-b", 0, 3), "unknown professor")
}

func TestAvailabilitySpanScoreSumsWeights(t *testing.T) {
	set := newAvailabilitySet(12, []AvailabilitySlot{
		{ProfessorID: "prof-a", Day: 2, Period: 1, Weight: 1},
		{ProfessorID: "prof-a", Day: 2, Period: 2, Weight: 1},
		{ProfessorID: "prof-a", Day: 2, Period: 3, Weight: 1},
		{ProfessorID: "prof-a", Day: 2, Period: 6, Weight: 1},
	})

	assert.Equal(t, 3, set.spanScore("prof-a", Span{Day: 2, Start: 1, Duration: 4}))
	assert.Equal(t, 2, set.spanScore("prof-a", Span{Day: 2, Start: 2, Duration: 2}))
	assert.Equal(t, 1, set.spanScore("prof-a", Span{Day: 2, Start: 4, Duration: 3}))
	assert.Equal(t, 0, set.spanScore("prof-a", Span{Day: 3, Start: 1, Duration: 4}))
	assert.Equal(t, 0, set.spanScore("prof-b", Span{Day: 2, Start: 1, Duration: 4}))
}

func TestAvailabilityIgnoresOutOfRangeSlots(t *testing.T) {
	set := newAvailabilitySet(12, []AvailabilitySlot{
		{ProfessorID: "prof-a", Day: -1, Period: 3, Weight: 1},
		{ProfessorID: "prof-a", Day: 5, Period: 3, Weight: 1},
		{ProfessorID: "prof-a", Day: 0, Period: 0, Weight: 1},
		{ProfessorID: "prof-a", Day: 0, Period: 13, Weight: 1},
	})

	for day := 0; day < DaysPerWeek; day++ {
		assert.Equal(t, 0, set.spanScore("prof-a", Span{Day: day, Start: 1, Duration: 12}))
	}
}
