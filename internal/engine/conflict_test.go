package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerReserveAndReleaseRoundTrip(t *testing.T) {
	tracker := newConflictTracker(12)
	span := Span{Day: 0, Start: 3, Duration: 4}

	require.True(t, tracker.isFree(KindProfessor, "prof-a", span))
	require.NoError(t, tracker.reserve(KindProfessor, "prof-a", span))

	assert.False(t, tracker.isFree(KindProfessor, "prof-a", span))
	assert.False(t, tracker.isFree(KindProfessor, "prof-a", Span{Day: 0, Start: 6, Duration: 2}))
	assert.True(t, tracker.isFree(KindProfessor, "prof-a", Span{Day: 0, Start: 7, Duration: 2}))
	assert.True(t, tracker.isFree(KindProfessor, "prof-a", Span{Day: 1, Start: 3, Duration: 4}))
	assert.True(t, tracker.isFree(KindProfessor, "prof-b", span))
	assert.True(t, tracker.isFree(KindRoom, "prof-a", span))

	tracker.release(KindProfessor, "prof-a", span)
	assert.True(t, tracker.isFree(KindProfessor, "prof-a", span))
}

func TestTrackerReserveOccupiedFails(t *testing.T) {
	tracker := newConflictTracker(12)
	require.NoError(t, tracker.reserve(KindRoom, "room-a", Span{Day: 2, Start: 4, Duration: 3}))

	err := tracker.reserve(KindRoom, "room-a", Span{Day: 2, Start: 6, Duration: 2})
	require.Error(t, err)
	var consistency *ConsistencyError
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, KindRoom, consistency.Kind)
	assert.Equal(t, "room-a", consistency.ID)
	assert.Equal(t, 2, consistency.Span.Day)

	// The failed reserve must leave the board untouched.
	assert.True(t, tracker.isFree(KindRoom, "room-a", Span{Day: 2, Start: 7, Duration: 2}))
	require.NoError(t, tracker.reserve(KindRoom, "room-a", Span{Day: 2, Start: 7, Duration: 2}))
}

func TestTrackerReleaseClearsOnlyOwnSpan(t *testing.T) {
	tracker := newConflictTracker(12)
	first := Span{Day: 1, Start: 1, Duration: 3}
	second := Span{Day: 1, Start: 6, Duration: 3}
	require.NoError(t, tracker.reserve(KindClassGroup, "1DA", first))
	require.NoError(t, tracker.reserve(KindClassGroup, "1DA", second))

	tracker.release(KindClassGroup, "1DA", first)

	assert.True(t, tracker.isFree(KindClassGroup, "1DA", first))
	assert.False(t, tracker.isFree(KindClassGroup, "1DA", second))
}

func TestTrackerSpansCrossWordBoundary(t *testing.T) {
	tracker := newConflictTracker(100)
	span := Span{Day: 0, Start: 60, Duration: 10}

	require.NoError(t, tracker.reserve(KindProfessor, "prof-a", span))
	assert.False(t, tracker.isFree(KindProfessor, "prof-a", Span{Day: 0, Start: 64, Duration: 1}))
	assert.False(t, tracker.isFree(KindProfessor, "prof-a", Span{Day: 0, Start: 65, Duration: 1}))
	assert.False(t, tracker.isFree(KindProfessor, "prof-a", Span{Day: 0, Start: 69, Duration: 1}))
	assert.True(t, tracker.isFree(KindProfessor, "prof-a", Span{Day: 0, Start: 59, Duration: 1}))
	assert.True(t, tracker.isFree(KindProfessor, "prof-a", Span{Day: 0, Start: 70, Duration: 1}))

	tracker.release(KindProfessor, "prof-a", span)
	assert.True(t, tracker.isFree(KindProfessor, "prof-a", Span{Day: 0, Start: 60, Duration: 10}))
}

func TestTrackerCommitAndVacateCoverAllDimensions(t *testing.T) {
	tracker := newConflictTracker(12)
	sec := testSection("sec-1", func(s *Section) { s.ProfessorID = "prof-a"; s.ClassGroupID = "1DA" })
	span := Span{Day: 3, Start: 2, Duration: 2}

	require.NoError(t, tracker.commit(&sec, "room-a", span))
	assert.False(t, tracker.isFree(KindProfessor, "prof-a", span))
	assert.False(t, tracker.isFree(KindRoom, "room-a", span))
	assert.False(t, tracker.isFree(KindClassGroup, "1DA", span))

	other := testSection("sec-2", func(s *Section) { s.ProfessorID = "prof-b"; s.ClassGroupID = "2DB" })
	assert.False(t, tracker.placementFree(&other, "room-a", span), "room is taken")
	assert.True(t, tracker.placementFree(&other, "room-b", span))

	tracker.vacate(&sec, "room-a", span)
	assert.True(t, tracker.placementFree(&other, "room-a", span))
}

func TestMaskBoundsAndPopCount(t *testing.T) {
	words := newBitWords(100)
	setBits(words, 10, 3)
	setBits(words, 70, 2)

	assert.Equal(t, 5, popCount(words))
	first, last := maskBounds(words)
	assert.Equal(t, 10, first)
	assert.Equal(t, 71, last)

	clearBits(words, 70, 2)
	first, last = maskBounds(words)
	assert.Equal(t, 10, first)
	assert.Equal(t, 12, last)
}
