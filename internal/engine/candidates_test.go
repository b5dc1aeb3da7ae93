package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectCandidates(iter *candidateIter) []candidate {
	var all []candidate
	for {
		cand, ok := iter.next()
		if !ok {
			return all
		}
		all = append(all, cand)
	}
}

func TestCandidateSpansSkipRestWindows(t *testing.T) {
	eng := newTestEngine(t, Inputs{Rooms: []Room{testRoom("room-a")}})
	sec := testSection("sec-1")

	spans := eng.enumerateSpans(&sec)
	require.NotEmpty(t, spans)
	starts := make(map[int]bool)
	for _, ts := range spans {
		starts[ts.span.Start] = true
		assert.False(t, ts.span.Start <= 5 && ts.span.End() >= 5, "span %+v covers the rest period", ts.span)
	}
	assert.True(t, starts[1])
	assert.True(t, starts[3])
	assert.True(t, starts[6])
	assert.False(t, starts[4])
	assert.False(t, starts[5])
}

func TestCandidateSpansOrderPreferredTierFirst(t *testing.T) {
	eng := newTestEngine(t, Inputs{Rooms: []Room{testRoom("room-a")}})
	sec := testSection("sec-1")

	spans := eng.enumerateSpans(&sec)
	require.NotEmpty(t, spans)
	assert.Equal(t, Span{Day: 0, Start: 1, Duration: 2}, spans[0].span)
	assert.Equal(t, tierPreferred, spans[0].tier)

	seenFallback := false
	var prev *tieredSpan
	for i := range spans {
		ts := spans[i]
		if ts.tier == tierFallback {
			seenFallback = true
		} else {
			require.False(t, seenFallback, "preferred span after a fallback span")
		}
		if prev != nil && prev.tier == ts.tier {
			inOrder := ts.span.Day > prev.span.Day || (ts.span.Day == prev.span.Day && ts.span.Start > prev.span.Start)
			assert.True(t, inOrder, "span %+v out of order within its tier", ts.span)
		}
		prev = &spans[i]
	}
	require.True(t, seenFallback)
}

func TestCandidateSpansWithoutPreferredRangeShareOneTier(t *testing.T) {
	eng := newTestEngine(t, Inputs{Rooms: []Room{testRoom("room-a")}})
	sec := testSection("sec-night", func(s *Section) {
		s.Regime = RegimeNight
		s.ClassGroupID = "1NA"
	})

	spans := eng.enumerateSpans(&sec)
	require.NotEmpty(t, spans)
	for _, ts := range spans {
		assert.Equal(t, tierFallback, ts.tier)
		assert.GreaterOrEqual(t, ts.span.Start, 9)
		assert.LessOrEqual(t, ts.span.End(), 12)
	}
}

func TestCandidateRoomsOrderedByUsageThenID(t *testing.T) {
	eng := newTestEngine(t, Inputs{
		Rooms: []Room{testRoom("room-c"), testRoom("room-a"), testRoom("room-b")},
	})
	eng.roomUsage["room-a"] = 2
	eng.roomUsage["room-b"] = 1
	sec := testSection("sec-1")

	rooms := eng.matchingRooms(&sec)
	require.Len(t, rooms, 3)
	assert.Equal(t, "room-c", rooms[0].ID)
	assert.Equal(t, "room-b", rooms[1].ID)
	assert.Equal(t, "room-a", rooms[2].ID)
}

func TestCandidateRoomsRequireExactCategory(t *testing.T) {
	eng := newTestEngine(t, Inputs{
		Rooms: []Room{
			testRoom("room-a"),
			{ID: "room-lab", Category: RoomCategory{Type: "lab", KnowledgeArea: "general"}},
			{ID: "room-info", Category: RoomCategory{Type: "theory", KnowledgeArea: "informatics"}},
		},
	})
	sec := testSection("sec-1")

	rooms := eng.matchingRooms(&sec)
	require.Len(t, rooms, 1)
	assert.Equal(t, "room-a", rooms[0].ID)
}

func TestCandidateIterCrossesRoomsPerSpan(t *testing.T) {
	eng := newTestEngine(t, Inputs{
		Rooms: []Room{testRoom("room-a"), testRoom("room-b")},
	})
	sec := testSection("sec-1")

	all := collectCandidates(eng.newCandidateIter(&sec))
	require.NotEmpty(t, all)
	require.Equal(t, len(eng.enumerateSpans(&sec))*2, len(all))

	assert.Equal(t, "room-a", all[0].room.ID)
	assert.Equal(t, "room-b", all[1].room.ID)
	assert.Equal(t, all[0].span, all[1].span)
	assert.NotEqual(t, all[1].span, all[2].span)
}

func TestCandidateIterIsFreshPerCall(t *testing.T) {
	eng := newTestEngine(t, Inputs{Rooms: []Room{testRoom("room-a")}})
	sec := testSection("sec-1")

	first := eng.newCandidateIter(&sec)
	burned, ok := first.next()
	require.True(t, ok)

	second := eng.newCandidateIter(&sec)
	fresh, ok := second.next()
	require.True(t, ok)
	assert.Equal(t, burned.span, fresh.span)
	assert.Equal(t, burned.room.ID, fresh.room.ID)
}

func TestCandidateIterEmptyWithoutMatchingRoom(t *testing.T) {
	eng := newTestEngine(t, Inputs{Rooms: []Room{testRoom("room-a")}})
	sec := testSection("sec-lab", func(s *Section) {
		s.RoomCategory = RoomCategory{Type: "lab", KnowledgeArea: "informatics"}
	})

	_, ok := eng.newCandidateIter(&sec).next()
	assert.False(t, ok)
}
