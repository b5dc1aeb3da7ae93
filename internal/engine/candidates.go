package engine

import "sort"

const (
	tierPreferred = 0
	tierFallback  = 1
)

type tieredSpan struct {
	span Span
	tier int
}

type candidate struct {
	span Span
	room *Room
	tier int
}

// candidateIter yields the (day, start, room) triples for one section in
// decision order: preferred-tier spans before the rest, days and starts
// ascending within a tier, rooms from least used up. Every iterator is a
// fresh sequence and snapshots the room order at creation time.
type candidateIter struct {
	spans []tieredSpan
	rooms []*Room
	si    int
	ri    int
}

func (e *Engine) newCandidateIter(sec *Section) *candidateIter {
	return &candidateIter{
		spans: e.enumerateSpans(sec),
		rooms: e.matchingRooms(sec),
	}
}

func (it *candidateIter) next() (candidate, bool) {
	if len(it.rooms) == 0 || it.si >= len(it.spans) {
		return candidate{}, false
	}
	cand := candidate{
		span: it.spans[it.si].span,
		room: it.rooms[it.ri],
		tier: it.spans[it.si].tier,
	}
	it.ri++
	if it.ri == len(it.rooms) {
		it.ri = 0
		it.si++
	}
	return cand, true
}

// enumerateSpans lists every legal span for the section, ordered by tier,
// then day, then start period.
func (e *Engine) enumerateSpans(sec *Section) []tieredSpan {
	allowed := e.grid.AllowedRange(sec.Regime)
	preferred, hasPreferred := e.grid.PreferredRange(sec.PriorityClass, sec.Regime)
	var spans []tieredSpan
	for day := 0; day < DaysPerWeek; day++ {
		for start := allowed.Start; start+sec.Duration-1 <= allowed.End; start++ {
			if !e.grid.SpanFits(start, sec.Duration, sec.Regime) {
				continue
			}
			tier := tierFallback
			if hasPreferred && preferred.ContainsSpan(start, sec.Duration) {
				tier = tierPreferred
			}
			spans = append(spans, tieredSpan{
				span: Span{Day: day, Start: start, Duration: sec.Duration},
				tier: tier,
			})
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].tier < spans[j].tier
	})
	return spans
}

// matchingRooms returns the rooms whose category matches the section's
// exactly, least used first, ties broken by room id.
func (e *Engine) matchingRooms(sec *Section) []*Room {
	var rooms []*Room
	for i := range e.rooms {
		if e.rooms[i].Category == sec.RoomCategory {
			rooms = append(rooms, &e.rooms[i])
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if e.roomUsage[rooms[i].ID] != e.roomUsage[rooms[j].ID] {
			return e.roomUsage[rooms[i].ID] < e.roomUsage[rooms[j].ID]
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}
