package engine

import (
	"fmt"
	"math/bits"
)

const wordBits = 64

// EntityKind identifies which occupancy dimension a bit-set belongs to.
type EntityKind string

const (
	KindProfessor  EntityKind = "professor"
	KindRoom       EntityKind = "room"
	KindClassGroup EntityKind = "class_group"
)

// Span is a contiguous run of periods on one day. Start is 1-based.
type Span struct {
	Day      int `json:"day"`
	Start    int `json:"start"`
	Duration int `json:"duration"`
}

// End returns the last period covered by the span.
func (s Span) End() int {
	return s.Start + s.Duration - 1
}

// ConsistencyError reports a reserve on an already occupied period. It can
// only be caused by a bookkeeping bug, so a run that sees one is aborted
// rather than returning a corrupt assignment set.
type ConsistencyError struct {
	Kind EntityKind
	ID   string
	Span Span
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("conflict tracker: %s %s already occupied on day %d, periods %d-%d",
		e.Kind, e.ID, e.Span.Day, e.Span.Start, e.Span.End())
}

func newBitWords(periods int) []uint64 {
	return make([]uint64, (periods+wordBits-1)/wordBits)
}

// spanWordMask builds the mask for the slice of [lo, hi) that lands in word w.
// Bounds are 0-based bit positions; the caller guarantees the word is touched.
func spanWordMask(w, lo, hi int) uint64 {
	from := lo
	if base := w * wordBits; from < base {
		from = base
	}
	to := hi
	if limit := (w + 1) * wordBits; to > limit {
		to = limit
	}
	width := to - from
	return (^uint64(0) >> uint(wordBits-width)) << uint(from-w*wordBits)
}

func setBits(words []uint64, start, duration int) {
	lo := start - 1
	hi := lo + duration
	for w := lo / wordBits; w*wordBits < hi; w++ {
		words[w] |= spanWordMask(w, lo, hi)
	}
}

func clearBits(words []uint64, start, duration int) {
	lo := start - 1
	hi := lo + duration
	for w := lo / wordBits; w*wordBits < hi; w++ {
		words[w] &^= spanWordMask(w, lo, hi)
	}
}

func anyBits(words []uint64, start, duration int) bool {
	lo := start - 1
	hi := lo + duration
	for w := lo / wordBits; w*wordBits < hi; w++ {
		if words[w]&spanWordMask(w, lo, hi) != 0 {
			return true
		}
	}
	return false
}

func popCount(words []uint64) int {
	total := 0
	for _, w := range words {
		total += bits.OnesCount64(w)
	}
	return total
}

// maskBounds returns the 1-based first and last set periods. The caller
// guarantees at least one bit is set.
func maskBounds(words []uint64) (first, last int) {
	first, last = -1, -1
	for i, w := range words {
		if w == 0 {
			continue
		}
		if first == -1 {
			first = i*wordBits + bits.TrailingZeros64(w) + 1
		}
		last = i*wordBits + (wordBits - 1 - bits.LeadingZeros64(w)) + 1
	}
	return first, last
}

type trackerKey struct {
	kind EntityKind
	id   string
	day  int
}

// conflictTracker keeps one occupancy bit per (entity, day, period). Spans
// are tested and flipped with whole-word operations instead of period scans,
// and bit vectors are allocated lazily on first reserve.
type conflictTracker struct {
	periods int
	bits    map[trackerKey][]uint64
}

func newConflictTracker(periodsPerDay int) *conflictTracker {
	return &conflictTracker{
		periods: periodsPerDay,
		bits:    make(map[trackerKey][]uint64),
	}
}

// isFree reports whether every period of the span is unoccupied for the
// entity. Entities never seen before are fully free.
func (t *conflictTracker) isFree(kind EntityKind, id string, span Span) bool {
	words, ok := t.bits[trackerKey{kind: kind, id: id, day: span.Day}]
	if !ok {
		return true
	}
	return !anyBits(words, span.Start, span.Duration)
}

// reserve marks the span occupied. Reserving any already occupied period
// fails with a ConsistencyError and leaves the tracker untouched.
func (t *conflictTracker) reserve(kind EntityKind, id string, span Span) error {
	key := trackerKey{kind: kind, id: id, day: span.Day}
	words := t.bits[key]
	if words == nil {
		words = newBitWords(t.periods)
		t.bits[key] = words
	}
	if anyBits(words, span.Start, span.Duration) {
		return &ConsistencyError{Kind: kind, ID: id, Span: span}
	}
	setBits(words, span.Start, span.Duration)
	return nil
}

// release clears the span. It is only called for spans the caller holds.
func (t *conflictTracker) release(kind EntityKind, id string, span Span) {
	words, ok := t.bits[trackerKey{kind: kind, id: id, day: span.Day}]
	if !ok {
		return
	}
	clearBits(words, span.Start, span.Duration)
}

// dayMask exposes the raw occupancy words for one entity-day, or nil when
// nothing was ever reserved there. Callers must not mutate the result.
func (t *conflictTracker) dayMask(kind EntityKind, id string, day int) []uint64 {
	return t.bits[trackerKey{kind: kind, id: id, day: day}]
}

// placementFree reports whether professor, room, and class group are all
// free for the span.
func (t *conflictTracker) placementFree(sec *Section, roomID string, span Span) bool {
	return t.isFree(KindProfessor, sec.ProfessorID, span) &&
		t.isFree(KindRoom, roomID, span) &&
		t.isFree(KindClassGroup, sec.ClassGroupID, span)
}

// commit reserves the span on all three dimensions of a placement.
func (t *conflictTracker) commit(sec *Section, roomID string, span Span) error {
	if err := t.reserve(KindProfessor, sec.ProfessorID, span); err != nil {
		return err
	}
	if err := t.reserve(KindRoom, roomID, span); err != nil {
		return err
	}
	return t.reserve(KindClassGroup, sec.ClassGroupID, span)
}

// vacate releases the span on all three dimensions of a placement.
func (t *conflictTracker) vacate(sec *Section, roomID string, span Span) {
	t.release(KindProfessor, sec.ProfessorID, span)
	t.release(KindRoom, roomID, span)
	t.release(KindClassGroup, sec.ClassGroupID, span)
}
