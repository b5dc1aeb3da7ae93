package engine

import "math/bits"

// AvailabilitySlot is one professor availability cell supplied by the
// caller. Weight 1 marks a favored period; any other value counts as 0.
// Periods with no slot at all also count as 0.
type AvailabilitySlot struct {
	ProfessorID string
	Day         int
	Period      int
	Weight      int
}

type availKey struct {
	professor string
	day       int
}

// availabilitySet answers preference lookups through per-day bit masks, so
// scoring a span is a popcount instead of a period scan.
type availabilitySet struct {
	periods int
	favored map[availKey][]uint64
}

func newAvailabilitySet(periodsPerDay int, slots []AvailabilitySlot) *availabilitySet {
	set := &availabilitySet{periods: periodsPerDay, favored: make(map[availKey][]uint64)}
	for _, slot := range slots {
		if slot.Weight != 1 {
			continue
		}
		if slot.Day < 0 || slot.Day >= DaysPerWeek || slot.Period < 1 || slot.Period > periodsPerDay {
			continue
		}
		key := availKey{professor: slot.ProfessorID, day: slot.Day}
		words := set.favored[key]
		if words == nil {
			words = newBitWords(periodsPerDay)
			set.favored[key] = words
		}
		setBits(words, slot.Period, 1)
	}
	return set
}

// weight returns the availability weight for one period.
func (a *availabilitySet) weight(professorID string, day, period int) int {
	words, ok := a.favored[availKey{professor: professorID, day: day}]
	if !ok || period < 1 || period > a.periods {
		return 0
	}
	if anyBits(words, period, 1) {
		return 1
	}
	return 0
}

// spanScore sums the availability weights across a span.
func (a *availabilitySet) spanScore(professorID string, span Span) int {
	words, ok := a.favored[availKey{professor: professorID, day: span.Day}]
	if !ok {
		return 0
	}
	lo := span.Start - 1
	hi := lo + span.Duration
	score := 0
	for w := lo / wordBits; w*wordBits < hi; w++ {
		score += bits.OnesCount64(words[w] & spanWordMask(w, lo, hi))
	}
	return score
}
