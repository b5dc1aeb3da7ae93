package engine

import "math"

type refineOutcome struct {
	iterations int
	accepted   int
	rejected   int
	infeasible int
}

// refine runs simulated annealing over the committed assignments, relocating
// one section per iteration. Moves never touch unassigned sections and are
// drawn only from candidates that keep every hard constraint, so the
// assignment count can never drop and the board stays conflict free.
func (e *Engine) refine() (refineOutcome, error) {
	var out refineOutcome
	if len(e.assignments) == 0 || e.annealing.MaxIterations == 0 {
		return out, nil
	}
	temperature := e.annealing.InitialTemperature
	for iter := 0; iter < e.annealing.MaxIterations && temperature >= e.annealing.MinTemperature; iter++ {
		out.iterations++
		accepted, feasible, err := e.annealStep(temperature)
		if err != nil {
			return out, err
		}
		switch {
		case !feasible:
			out.infeasible++
		case accepted:
			out.accepted++
		default:
			out.rejected++
		}
		temperature *= e.annealing.CoolingRate
	}
	return out, nil
}

// annealStep vacates one random assignment, samples relocation candidates
// from its fresh feasible set, and either commits the best sampled move or
// restores the original placement.
func (e *Engine) annealStep(temperature float64) (accepted bool, feasible bool, err error) {
	pos := e.rng.Intn(len(e.assignments))
	current := e.assignments[pos]
	sec := e.sectionByID[current.SectionID]
	oldSpan := current.Span()

	e.tracker.vacate(sec, current.RoomID, oldSpan)
	e.roomUsage[current.RoomID]--

	restore := func() error {
		e.roomUsage[current.RoomID]++
		return e.tracker.commit(sec, current.RoomID, oldSpan)
	}

	var moves []candidate
	iter := e.newCandidateIter(sec)
	for {
		cand, ok := iter.next()
		if !ok {
			break
		}
		if cand.span == oldSpan && cand.room.ID == current.RoomID {
			continue
		}
		if e.tracker.placementFree(sec, cand.room.ID, cand.span) {
			moves = append(moves, cand)
		}
	}
	if len(moves) == 0 {
		return false, false, restore()
	}

	best, bestDelta := e.sampleBestMove(sec, current, moves)
	if bestDelta >= 0 || e.rng.Float64() < math.Exp(bestDelta/temperature) {
		if err := e.tracker.commit(sec, best.room.ID, best.span); err != nil {
			return false, true, err
		}
		e.roomUsage[best.room.ID]++
		score := e.avail.spanScore(sec.ProfessorID, best.span)
		e.prefTotal += score - current.Score
		e.assignments[pos] = Assignment{
			SectionID: sec.ID,
			RoomID:    best.room.ID,
			Day:       best.span.Day,
			Start:     best.span.Start,
			Duration:  best.span.Duration,
			Score:     score,
		}
		return true, true, nil
	}
	return false, true, restore()
}

// sampleBestMove draws up to SampleSize candidates from the feasible set and
// keeps the one with the largest objective delta.
func (e *Engine) sampleBestMove(sec *Section, current Assignment, moves []candidate) (candidate, float64) {
	samples := e.annealing.SampleSize
	if samples > len(moves) {
		samples = len(moves)
	}
	var best candidate
	bestDelta := math.Inf(-1)
	for i := 0; i < samples; i++ {
		cand := moves[e.rng.Intn(len(moves))]
		delta := e.moveDelta(sec, current, cand)
		if delta > bestDelta {
			bestDelta = delta
			best = cand
		}
	}
	return best, bestDelta
}

// moveDelta scores a relocation against the vacated board: preference gain
// minus the change in gap and day-balance penalties for the class group.
// Only the group's terms can change, so the rest of the objective cancels.
func (e *Engine) moveDelta(sec *Section, current Assignment, cand candidate) float64 {
	oldSpan := current.Span()
	newScore := e.avail.spanScore(sec.ProfessorID, cand.span)
	prefDelta := float64(newScore - current.Score)

	group := sec.ClassGroupID
	gapBefore := e.groupDayGap(group, oldSpan.Day, &oldSpan)
	gapAfter := e.groupDayGap(group, cand.span.Day, &cand.span)
	if oldSpan.Day != cand.span.Day {
		gapBefore += e.groupDayGap(group, cand.span.Day, nil)
		gapAfter += e.groupDayGap(group, oldSpan.Day, nil)
	}

	balBefore := e.groupBalance(group, &oldSpan)
	balAfter := e.groupBalance(group, &cand.span)

	return e.weights.Preference*prefDelta -
		e.weights.Gap*(gapAfter-gapBefore) -
		e.weights.DayBalance*(balAfter-balBefore)
}

// objective is the scalar the refiner maximises: the weighted preference
// total minus fragmentation and day-balance penalties over all class groups.
func (e *Engine) objective() float64 {
	gap := 0.0
	balance := 0.0
	for _, group := range e.groups {
		for day := 0; day < DaysPerWeek; day++ {
			gap += e.groupDayGap(group, day, nil)
		}
		balance += e.groupBalance(group, nil)
	}
	return e.weights.Preference*float64(e.prefTotal) - e.weights.Gap*gap - e.weights.DayBalance*balance
}

// groupDayGap measures the idle periods between the group's first and last
// occupied period on one day, optionally overlaying a hypothetical span.
func (e *Engine) groupDayGap(group string, day int, extra *Span) float64 {
	words := e.groupWords(group, day, extra)
	count := popCount(words)
	if count == 0 {
		return 0
	}
	first, last := maskBounds(words)
	return float64(last - first + 1 - count)
}

// groupWords copies the group's occupancy for one day into the scratch
// buffer, optionally overlaying a hypothetical span. The result is only
// valid until the next call.
func (e *Engine) groupWords(group string, day int, extra *Span) []uint64 {
	words := e.scratch
	for i := range words {
		words[i] = 0
	}
	if existing := e.tracker.dayMask(KindClassGroup, group, day); existing != nil {
		copy(words, existing)
	}
	if extra != nil && extra.Day == day {
		setBits(words, extra.Start, extra.Duration)
	}
	return words
}

// groupBalance measures how unevenly the group's occupied periods spread
// across the week, optionally overlaying a hypothetical span.
func (e *Engine) groupBalance(group string, extra *Span) float64 {
	var counts [DaysPerWeek]int
	total := 0
	for day := 0; day < DaysPerWeek; day++ {
		count := popCount(e.tracker.dayMask(KindClassGroup, group, day))
		if extra != nil && extra.Day == day {
			count += extra.Duration
		}
		counts[day] = count
		total += count
	}
	if total == 0 {
		return 0
	}
	mean := float64(total) / float64(DaysPerWeek)
	penalty := 0.0
	for _, count := range counts {
		penalty += math.Abs(float64(count) - mean)
	}
	return penalty
}
