package engine

// candidateKey is the totally ordered decision key for one candidate.
// Higher availability score wins; ties fall to the least used room, then
// room id, then the earliest day and start.
type candidateKey struct {
	score     int
	roomUsage int
	roomID    string
	day       int
	start     int
}

func (e *Engine) scoreCandidate(sec *Section, cand candidate) candidateKey {
	return candidateKey{
		score:     e.avail.spanScore(sec.ProfessorID, cand.span),
		roomUsage: e.roomUsage[cand.room.ID],
		roomID:    cand.room.ID,
		day:       cand.span.Day,
		start:     cand.span.Start,
	}
}

func (k candidateKey) betterThan(other candidateKey) bool {
	if k.score != other.score {
		return k.score > other.score
	}
	if k.roomUsage != other.roomUsage {
		return k.roomUsage < other.roomUsage
	}
	if k.roomID != other.roomID {
		return k.roomID < other.roomID
	}
	if k.day != other.day {
		return k.day < other.day
	}
	return k.start < other.start
}

// construct places sections in queue order, committing each one's best
// feasible candidate. Sections with no feasible candidate are recorded and
// never block the rest of the queue.
func (e *Engine) construct() error {
	for i := range e.sections {
		sec := &e.sections[i]
		cand, ok := e.bestCandidate(sec)
		if !ok {
			e.unplaced = append(e.unplaced, sec.ID)
			continue
		}
		if err := e.commitAssignment(sec, cand); err != nil {
			return err
		}
	}
	return nil
}

// bestCandidate walks the candidate sequence and keeps the best candidate
// inside the first tier that produced a feasible one. Later tiers are never
// considered once a tier has a feasible candidate.
func (e *Engine) bestCandidate(sec *Section) (candidate, bool) {
	iter := e.newCandidateIter(sec)
	var best candidate
	var bestKey candidateKey
	found := false
	bestTier := 0
	for {
		cand, ok := iter.next()
		if !ok {
			break
		}
		if found && cand.tier != bestTier {
			break
		}
		if !e.tracker.placementFree(sec, cand.room.ID, cand.span) {
			continue
		}
		key := e.scoreCandidate(sec, cand)
		if !found {
			found = true
			bestTier = cand.tier
			best, bestKey = cand, key
			continue
		}
		if key.betterThan(bestKey) {
			best, bestKey = cand, key
		}
	}
	return best, found
}

func (e *Engine) commitAssignment(sec *Section, cand candidate) error {
	if err := e.tracker.commit(sec, cand.room.ID, cand.span); err != nil {
		return err
	}
	score := e.avail.spanScore(sec.ProfessorID, cand.span)
	e.assignments = append(e.assignments, Assignment{
		SectionID: sec.ID,
		RoomID:    cand.room.ID,
		Day:       cand.span.Day,
		Start:     cand.span.Start,
		Duration:  cand.span.Duration,
		Score:     score,
	})
	e.roomUsage[cand.room.ID]++
	e.prefTotal += score
	return nil
}
