package engine

// assemble produces the output contract from the committed board state.
func (e *Engine) assemble(objectiveBefore float64, refined refineOutcome) *Result {
	result := &Result{
		Assignments: append([]Assignment(nil), e.assignments...),
		Unassigned:  make([]Unassigned, 0, len(e.unplaced)),
	}
	for _, sectionID := range e.unplaced {
		result.Unassigned = append(result.Unassigned, Unassigned{
			SectionID: sectionID,
			Reason:    e.unassignedReason(e.sectionByID[sectionID]),
		})
	}
	result.Stats = e.buildStats(result, objectiveBefore, refined)
	return result
}

// unassignedReason reports the first applicable failure for a section that
// could not be placed: no usable room, then no legal span at all, then
// exhaustion of an otherwise nonempty candidate set by conflicts.
func (e *Engine) unassignedReason(sec *Section) UnassignedReason {
	if len(e.matchingRooms(sec)) == 0 {
		return ReasonNoRoomOfRequiredCategory
	}
	if len(e.enumerateSpans(sec)) == 0 {
		return ReasonNoFeasibleTimeSlot
	}
	return ReasonConflictExhausted
}

func (e *Engine) buildStats(result *Result, objectiveBefore float64, refined refineOutcome) Stats {
	stats := Stats{
		TotalSections:   len(e.sections),
		AssignedCount:   len(result.Assignments),
		UnassignedCount: len(result.Unassigned),
		PreferenceScore: e.prefTotal,
		ObjectiveBefore: objectiveBefore,
		ObjectiveAfter:  e.objective(),
		Iterations:      refined.iterations,
		AcceptedMoves:   refined.accepted,
		RejectedMoves:   refined.rejected,
		InfeasibleMoves: refined.infeasible,
	}
	if stats.TotalSections > 0 {
		stats.AssignmentRate = float64(stats.AssignedCount) / float64(stats.TotalSections)
	}
	professors := make(map[string]bool)
	rooms := make(map[string]bool)
	groups := make(map[string]bool)
	for _, asg := range result.Assignments {
		stats.AssignmentsPerDay[asg.Day]++
		rooms[asg.RoomID] = true
		if sec := e.sectionByID[asg.SectionID]; sec != nil {
			professors[sec.ProfessorID] = true
			groups[sec.ClassGroupID] = true
		}
	}
	stats.ProfessorsUsed = len(professors)
	stats.RoomsUsed = len(rooms)
	stats.GroupsPlaced = len(groups)
	return stats
}
