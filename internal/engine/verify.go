package engine

import "fmt"

// Verify re-checks every hard constraint of a result from its assignments
// alone: known sections and rooms, exact category match, duration integrity,
// regime ranges, rest windows, and double booking across professors, rooms,
// and class groups. It returns the first violation found.
func Verify(grid *TimeGrid, sections []Section, rooms []Room, result *Result) error {
	if result == nil {
		return fmt.Errorf("verify: nil result")
	}
	sectionByID := make(map[string]*Section, len(sections))
	for i := range sections {
		sectionByID[sections[i].ID] = &sections[i]
	}
	roomByID := make(map[string]*Room, len(rooms))
	for i := range rooms {
		roomByID[rooms[i].ID] = &rooms[i]
	}

	tracker := newConflictTracker(grid.PeriodsPerDay())
	for _, asg := range result.Assignments {
		sec := sectionByID[asg.SectionID]
		if sec == nil {
			return fmt.Errorf("verify: assignment references unknown section %s", asg.SectionID)
		}
		room := roomByID[asg.RoomID]
		if room == nil {
			return fmt.Errorf("verify: section %s placed in unknown room %s", asg.SectionID, asg.RoomID)
		}
		if asg.Duration != sec.Duration {
			return fmt.Errorf("verify: section %s placed for %d periods, requires %d", sec.ID, asg.Duration, sec.Duration)
		}
		if room.Category != sec.RoomCategory {
			return fmt.Errorf("verify: section %s requires room category %s/%s, room %s is %s/%s",
				sec.ID, sec.RoomCategory.Type, sec.RoomCategory.KnowledgeArea,
				room.ID, room.Category.Type, room.Category.KnowledgeArea)
		}
		if asg.Day < 0 || asg.Day >= DaysPerWeek {
			return fmt.Errorf("verify: section %s assigned to day %d", sec.ID, asg.Day)
		}
		if !grid.SpanFits(asg.Start, asg.Duration, sec.Regime) {
			return fmt.Errorf("verify: section %s span %d-%d violates the %s range or a rest window",
				sec.ID, asg.Start, asg.Span().End(), sec.Regime)
		}
		if err := tracker.commit(sec, room.ID, asg.Span()); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
	}
	return nil
}
