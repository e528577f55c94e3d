package service

import (
	"github.com/scholaris-dev/scheduling-core/internal/models"
)

// EntityKind names the booking dimensions the conflict index tracks.
type EntityKind string

const (
	KindProfessor EntityKind = "PROFESSOR"
	KindRoom      EntityKind = "ROOM"
	KindSection   EntityKind = "SECTION"
	KindStudent   EntityKind = "STUDENT"
)

type bucketRef struct {
	kind EntityKind
	key  string
}

// ConflictIndex answers "is this entity already booked at (day, range)?" for
// professors, rooms, sections, and students. It is built per batch run from
// the persisted slots and updated incrementally as the placement engine
// commits tentative slots.
type ConflictIndex struct {
	byProfessor map[string][]models.ScheduleSlot
	byRoom      map[string][]models.ScheduleSlot
	bySection   map[string][]models.ScheduleSlot

	// studentSections maps a student to the sections of their ACTIVE subject
	// enrollments, independent of home section. Student conflicts are
	// resolved through section bookings.
	studentSections map[string][]string

	locations map[string][]bucketRef
}

// NewConflictIndex returns an empty index.
func NewConflictIndex() *ConflictIndex {
	return &ConflictIndex{
		byProfessor:     make(map[string][]models.ScheduleSlot),
		byRoom:          make(map[string][]models.ScheduleSlot),
		bySection:       make(map[string][]models.ScheduleSlot),
		studentSections: make(map[string][]string),
		locations:       make(map[string][]bucketRef),
	}
}

// AddSlot indexes one slot under its section, its room (blank rooms are
// never indexed and therefore never conflict), and every professor
// responsible for it.
func (ix *ConflictIndex) AddSlot(slot models.ScheduleSlot, sectionID string, professorIDs []string) {
	ix.bySection[sectionID] = append(ix.bySection[sectionID], slot)
	ix.locations[slot.ID] = append(ix.locations[slot.ID], bucketRef{kind: KindSection, key: sectionID})

	if slot.Room != "" {
		ix.byRoom[slot.Room] = append(ix.byRoom[slot.Room], slot)
		ix.locations[slot.ID] = append(ix.locations[slot.ID], bucketRef{kind: KindRoom, key: slot.Room})
	}

	seen := make(map[string]bool, len(professorIDs))
	for _, professorID := range professorIDs {
		if professorID == "" || seen[professorID] {
			continue
		}
		seen[professorID] = true
		ix.byProfessor[professorID] = append(ix.byProfessor[professorID], slot)
		ix.locations[slot.ID] = append(ix.locations[slot.ID], bucketRef{kind: KindProfessor, key: professorID})
	}
}

// RemoveSlot drops a slot from every bucket it was indexed under. Used to
// back out tentative placements when a multi-meeting offering fails midway.
func (ix *ConflictIndex) RemoveSlot(slotID string) {
	for _, ref := range ix.locations[slotID] {
		var bucket map[string][]models.ScheduleSlot
		switch ref.kind {
		case KindProfessor:
			bucket = ix.byProfessor
		case KindRoom:
			bucket = ix.byRoom
		case KindSection:
			bucket = ix.bySection
		default:
			continue
		}
		entries := bucket[ref.key]
		kept := entries[:0]
		for _, entry := range entries {
			if entry.ID != slotID {
				kept = append(kept, entry)
			}
		}
		bucket[ref.key] = kept
	}
	delete(ix.locations, slotID)
}

// SetStudentSections registers the sections a student actively attends so
// KindStudent queries can be answered.
func (ix *ConflictIndex) SetStudentSections(studentID string, sectionIDs []string) {
	ix.studentSections[studentID] = sectionIDs
}

// HasConflict reports whether the entity is already booked on day for an
// overlapping range. excludeSlotID skips one slot, used when editing a slot
// in place. The first conflicting slot is returned for diagnostics.
func (ix *ConflictIndex) HasConflict(kind EntityKind, entityID string, day models.Weekday, r models.TimeRange, excludeSlotID string) (bool, *models.ScheduleSlot) {
	switch kind {
	case KindProfessor:
		return scanBookings(ix.byProfessor[entityID], day, r, excludeSlotID)
	case KindRoom:
		if entityID == "" {
			return false, nil
		}
		return scanBookings(ix.byRoom[entityID], day, r, excludeSlotID)
	case KindSection:
		return scanBookings(ix.bySection[entityID], day, r, excludeSlotID)
	case KindStudent:
		for _, sectionID := range ix.studentSections[entityID] {
			if ok, slot := scanBookings(ix.bySection[sectionID], day, r, excludeSlotID); ok {
				return true, slot
			}
		}
		return false, nil
	}
	return false, nil
}

func scanBookings(entries []models.ScheduleSlot, day models.Weekday, r models.TimeRange, excludeSlotID string) (bool, *models.ScheduleSlot) {
	for i := range entries {
		entry := entries[i]
		if entry.ID != "" && entry.ID == excludeSlotID {
			continue
		}
		if entry.Day != day {
			continue
		}
		if entry.Range().Overlaps(r) {
			return true, &entry
		}
	}
	return false, nil
}

// responsibleProfessors resolves the professors considered busy by a slot.
// Three sources apply: the slot-level override, the offering's default
// professor when no override is set, and every junction-table assignment for
// the offering. Schedules may be entered before or after professor
// assignment, so all three must be consulted.
func responsibleProfessors(slot models.ScheduleSlotDetail, assignments map[string][]string) []string {
	var ids []string
	if slot.ProfessorID != nil && *slot.ProfessorID != "" {
		ids = append(ids, *slot.ProfessorID)
	} else if slot.DefaultProfessorID != nil && *slot.DefaultProfessorID != "" {
		ids = append(ids, *slot.DefaultProfessorID)
	}
	ids = append(ids, assignments[slot.SectionSubjectID]...)
	return ids
}
