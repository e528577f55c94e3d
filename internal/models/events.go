package models

// EventKind discriminates the structured events a batch run reports.
type EventKind string

const (
	EventOfferingScheduled     EventKind = "OFFERING_SCHEDULED"
	EventFallbackProfessor     EventKind = "FALLBACK_PROFESSOR_ASSIGNED"
	EventPlacementFailed       EventKind = "PLACEMENT_FAILED"
	EventSaturdayFallback      EventKind = "SATURDAY_FALLBACK_USED"
	EventStudentAssigned       EventKind = "STUDENT_ASSIGNED"
	EventNoCapacity            EventKind = "NO_CAPACITY"
	EventSectionDissolved      EventKind = "SECTION_DISSOLVED"
	EventUnderfilledNoSibling  EventKind = "UNDERFILLED_NO_SIBLING"
	EventPrerequisiteCycle     EventKind = "PREREQUISITE_CYCLE"
	EventStudentConflictWarned EventKind = "STUDENT_CONFLICT_WARNED"
)

// Event is a structured batch event. Soft failures (unplaceable offerings,
// full sections, fallback professors) are reported through events, never as
// errors that abort the batch.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Message  string         `json:"message"`
	EntityID string         `json:"entity_id,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}
