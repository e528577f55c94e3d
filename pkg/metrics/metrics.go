package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BatchMetrics counts the outcomes of scheduling and sectioning runs.
// A nil *BatchMetrics is a valid no-op recorder.
type BatchMetrics struct {
	SlotsPlaced        prometheus.Counter
	PlacementFailures  prometheus.Counter
	FallbackProfessors prometheus.Counter
	StudentsAssigned   prometheus.Counter
	StudentsUnassigned prometheus.Counter
	SectionsDissolved  prometheus.Counter
}

// New registers and returns batch counters on the given registerer.
func New(reg prometheus.Registerer) *BatchMetrics {
	m := &BatchMetrics{
		SlotsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduling_slots_placed_total",
			Help: "Schedule slots committed by the builder.",
		}),
		PlacementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduling_placement_failures_total",
			Help: "Offerings left unscheduled after exhausting the search.",
		}),
		FallbackProfessors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduling_fallback_professors_total",
			Help: "Offerings assigned an unqualified fallback professor.",
		}),
		StudentsAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sectioning_students_assigned_total",
			Help: "Students placed into a home section.",
		}),
		StudentsUnassigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sectioning_students_unassigned_total",
			Help: "Students skipped because no section had capacity.",
		}),
		SectionsDissolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sectioning_sections_dissolved_total",
			Help: "Underfilled sections merged into a sibling.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SlotsPlaced,
			m.PlacementFailures,
			m.FallbackProfessors,
			m.StudentsAssigned,
			m.StudentsUnassigned,
			m.SectionsDissolved,
		)
	}
	return m
}

// AddSlotsPlaced records committed slots.
func (m *BatchMetrics) AddSlotsPlaced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SlotsPlaced.Add(float64(n))
}

// IncPlacementFailure records one unschedulable offering.
func (m *BatchMetrics) IncPlacementFailure() {
	if m == nil {
		return
	}
	m.PlacementFailures.Inc()
}

// IncFallbackProfessor records one fallback assignment.
func (m *BatchMetrics) IncFallbackProfessor() {
	if m == nil {
		return
	}
	m.FallbackProfessors.Inc()
}

// IncStudentAssigned records one home-section placement.
func (m *BatchMetrics) IncStudentAssigned() {
	if m == nil {
		return
	}
	m.StudentsAssigned.Inc()
}

// IncStudentUnassigned records one capacity skip.
func (m *BatchMetrics) IncStudentUnassigned() {
	if m == nil {
		return
	}
	m.StudentsUnassigned.Inc()
}

// IncSectionDissolved records one merge.
func (m *BatchMetrics) IncSectionDissolved() {
	if m == nil {
		return
	}
	m.SectionsDissolved.Inc()
}
