package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/scholaris-dev/scheduling-core/internal/dto"
	"github.com/scholaris-dev/scheduling-core/internal/models"
	"github.com/scholaris-dev/scheduling-core/pkg/config"
	appErrors "github.com/scholaris-dev/scheduling-core/pkg/errors"
	"github.com/scholaris-dev/scheduling-core/pkg/metrics"
)

type builderTermReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type offeringLister interface {
	ListByTerm(ctx context.Context, termID string, sectionIDs []string) ([]models.SectionSubjectDetail, error)
}

type slotStore interface {
	ListDetailByTerm(ctx context.Context, termID string) ([]models.ScheduleSlotDetail, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error
	DeleteByTerm(ctx context.Context, exec sqlx.ExtContext, termID string) error
	DeleteBySections(ctx context.Context, exec sqlx.ExtContext, sectionIDs []string) error
}

type assignmentStore interface {
	ListByTerm(ctx context.Context, termID string) ([]models.ProfessorAssignment, error)
	EnsureAssignment(ctx context.Context, exec sqlx.ExtContext, professorID, sectionSubjectID string) error
}

type roomLister interface {
	ListActive(ctx context.Context) ([]models.Room, error)
}

type enrollmentCounter interface {
	CountDistinctEnrolledBySection(ctx context.Context, termID string) (map[string]int, error)
	ListActiveStudentSections(ctx context.Context, termID string) (map[string][]string, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type buildLocker interface {
	Acquire(ctx context.Context, termID string) (func(), bool, error)
}

// ScheduleBuilder orchestrates slot placement across a term's offerings.
type ScheduleBuilder struct {
	terms       builderTermReader
	offerings   offeringLister
	slots       slotStore
	assignments assignmentStore
	rooms       roomLister
	enrollments enrollmentCounter
	qual        *QualificationService
	tx          txProvider
	locker      buildLocker
	placement   PlacementConfig
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *metrics.BatchMetrics
}

// NewScheduleBuilder wires builder dependencies. locker and metrics may be
// nil: without a locker the caller accepts the single-writer assumption.
func NewScheduleBuilder(
	terms builderTermReader,
	offerings offeringLister,
	slots slotStore,
	assignments assignmentStore,
	rooms roomLister,
	enrollments enrollmentCounter,
	qual *QualificationService,
	tx txProvider,
	locker buildLocker,
	placement PlacementConfig,
	validate *validator.Validate,
	logger *zap.Logger,
	batchMetrics *metrics.BatchMetrics,
) *ScheduleBuilder {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleBuilder{
		terms:       terms,
		offerings:   offerings,
		slots:       slots,
		assignments: assignments,
		rooms:       rooms,
		enrollments: enrollments,
		qual:        qual,
		tx:          tx,
		locker:      locker,
		placement:   placement,
		validator:   validate,
		logger:      logger,
		metrics:     batchMetrics,
	}
}

// Build places every unscheduled offering in scope and commits the new
// slots in one transaction. Placement, capacity, and qualification
// shortfalls are folded into the summary as events; only invalid input
// (unknown term, empty room inventory) is an error.
func (b *ScheduleBuilder) Build(ctx context.Context, req dto.BuildScheduleRequest) (*dto.BuildSummary, error) {
	if err := b.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid build request")
	}
	if _, err := b.terms.FindByID(ctx, req.TermID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	if b.locker != nil {
		release, ok, err := b.locker.Acquire(ctx, req.TermID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire build lock")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrBuildLocked, "")
		}
		defer release()
	}

	rooms, err := b.rooms.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	if len(rooms) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "room inventory is empty")
	}

	if req.ClearExisting {
		if err := b.ClearSchedule(ctx, req.TermID, req.SectionIDs); err != nil {
			return nil, err
		}
	}

	offerings, err := b.offerings.ListByTerm(ctx, req.TermID, req.SectionIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load offerings")
	}
	// stable order so re-running against the same data is reproducible
	sort.Slice(offerings, func(i, j int) bool {
		if offerings[i].SectionName == offerings[j].SectionName {
			return offerings[i].SubjectCode < offerings[j].SubjectCode
		}
		return offerings[i].SectionName < offerings[j].SectionName
	})

	index, existingCounts, workloadMinutes, err := b.loadIndex(ctx, req.TermID)
	if err != nil {
		return nil, err
	}

	sectionSizes, err := b.enrollments.CountDistinctEnrolledBySection(ctx, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count section enrollment")
	}

	studentsBySection := map[string][]string{}
	if b.placement.StudentConflictMode != "" && b.placement.StudentConflictMode != config.StudentConflictOff {
		studentSections, err := b.enrollments.ListActiveStudentSections(ctx, req.TermID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student sections")
		}
		for studentID, sectionIDs := range studentSections {
			index.SetStudentSections(studentID, sectionIDs)
			for _, sectionID := range sectionIDs {
				studentsBySection[sectionID] = append(studentsBySection[sectionID], studentID)
			}
		}
	}

	placement := b.placement
	if req.Strategy != "" {
		placement.Strategy = req.Strategy
	}
	engine := NewPlacementEngine(index, placement, b.logger)
	summary := &dto.BuildSummary{
		TermID:        req.TermID,
		Offerings:     len(offerings),
		WorkloadHours: map[string]float64{},
	}

	var newSlots []models.ScheduleSlot
	type junction struct{ professorID, sectionSubjectID string }
	var junctions []junction

	for _, offering := range offerings {
		resolution, err := b.qual.ResolveProfessor(ctx, offering)
		if err != nil {
			return nil, err
		}
		result := engine.Place(PlacementRequest{
			Offering:      offering,
			ProfessorID:   resolution.Professor.ID,
			Rooms:         rooms,
			SectionSize:   sectionSizes[offering.SectionID],
			ExistingSlots: existingCounts[offering.ID],
			StudentIDs:    studentsBySection[offering.SectionID],
		})

		// a skipped offering keeps its persisted assignment, so the
		// fallback resolution is moot and must not be reported again
		if resolution.Status == ResolutionFallback && result.Status != PlacementSkipped {
			summary.FallbackProfessors++
			summary.Events = append(summary.Events, models.Event{
				Kind:     models.EventFallbackProfessor,
				Message:  resolution.Reason,
				EntityID: offering.ID,
				Meta:     map[string]any{"professor_id": resolution.Professor.ID, "subject_code": offering.SubjectCode},
			})
			b.metrics.IncFallbackProfessor()
		}

		switch result.Status {
		case PlacementSkipped:
			summary.Skipped++
		case PlacementFailed:
			summary.Failed++
			summary.Events = append(summary.Events, models.Event{
				Kind:     models.EventPlacementFailed,
				Message:  fmt.Sprintf("could not place %s for %s after %d attempts", offering.SubjectCode, offering.SectionName, result.Attempts),
				EntityID: offering.ID,
				Meta:     map[string]any{"attempts": result.Attempts},
			})
			b.metrics.IncPlacementFailure()
		case PlacementPlaced:
			summary.Scheduled++
			newSlots = append(newSlots, result.Slots...)
			junctions = append(junctions, junction{professorID: resolution.Professor.ID, sectionSubjectID: offering.ID})
			for _, slot := range result.Slots {
				workloadMinutes[resolution.Professor.ID] += slot.Range().Minutes()
			}
			summary.Events = append(summary.Events, models.Event{
				Kind:     models.EventOfferingScheduled,
				Message:  fmt.Sprintf("scheduled %s for %s (%s)", offering.SubjectCode, offering.SectionName, result.Pattern),
				EntityID: offering.ID,
				Meta:     map[string]any{"pattern": result.Pattern, "slots": len(result.Slots)},
			})
			if result.UsedSaturday {
				summary.Events = append(summary.Events, models.Event{
					Kind:     models.EventSaturdayFallback,
					Message:  fmt.Sprintf("placed %s for %s via Saturday fallback", offering.SubjectCode, offering.SectionName),
					EntityID: offering.ID,
				})
			}
			for _, studentID := range result.StudentConflicts {
				summary.Events = append(summary.Events, models.Event{
					Kind:     models.EventStudentConflictWarned,
					Message:  "placement overlaps an existing booking for a cross-section student",
					EntityID: studentID,
					Meta:     map[string]any{"section_subject_id": offering.ID},
				})
			}
		}
	}

	if len(newSlots) > 0 {
		tx, err := b.tx.BeginTxx(ctx, nil)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()

		if err := b.slots.InsertBatch(ctx, tx, newSlots); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist schedule slots")
		}
		for _, j := range junctions {
			if err := b.assignments.EnsureAssignment(ctx, tx, j.professorID, j.sectionSubjectID); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist professor assignment")
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule build")
		}
		committed = true
	}

	summary.SlotsCreated = len(newSlots)
	b.metrics.AddSlotsPlaced(len(newSlots))
	for professorID, minutes := range workloadMinutes {
		summary.WorkloadHours[professorID] = float64(minutes) / 60.0
	}

	b.logger.Info("schedule build finished",
		zap.String("term_id", req.TermID),
		zap.Int("offerings", summary.Offerings),
		zap.Int("scheduled", summary.Scheduled),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// ClearSchedule deletes all slots in scope. It is always an explicit,
// caller-requested step, never an implicit part of a build.
func (b *ScheduleBuilder) ClearSchedule(ctx context.Context, termID string, sectionIDs []string) error {
	if termID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "term id is required")
	}
	tx, err := b.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if len(sectionIDs) > 0 {
		err = b.slots.DeleteBySections(ctx, tx, sectionIDs)
	} else {
		err = b.slots.DeleteByTerm(ctx, tx, termID)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear schedule")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule clear")
	}
	committed = true
	return nil
}

// loadIndex builds the conflict index from persisted slots and returns the
// per-offering slot counts (for idempotent skips) and per-professor booked
// minutes (for workload reporting).
func (b *ScheduleBuilder) loadIndex(ctx context.Context, termID string) (*ConflictIndex, map[string]int, map[string]int, error) {
	details, err := b.slots.ListDetailByTerm(ctx, termID)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing slots")
	}
	assignments, err := b.assignments.ListByTerm(ctx, termID)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor assignments")
	}

	junction := make(map[string][]string)
	for _, assignment := range assignments {
		junction[assignment.SectionSubjectID] = append(junction[assignment.SectionSubjectID], assignment.ProfessorID)
	}

	index := NewConflictIndex()
	existingCounts := make(map[string]int)
	workloadMinutes := make(map[string]int)
	for _, detail := range details {
		professors := responsibleProfessors(detail, junction)
		index.AddSlot(detail.ScheduleSlot, detail.SectionID, professors)
		existingCounts[detail.SectionSubjectID]++
		for _, professorID := range professors {
			workloadMinutes[professorID] += detail.Range().Minutes()
		}
	}
	return index, existingCounts, workloadMinutes, nil
}
