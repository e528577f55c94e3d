package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/scholaris-dev/scheduling-core/internal/dto"
	"github.com/scholaris-dev/scheduling-core/internal/models"
	appErrors "github.com/scholaris-dev/scheduling-core/pkg/errors"
	"github.com/scholaris-dev/scheduling-core/pkg/metrics"
)

type sectioningStudentStore interface {
	ListUnassignedFreshmen(ctx context.Context, termID, programID string) ([]models.FreshmanCandidate, error)
	UpdateHomeSection(ctx context.Context, exec sqlx.ExtContext, studentID string, sectionID *string) error
}

type sectioningSectionStore interface {
	ListOpenByProgramYear(ctx context.Context, termID, programID string, yearLevel int) ([]models.Section, error)
}

type sectionOfferingLister interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.SectionSubject, error)
}

type sectioningEnrollmentStore interface {
	CountDistinctEnrolledBySection(ctx context.Context, termID string) (map[string]int, error)
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, enrollments []models.SubjectEnrollment) error
}

// SectioningService assigns freshmen to home sections first come, first
// served, and auto-enrolls them in the section's full course load.
type SectioningService struct {
	students    sectioningStudentStore
	sections    sectioningSectionStore
	offerings   sectionOfferingLister
	enrollments sectioningEnrollmentStore
	terms       builderTermReader
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *metrics.BatchMetrics
}

// NewSectioningService constructs SectioningService.
func NewSectioningService(
	students sectioningStudentStore,
	sections sectioningSectionStore,
	offerings sectionOfferingLister,
	enrollments sectioningEnrollmentStore,
	terms builderTermReader,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	batchMetrics *metrics.BatchMetrics,
) *SectioningService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectioningService{
		students:    students,
		sections:    sections,
		offerings:   offerings,
		enrollments: enrollments,
		terms:       terms,
		tx:          tx,
		validator:   validate,
		logger:      logger,
		metrics:     batchMetrics,
	}
}

// RunFreshmanQueue places every year-1 student without a home section,
// ordered by enrollment creation time ascending: pure FCFS, earliest
// request wins. Students who fit nowhere are skipped with a no-capacity
// event and retried on the next run.
func (s *SectioningService) RunFreshmanQueue(ctx context.Context, req dto.FreshmanQueueRequest) (*dto.SectioningSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid freshman queue request")
	}
	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	candidates, err := s.students.ListUnassignedFreshmen(ctx, req.TermID, req.ProgramID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load freshman queue")
	}
	sections, err := s.sections.ListOpenByProgramYear(ctx, req.TermID, req.ProgramID, 1)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sections")
	}
	counts, err := s.enrollments.CountDistinctEnrolledBySection(ctx, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count section enrollment")
	}

	summary := &dto.SectioningSummary{TermID: req.TermID, Candidates: len(candidates)}
	if len(candidates) == 0 {
		return summary, nil
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, candidate := range candidates {
		assigned := false
		for _, section := range sections {
			// capacity is re-checked on every write, never assumed
			if counts[section.ID] >= section.Capacity {
				continue
			}
			if err := s.assignStudent(ctx, tx, candidate.Student, section, req.TermID); err != nil {
				return nil, err
			}
			counts[section.ID]++
			summary.Assigned++
			summary.Events = append(summary.Events, models.Event{
				Kind:     models.EventStudentAssigned,
				Message:  fmt.Sprintf("assigned %s to section %s", candidate.FullName, section.Name),
				EntityID: candidate.ID,
				Meta:     map[string]any{"section_id": section.ID},
			})
			s.metrics.IncStudentAssigned()
			assigned = true
			break
		}
		if !assigned {
			summary.Unassigned++
			summary.Events = append(summary.Events, models.Event{
				Kind:     models.EventNoCapacity,
				Message:  fmt.Sprintf("no section capacity available for %s", candidate.FullName),
				EntityID: candidate.ID,
			})
			s.metrics.IncStudentUnassigned()
			s.logger.Warn("freshman left unassigned, no capacity",
				zap.String("student_id", candidate.ID),
				zap.String("program_id", req.ProgramID),
			)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit sectioning run")
	}
	committed = true
	return summary, nil
}

// assignStudent sets the home section and auto-enrolls the student in every
// offering of that section.
func (s *SectioningService) assignStudent(ctx context.Context, tx *sqlx.Tx, student models.Student, section models.Section, termID string) error {
	sectionID := section.ID
	if err := s.students.UpdateHomeSection(ctx, tx, student.ID, &sectionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set home section")
	}

	offerings, err := s.offerings.ListBySection(ctx, section.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section offerings")
	}
	now := time.Now().UTC()
	enrollments := make([]models.SubjectEnrollment, 0, len(offerings))
	for _, offering := range offerings {
		enrollments = append(enrollments, models.SubjectEnrollment{
			ID:               uuid.NewString(),
			StudentID:        student.ID,
			SectionSubjectID: offering.ID,
			SectionID:        section.ID,
			TermID:           termID,
			Status:           models.EnrollmentStatusEnrolled,
			CreatedAt:        now,
		})
	}
	if err := s.enrollments.CreateBatch(ctx, tx, enrollments); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to auto-enroll student")
	}
	return nil
}
