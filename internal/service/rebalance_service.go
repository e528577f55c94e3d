package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/scholaris-dev/scheduling-core/internal/dto"
	"github.com/scholaris-dev/scheduling-core/internal/models"
	appErrors "github.com/scholaris-dev/scheduling-core/pkg/errors"
	"github.com/scholaris-dev/scheduling-core/pkg/metrics"
)

type rebalanceSectionStore interface {
	ListActiveByTerm(ctx context.Context, termID string) ([]models.Section, error)
	MarkDissolved(ctx context.Context, exec sqlx.ExtContext, sectionID, parentSectionID string) error
}

type rebalanceStudentStore interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.Student, error)
	UpdateHomeSection(ctx context.Context, exec sqlx.ExtContext, studentID string, sectionID *string) error
}

type rebalanceEnrollmentStore interface {
	CountDistinctEnrolledBySection(ctx context.Context, termID string) (map[string]int, error)
	MoveSection(ctx context.Context, exec sqlx.ExtContext, fromSectionID, toSectionID string) error
}

// RebalanceConfig tunes the underfill threshold.
type RebalanceConfig struct {
	UnderfillThreshold float64
}

// RebalanceService dissolves underfilled sections into siblings with spare
// capacity. Dissolved sections are excluded from every scan, which makes a
// second run over the same term a no-op.
type RebalanceService struct {
	sections    rebalanceSectionStore
	students    rebalanceStudentStore
	enrollments rebalanceEnrollmentStore
	terms       builderTermReader
	tx          txProvider
	cfg         RebalanceConfig
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *metrics.BatchMetrics
}

// NewRebalanceService constructs RebalanceService.
func NewRebalanceService(
	sections rebalanceSectionStore,
	students rebalanceStudentStore,
	enrollments rebalanceEnrollmentStore,
	terms builderTermReader,
	tx txProvider,
	cfg RebalanceConfig,
	validate *validator.Validate,
	logger *zap.Logger,
	batchMetrics *metrics.BatchMetrics,
) *RebalanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UnderfillThreshold <= 0 || cfg.UnderfillThreshold >= 1 {
		cfg.UnderfillThreshold = 0.30
	}
	return &RebalanceService{
		sections:    sections,
		students:    students,
		enrollments: enrollments,
		terms:       terms,
		tx:          tx,
		cfg:         cfg,
		validator:   validate,
		logger:      logger,
		metrics:     batchMetrics,
	}
}

// Run merges each underfilled section into the first sibling (same program,
// same year, not dissolved) that can absorb all of its students. Each merge
// commits in its own transaction; a section with no qualifying sibling is
// left underfilled and reported.
func (s *RebalanceService) Run(ctx context.Context, req dto.RebalanceRequest) (*dto.RebalanceSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rebalance request")
	}
	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	sections, err := s.sections.ListActiveByTerm(ctx, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sections")
	}
	counts, err := s.enrollments.CountDistinctEnrolledBySection(ctx, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count section enrollment")
	}

	summary := &dto.RebalanceSummary{TermID: req.TermID, Scanned: len(sections)}
	dissolved := make(map[string]bool)

	for _, section := range sections {
		if dissolved[section.ID] {
			continue
		}
		occupancy := 0.0
		if section.Capacity > 0 {
			occupancy = float64(counts[section.ID]) / float64(section.Capacity)
		}
		if occupancy >= s.cfg.UnderfillThreshold {
			continue
		}
		summary.Underfilled++

		sibling := findSibling(sections, counts, dissolved, section)
		if sibling == nil {
			summary.Events = append(summary.Events, models.Event{
				Kind:     models.EventUnderfilledNoSibling,
				Message:  fmt.Sprintf("section %s underfilled, no sibling available", section.Name),
				EntityID: section.ID,
				Meta:     map[string]any{"occupancy": occupancy},
			})
			continue
		}

		if err := s.merge(ctx, section, *sibling); err != nil {
			return nil, err
		}
		counts[sibling.ID] += counts[section.ID]
		counts[section.ID] = 0
		dissolved[section.ID] = true
		summary.Dissolved++
		summary.Events = append(summary.Events, models.Event{
			Kind:     models.EventSectionDissolved,
			Message:  fmt.Sprintf("dissolved section %s into section %s", section.Name, sibling.Name),
			EntityID: section.ID,
			Meta:     map[string]any{"parent_section_id": sibling.ID},
		})
		s.metrics.IncSectionDissolved()
	}

	return summary, nil
}

// merge moves every student and enrollment to the sibling, then marks the
// original dissolved, all inside one transaction.
func (s *RebalanceService) merge(ctx context.Context, from, to models.Section) error {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	students, err := s.students.ListBySection(ctx, from.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section students")
	}
	toID := to.ID
	for _, student := range students {
		if err := s.students.UpdateHomeSection(ctx, tx, student.ID, &toID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move student home section")
		}
	}
	if err := s.enrollments.MoveSection(ctx, tx, from.ID, to.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move enrollments")
	}
	if err := s.sections.MarkDissolved(ctx, tx, from.ID, to.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dissolve section")
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit section merge")
	}
	committed = true

	s.logger.Info("section merged",
		zap.String("from_section", from.ID),
		zap.String("to_section", to.ID),
		zap.Int("students", len(students)),
	)
	return nil
}

// findSibling returns the first section of the same program and year with
// enough remaining capacity to absorb all of the underfilled section's
// students.
func findSibling(sections []models.Section, counts map[string]int, dissolved map[string]bool, target models.Section) *models.Section {
	needed := counts[target.ID]
	for i := range sections {
		candidate := sections[i]
		if candidate.ID == target.ID || dissolved[candidate.ID] {
			continue
		}
		if candidate.ProgramID != target.ProgramID || candidate.YearLevel != target.YearLevel {
			continue
		}
		if candidate.Capacity-counts[candidate.ID] >= needed {
			return &sections[i]
		}
	}
	return nil
}
