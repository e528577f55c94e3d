package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/scholaris-dev/scheduling-core/internal/models"
	appErrors "github.com/scholaris-dev/scheduling-core/pkg/errors"
)

type professorReader interface {
	FindByID(ctx context.Context, id string) (*models.Professor, error)
	ListActive(ctx context.Context) ([]models.Professor, error)
	ListQualifiedBySubject(ctx context.Context, subjectID string) ([]models.Professor, error)
	IsQualified(ctx context.Context, professorID, subjectID string) (bool, error)
}

// ResolutionStatus tags how a professor was chosen for an offering.
type ResolutionStatus string

const (
	ResolutionQualified ResolutionStatus = "QUALIFIED"
	ResolutionFallback  ResolutionStatus = "FALLBACK_ASSIGNED"
)

// ProfessorResolution is the tagged outcome of professor selection. Callers
// can flag fallback assignments for admin review instead of losing the
// distinction in a log string.
type ProfessorResolution struct {
	Status    ResolutionStatus
	Professor models.Professor
	Reason    string
}

// AssignmentValidation reports whether a professor may teach a subject,
// with a cause-specific message on failure.
type AssignmentValidation struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message"`
}

// QualificationService decides professor eligibility for subjects.
type QualificationService struct {
	professors professorReader
	logger     *zap.Logger
}

// NewQualificationService constructs QualificationService.
func NewQualificationService(professors professorReader, logger *zap.Logger) *QualificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QualificationService{professors: professors, logger: logger}
}

// IsQualified reports whether a professor may be assigned to a subject:
// the subject must be in their assigned set and their profile active.
func (s *QualificationService) IsQualified(ctx context.Context, professor *models.Professor, subjectID string) (bool, error) {
	if professor == nil || !professor.Active {
		return false, nil
	}
	qualified, err := s.professors.IsQualified(ctx, professor.ID, subjectID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check qualification")
	}
	return qualified, nil
}

// QualifiedProfessors returns the active professors assigned to a subject.
func (s *QualificationService) QualifiedProfessors(ctx context.Context, subjectID string) ([]models.Professor, error) {
	professors, err := s.professors.ListQualifiedBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list qualified professors")
	}
	active := professors[:0]
	for _, professor := range professors {
		if professor.Active {
			active = append(active, professor)
		}
	}
	return active, nil
}

// ValidateAssignment checks a proposed (professor, subject) pairing. Each
// failure cause keeps its own message so callers can distinguish them.
func (s *QualificationService) ValidateAssignment(ctx context.Context, professor *models.Professor, subjectID string) (AssignmentValidation, error) {
	if professor == nil {
		return AssignmentValidation{Message: "no professor selected"}, nil
	}
	if professor.Role != models.RoleProfessor {
		return AssignmentValidation{Message: fmt.Sprintf("%s does not have the professor role", professor.FullName)}, nil
	}
	qualified, err := s.IsQualified(ctx, professor, subjectID)
	if err != nil {
		return AssignmentValidation{}, err
	}
	if !qualified {
		return AssignmentValidation{Message: fmt.Sprintf("%s is not qualified for this subject", professor.FullName)}, nil
	}
	return AssignmentValidation{IsValid: true, Message: "ok"}, nil
}

// ResolveProfessor picks the professor the builder should schedule for an
// offering. Preference order: the offering's default professor when
// qualified, then any qualified professor, then an arbitrary active
// professor as a fallback. Understaffing never blocks a build; the fallback
// is reported, not raised.
func (s *QualificationService) ResolveProfessor(ctx context.Context, offering models.SectionSubjectDetail) (*ProfessorResolution, error) {
	if offering.ProfessorID != nil && *offering.ProfessorID != "" {
		professor, err := s.professors.FindByID(ctx, *offering.ProfessorID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load default professor")
		}
		if professor != nil {
			qualified, err := s.IsQualified(ctx, professor, offering.SubjectID)
			if err != nil {
				return nil, err
			}
			if qualified {
				return &ProfessorResolution{Status: ResolutionQualified, Professor: *professor}, nil
			}
		}
	}

	qualified, err := s.QualifiedProfessors(ctx, offering.SubjectID)
	if err != nil {
		return nil, err
	}
	if len(qualified) > 0 {
		sort.Slice(qualified, func(i, j int) bool { return qualified[i].ID < qualified[j].ID })
		return &ProfessorResolution{Status: ResolutionQualified, Professor: qualified[0]}, nil
	}

	active, err := s.professors.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list professors")
	}
	if len(active) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active professors available")
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	fallback := active[0]
	s.logger.Warn("no qualified professor for subject, assigning fallback",
		zap.String("subject_id", offering.SubjectID),
		zap.String("section_subject_id", offering.ID),
		zap.String("professor_id", fallback.ID),
	)
	return &ProfessorResolution{
		Status:    ResolutionFallback,
		Professor: fallback,
		Reason:    fmt.Sprintf("no qualified professor for subject %s", offering.SubjectCode),
	}, nil
}
