package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	weightedrand "github.com/mroth/weightedrand/v2"
	"go.uber.org/zap"

	"github.com/scholaris-dev/scheduling-core/internal/dto"
	"github.com/scholaris-dev/scheduling-core/internal/models"
	appErrors "github.com/scholaris-dev/scheduling-core/pkg/errors"
	"github.com/scholaris-dev/scheduling-core/pkg/metrics"
)

type resectioningStudentStore interface {
	ListUnassignedByYear(ctx context.Context, termID, programID string, yearLevel int) ([]models.Student, error)
	ListSharedHistory(ctx context.Context, studentIDs []string, beforeTermID string, lookbackTerms int) ([]models.SharedHistoryPair, error)
	UpdateHomeSection(ctx context.Context, exec sqlx.ExtContext, studentID string, sectionID *string) error
}

// GroupingStrategy partitions students into k groups from a pairwise
// affinity matrix. Implementations return a group index per student.
type GroupingStrategy interface {
	Group(matrix [][]float64, k int, rng *rand.Rand) []int
}

// ResectioningConfig tunes the affinity heuristic.
type ResectioningConfig struct {
	AffinityLookbackTerms int
	MaxClusterIterations  int
	Seed                  int64
}

func (c ResectioningConfig) withDefaults() ResectioningConfig {
	if c.AffinityLookbackTerms <= 0 {
		c.AffinityLookbackTerms = 4
	}
	if c.MaxClusterIterations <= 0 {
		c.MaxClusterIterations = 25
	}
	return c
}

// ResectioningService groups returning students into sections so prior
// classmate cohorts stay together. It is a heuristic: when no shared
// history exists it degrades to uniform random assignment.
type ResectioningService struct {
	students    resectioningStudentStore
	sections    sectioningSectionStore
	offerings   sectionOfferingLister
	enrollments sectioningEnrollmentStore
	terms       builderTermReader
	tx          txProvider
	grouping    GroupingStrategy
	cfg         ResectioningConfig
	rng         *rand.Rand
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *metrics.BatchMetrics
}

// NewResectioningService constructs ResectioningService. A nil grouping
// strategy selects the built-in affinity agglomerator.
func NewResectioningService(
	students resectioningStudentStore,
	sections sectioningSectionStore,
	offerings sectionOfferingLister,
	enrollments sectioningEnrollmentStore,
	terms builderTermReader,
	tx txProvider,
	grouping GroupingStrategy,
	cfg ResectioningConfig,
	validate *validator.Validate,
	logger *zap.Logger,
	batchMetrics *metrics.BatchMetrics,
) *ResectioningService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if grouping == nil {
		grouping = &affinityGrouping{maxIterations: cfg.MaxClusterIterations}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &ResectioningService{
		students:    students,
		sections:    sections,
		offerings:   offerings,
		enrollments: enrollments,
		terms:       terms,
		tx:          tx,
		grouping:    grouping,
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(seed)),
		validator:   validate,
		logger:      logger,
		metrics:     batchMetrics,
	}
}

// Run assigns returning students of one program/year to sections. Cluster i
// maps to the i-th section in name order; full sections overflow to the
// first sibling with room; students who fit nowhere remain unassigned for
// this run.
func (s *ResectioningService) Run(ctx context.Context, req dto.ResectionRequest) (*dto.SectioningSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resection request")
	}
	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	students, err := s.students.ListUnassignedByYear(ctx, req.TermID, req.ProgramID, req.YearLevel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	sections, err := s.sections.ListOpenByProgramYear(ctx, req.TermID, req.ProgramID, req.YearLevel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sections")
	}

	summary := &dto.SectioningSummary{TermID: req.TermID, Candidates: len(students)}
	if len(students) == 0 {
		return summary, nil
	}
	if len(sections) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no open sections for this program and year")
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Name < sections[j].Name })

	matrix, err := s.buildAffinityMatrix(ctx, students, req.TermID)
	if err != nil {
		return nil, err
	}

	var groups []int
	if matrixIsZero(matrix) {
		// no shared history, no signal to cluster on
		groups = s.uniformGroups(len(students), len(sections))
	} else {
		groups = s.grouping.Group(matrix, len(sections), s.rng)
	}

	counts, err := s.enrollments.CountDistinctEnrolledBySection(ctx, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count section enrollment")
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

	for i, student := range students {
		target := s.pickSection(sections, counts, groups[i])
		if target == nil {
			summary.Unassigned++
			summary.Events = append(summary.Events, models.Event{
				Kind:     models.EventNoCapacity,
				Message:  fmt.Sprintf("no section capacity available for %s", student.FullName),
				EntityID: student.ID,
			})
			s.metrics.IncStudentUnassigned()
			continue
		}
		if err := s.assign(ctx, tx, student, *target, req.TermID); err != nil {
			return nil, err
		}
		counts[target.ID]++
		summary.Assigned++
		summary.Events = append(summary.Events, models.Event{
			Kind:     models.EventStudentAssigned,
			Message:  fmt.Sprintf("assigned %s to section %s", student.FullName, target.Name),
			EntityID: student.ID,
			Meta:     map[string]any{"section_id": target.ID},
		})
		s.metrics.IncStudentAssigned()
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit resectioning run")
	}
	committed = true
	return summary, nil
}

// pickSection tries the cluster's section first, then scans the remaining
// sections in order for the first with capacity.
func (s *ResectioningService) pickSection(sections []models.Section, counts map[string]int, group int) *models.Section {
	if group >= 0 && group < len(sections) {
		section := sections[group]
		if counts[section.ID] < section.Capacity {
			return &section
		}
	}
	for i := range sections {
		if counts[sections[i].ID] < sections[i].Capacity {
			return &sections[i]
		}
	}
	return nil
}

func (s *ResectioningService) assign(ctx context.Context, tx *sqlx.Tx, student models.Student, section models.Section, termID string) error {
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

// buildAffinityMatrix fills the symmetric shared-history matrix for the
// candidate set, bounded to the configured lookback window.
func (s *ResectioningService) buildAffinityMatrix(ctx context.Context, students []models.Student, termID string) ([][]float64, error) {
	ids := make([]string, len(students))
	position := make(map[string]int, len(students))
	for i, student := range students {
		ids[i] = student.ID
		position[student.ID] = i
	}

	pairs, err := s.students.ListSharedHistory(ctx, ids, termID, s.cfg.AffinityLookbackTerms)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load shared history")
	}

	matrix := make([][]float64, len(students))
	for i := range matrix {
		matrix[i] = make([]float64, len(students))
	}
	for _, pair := range pairs {
		i, iok := position[pair.StudentA]
		j, jok := position[pair.StudentB]
		if !iok || !jok || i == j {
			continue
		}
		matrix[i][j] = float64(pair.Shared)
		matrix[j][i] = float64(pair.Shared)
	}
	return matrix, nil
}

// uniformGroups spreads students uniformly at random across k groups. This
// path is independent of the grouping strategy so a missing signal can
// never hang or fail the run.
func (s *ResectioningService) uniformGroups(n, k int) []int {
	choices := make([]weightedrand.Choice[int, int], k)
	for g := 0; g < k; g++ {
		choices[g] = weightedrand.NewChoice(g, 1)
	}
	chooser, _ := weightedrand.NewChooser(choices...)

	groups := make([]int, n)
	for i := range groups {
		groups[i] = chooser.PickSource(s.rng)
	}
	return groups
}

func matrixIsZero(matrix [][]float64) bool {
	for _, row := range matrix {
		for _, cell := range row {
			if cell != 0 {
				return false
			}
		}
	}
	return true
}

// affinityGrouping is the built-in GroupingStrategy: seed one cluster per
// section with mutually distant students, attach everyone else to the
// cluster they share the most history with, then rebalance for a bounded
// number of passes.
type affinityGrouping struct {
	maxIterations int
}

func (g *affinityGrouping) Group(matrix [][]float64, k int, rng *rand.Rand) []int {
	n := len(matrix)
	groups := make([]int, n)
	if k <= 1 || n == 0 {
		return groups
	}
	if k > n {
		k = n
	}

	// seed with the student of highest total affinity, then repeatedly the
	// student least similar to all chosen seeds
	totals := make([]float64, n)
	for i := range matrix {
		for _, v := range matrix[i] {
			totals[i] += v
		}
	}
	seeds := []int{maxIndex(totals)}
	for len(seeds) < k {
		best, bestScore := -1, -1.0
		for i := 0; i < n; i++ {
			if containsInt(seeds, i) {
				continue
			}
			score := 0.0
			for _, seed := range seeds {
				score += matrix[i][seed]
			}
			// lower affinity to existing seeds means a more distinct cohort
			if best == -1 || score < bestScore {
				best, bestScore = i, score
			}
		}
		seeds = append(seeds, best)
	}

	assign := func() {
		for i := 0; i < n; i++ {
			bestGroup, bestScore := 0, -1.0
			for gi, seed := range seeds {
				score := matrix[i][seed]
				if score > bestScore {
					bestGroup, bestScore = gi, score
				}
			}
			groups[i] = bestGroup
		}
	}
	assign()

	// refinement: move each student to the group it shares the most total
	// history with, stop when stable or out of iterations
	for iter := 0; iter < g.maxIterations; iter++ {
		moved := false
		for i := 0; i < n; i++ {
			bestGroup, bestScore := groups[i], groupAffinity(matrix, groups, i, groups[i])
			for gi := 0; gi < k; gi++ {
				if gi == groups[i] {
					continue
				}
				if score := groupAffinity(matrix, groups, i, gi); score > bestScore {
					bestGroup, bestScore = gi, score
				}
			}
			if bestGroup != groups[i] {
				groups[i] = bestGroup
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return groups
}

func groupAffinity(matrix [][]float64, groups []int, student, group int) float64 {
	total := 0.0
	for j := range groups {
		if j != student && groups[j] == group {
			total += matrix[student][j]
		}
	}
	return total
}

func maxIndex(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
