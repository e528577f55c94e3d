package service

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris-dev/scheduling-core/internal/dto"
	"github.com/scholaris-dev/scheduling-core/internal/models"
	appErrors "github.com/scholaris-dev/scheduling-core/pkg/errors"
)

// --- Fixtures ---

type returningStoreStub struct {
	students     []models.Student
	history      []models.SharedHistoryPair
	homeSections map[string]string
}

func (s *returningStoreStub) ListUnassignedByYear(ctx context.Context, termID, programID string, yearLevel int) ([]models.Student, error) {
	return s.students, nil
}

func (s *returningStoreStub) ListSharedHistory(ctx context.Context, studentIDs []string, beforeTermID string, lookbackTerms int) ([]models.SharedHistoryPair, error) {
	return s.history, nil
}

func (s *returningStoreStub) UpdateHomeSection(ctx context.Context, exec sqlx.ExtContext, studentID string, sectionID *string) error {
	if s.homeSections == nil {
		s.homeSections = map[string]string{}
	}
	if sectionID != nil {
		s.homeSections[studentID] = *sectionID
	}
	return nil
}

type groupingSpy struct {
	called bool
	groups []int
}

func (g *groupingSpy) Group(matrix [][]float64, k int, rng *rand.Rand) []int {
	g.called = true
	if g.groups != nil {
		return g.groups
	}
	return make([]int, len(matrix))
}

func returningStudents(n int) []models.Student {
	students := make([]models.Student, 0, n)
	for i := 1; i <= n; i++ {
		students = append(students, models.Student{
			ID:        fmt.Sprintf("stud-%d", i),
			FullName:  fmt.Sprintf("Student %d", i),
			ProgramID: "prog-bscs",
			YearLevel: 2,
			Active:    true,
		})
	}
	return students
}

func yearTwoSections(capacity int, names ...string) []models.Section {
	sections := make([]models.Section, 0, len(names))
	for _, name := range names {
		sections = append(sections, models.Section{
			ID:        "sec-" + name,
			Name:      "BSCS-2" + name,
			ProgramID: "prog-bscs",
			YearLevel: 2,
			Capacity:  capacity,
			TermID:    "term-1",
		})
	}
	return sections
}

func newResectioningFixture(t *testing.T, store *returningStoreStub, sections []models.Section, grouping GroupingStrategy) (*ResectioningService, *returningStoreStub) {
	tx, mock := newTxProviderMock(t)
	if len(store.students) > 0 {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	offerings := offeringsBySectionStub{bySection: map[string][]models.SectionSubject{}}
	for _, section := range sections {
		offerings.bySection[section.ID] = []models.SectionSubject{
			{ID: section.ID + "-algo", SectionID: section.ID, SubjectID: "subj-algo"},
		}
	}
	terms := termReaderStub{terms: map[string]*models.Term{"term-1": {ID: "term-1"}}}

	svc := NewResectioningService(
		store,
		sectionStoreStub{sections: sections},
		offerings,
		&enrollmentStoreStub{},
		terms,
		tx,
		grouping,
		ResectioningConfig{Seed: 99},
		nil, nil, nil,
	)
	return svc, store
}

// --- Tests ---

func TestResectionKeepsCohortsTogether(t *testing.T) {
	// two clear cohorts: 1-2 and 3-4 shared classes, nothing across
	store := &returningStoreStub{
		students: returningStudents(4),
		history: []models.SharedHistoryPair{
			{StudentA: "stud-1", StudentB: "stud-2", Shared: 5},
			{StudentA: "stud-3", StudentB: "stud-4", Shared: 5},
		},
	}
	svc, _ := newResectioningFixture(t, store, yearTwoSections(2, "A", "B"), nil)

	summary, err := svc.Run(context.Background(), dto.ResectionRequest{TermID: "term-1", ProgramID: "prog-bscs", YearLevel: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Assigned)
	assert.Equal(t, 0, summary.Unassigned)

	assert.Equal(t, store.homeSections["stud-1"], store.homeSections["stud-2"], "cohort 1-2 split up")
	assert.Equal(t, store.homeSections["stud-3"], store.homeSections["stud-4"], "cohort 3-4 split up")
	assert.NotEqual(t, store.homeSections["stud-1"], store.homeSections["stud-3"])
}

func TestResectionZeroMatrixSkipsGroupingStrategy(t *testing.T) {
	store := &returningStoreStub{students: returningStudents(4)}
	spy := &groupingSpy{}
	svc, _ := newResectioningFixture(t, store, yearTwoSections(2, "A", "B"), spy)

	summary, err := svc.Run(context.Background(), dto.ResectionRequest{TermID: "term-1", ProgramID: "prog-bscs", YearLevel: 2})
	require.NoError(t, err)
	assert.False(t, spy.called, "no shared history means uniform assignment, not clustering")
	assert.Equal(t, 4, summary.Assigned)

	// capacity still binds under uniform assignment
	perSection := map[string]int{}
	for _, sectionID := range store.homeSections {
		perSection[sectionID]++
	}
	for sectionID, n := range perSection {
		assert.LessOrEqual(t, n, 2, "section %s over capacity", sectionID)
	}
}

func TestResectionOverflowsFullClusterSection(t *testing.T) {
	store := &returningStoreStub{
		students: returningStudents(3),
		history:  []models.SharedHistoryPair{{StudentA: "stud-1", StudentB: "stud-2", Shared: 3}},
	}
	// strategy puts everyone in group 0; section A only holds two
	spy := &groupingSpy{groups: []int{0, 0, 0}}
	svc, _ := newResectioningFixture(t, store, yearTwoSections(2, "A", "B"), spy)

	summary, err := svc.Run(context.Background(), dto.ResectionRequest{TermID: "term-1", ProgramID: "prog-bscs", YearLevel: 2})
	require.NoError(t, err)
	assert.True(t, spy.called)
	assert.Equal(t, 3, summary.Assigned)
	assert.Equal(t, "sec-A", store.homeSections["stud-1"])
	assert.Equal(t, "sec-A", store.homeSections["stud-2"])
	assert.Equal(t, "sec-B", store.homeSections["stud-3"], "full cluster section overflows to the next")
}

func TestResectionUnassignedWhenEverythingFull(t *testing.T) {
	store := &returningStoreStub{students: returningStudents(3)}
	svc, _ := newResectioningFixture(t, store, yearTwoSections(1, "A", "B"), &groupingSpy{})

	summary, err := svc.Run(context.Background(), dto.ResectionRequest{TermID: "term-1", ProgramID: "prog-bscs", YearLevel: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Assigned)
	assert.Equal(t, 1, summary.Unassigned)

	var noCapacity int
	for _, event := range summary.Events {
		if event.Kind == models.EventNoCapacity {
			noCapacity++
		}
	}
	assert.Equal(t, 1, noCapacity)
}

func TestResectionNoOpenSections(t *testing.T) {
	store := &returningStoreStub{students: returningStudents(2)}
	svc, _ := newResectioningFixture(t, store, nil, &groupingSpy{})

	_, err := svc.Run(context.Background(), dto.ResectionRequest{TermID: "term-1", ProgramID: "prog-bscs", YearLevel: 2})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestResectionValidatesYearLevel(t *testing.T) {
	store := &returningStoreStub{}
	svc, _ := newResectioningFixture(t, store, yearTwoSections(2, "A"), nil)

	_, err := svc.Run(context.Background(), dto.ResectionRequest{TermID: "term-1", ProgramID: "prog-bscs", YearLevel: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code, "freshmen go through the FCFS queue, not resectioning")
}

func TestAffinityGroupingBalancedCohorts(t *testing.T) {
	// 6 students, three pairs with strong internal affinity
	matrix := [][]float64{
		{0, 9, 0, 0, 0, 0},
		{9, 0, 0, 0, 0, 0},
		{0, 0, 0, 9, 0, 0},
		{0, 0, 9, 0, 0, 0},
		{0, 0, 0, 0, 0, 9},
		{0, 0, 0, 0, 9, 0},
	}
	grouping := &affinityGrouping{maxIterations: 10}
	groups := grouping.Group(matrix, 3, rand.New(rand.NewSource(1)))

	require.Len(t, groups, 6)
	assert.Equal(t, groups[0], groups[1], "pair 0-1 split")
	assert.Equal(t, groups[2], groups[3], "pair 2-3 split")
	assert.Equal(t, groups[4], groups[5], "pair 4-5 split")
}

func TestAffinityGroupingDegenerateInputs(t *testing.T) {
	grouping := &affinityGrouping{maxIterations: 5}

	assert.Empty(t, grouping.Group(nil, 3, rand.New(rand.NewSource(1))))

	single := grouping.Group([][]float64{{0}}, 3, rand.New(rand.NewSource(1)))
	assert.Equal(t, []int{0}, single)

	oneGroup := grouping.Group([][]float64{{0, 1}, {1, 0}}, 1, rand.New(rand.NewSource(1)))
	assert.Equal(t, []int{0, 0}, oneGroup)
}
