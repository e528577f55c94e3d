package service

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris-dev/scheduling-core/internal/dto"
	"github.com/scholaris-dev/scheduling-core/internal/models"
	appErrors "github.com/scholaris-dev/scheduling-core/pkg/errors"
)

// --- Fixtures ---

type termReaderStub struct {
	terms map[string]*models.Term
}

func (s termReaderStub) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if term, ok := s.terms[id]; ok {
		return term, nil
	}
	return nil, sql.ErrNoRows
}

type offeringListerStub struct {
	items []models.SectionSubjectDetail
}

func (s offeringListerStub) ListByTerm(ctx context.Context, termID string, sectionIDs []string) ([]models.SectionSubjectDetail, error) {
	return s.items, nil
}

type slotStoreStub struct {
	existing        []models.ScheduleSlotDetail
	inserted        []models.ScheduleSlot
	deletedTerms    []string
	deletedSections [][]string
}

func (s *slotStoreStub) ListDetailByTerm(ctx context.Context, termID string) ([]models.ScheduleSlotDetail, error) {
	return s.existing, nil
}

func (s *slotStoreStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error {
	s.inserted = append(s.inserted, slots...)
	return nil
}

func (s *slotStoreStub) DeleteByTerm(ctx context.Context, exec sqlx.ExtContext, termID string) error {
	s.deletedTerms = append(s.deletedTerms, termID)
	return nil
}

func (s *slotStoreStub) DeleteBySections(ctx context.Context, exec sqlx.ExtContext, sectionIDs []string) error {
	s.deletedSections = append(s.deletedSections, sectionIDs)
	return nil
}

type assignmentStoreStub struct {
	items    []models.ProfessorAssignment
	ensured  [][2]string
}

func (s *assignmentStoreStub) ListByTerm(ctx context.Context, termID string) ([]models.ProfessorAssignment, error) {
	return s.items, nil
}

func (s *assignmentStoreStub) EnsureAssignment(ctx context.Context, exec sqlx.ExtContext, professorID, sectionSubjectID string) error {
	s.ensured = append(s.ensured, [2]string{professorID, sectionSubjectID})
	return nil
}

type roomListerStub struct {
	rooms []models.Room
}

func (s roomListerStub) ListActive(ctx context.Context) ([]models.Room, error) {
	return s.rooms, nil
}

type enrollmentCounterStub struct {
	counts          map[string]int
	studentSections map[string][]string
}

func (s enrollmentCounterStub) CountDistinctEnrolledBySection(ctx context.Context, termID string) (map[string]int, error) {
	return s.counts, nil
}

func (s enrollmentCounterStub) ListActiveStudentSections(ctx context.Context, termID string) (map[string][]string, error) {
	return s.studentSections, nil
}

type lockerStub struct {
	held     bool
	acquired int
	released int
}

func (s *lockerStub) Acquire(ctx context.Context, termID string) (func(), bool, error) {
	if s.held {
		return nil, false, nil
	}
	s.acquired++
	return func() { s.released++ }, true, nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "postgres")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

type builderFixtureConfig struct {
	offerings []models.SectionSubjectDetail
	existing  []models.ScheduleSlotDetail
	rooms     []models.Room
	professor professorReaderStub
	locker    buildLocker
	tx        txProvider
}

type builderFixture struct {
	builder     *ScheduleBuilder
	slots       *slotStoreStub
	assignments *assignmentStoreStub
}

func newBuilderFixture(t *testing.T, cfg builderFixtureConfig) builderFixture {
	terms := termReaderStub{terms: map[string]*models.Term{"term-1": {ID: "term-1", Name: "1st Sem"}}}
	slots := &slotStoreStub{existing: cfg.existing}
	assignments := &assignmentStoreStub{}
	rooms := cfg.rooms
	if rooms == nil {
		rooms = testRooms("R101", "R202")
	}
	tx := cfg.tx
	if tx == nil {
		tx, _ = newTxProviderMock(t)
	}

	builder := NewScheduleBuilder(
		terms,
		offeringListerStub{items: cfg.offerings},
		slots,
		assignments,
		roomListerStub{rooms: rooms},
		enrollmentCounterStub{counts: map[string]int{}},
		NewQualificationService(cfg.professor, nil),
		tx,
		cfg.locker,
		PlacementConfig{Seed: 1},
		nil,
		nil,
		nil,
	)
	return builderFixture{builder: builder, slots: slots, assignments: assignments}
}

func qualifiedReader(professorID string, subjectIDs ...string) professorReaderStub {
	prof := activeProfessor(professorID, "Prof "+professorID)
	bySubject := map[string]bool{}
	qualified := map[string][]models.Professor{}
	for _, id := range subjectIDs {
		bySubject[id] = true
		qualified[id] = []models.Professor{prof}
	}
	return professorReaderStub{
		byID:      map[string]*models.Professor{professorID: &prof},
		active:    []models.Professor{prof},
		qualified: qualified,
		qualifBy:  map[string]map[string]bool{professorID: bySubject},
	}
}

// --- Tests ---

func TestScheduleBuilderBuildSuccess(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	offerings := []models.SectionSubjectDetail{
		testOffering("off-1", "sec-a", 3),
		testOffering("off-2", "sec-a", 3),
	}
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: offerings,
		professor: qualifiedReader("prof-1", "subj-off-1", "subj-off-2"),
		tx:        tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	summary, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Offerings)
	assert.Equal(t, 2, summary.Scheduled)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 6, summary.SlotsCreated, "two three-unit offerings place three slots each")
	assert.Len(t, fx.slots.inserted, 6)
	assert.Len(t, fx.assignments.ensured, 2)
	assert.InDelta(t, 6.0, summary.WorkloadHours["prof-1"], 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())

	// no slot may double-book the section
	seen := map[models.Weekday][]models.TimeRange{}
	for _, slot := range fx.slots.inserted {
		for _, booked := range seen[slot.Day] {
			assert.False(t, booked.Overlaps(slot.Range()), "section double-booked on %s", slot.Day)
		}
		seen[slot.Day] = append(seen[slot.Day], slot.Range())
	}
}

func TestScheduleBuilderSkipsScheduledOfferings(t *testing.T) {
	offering := testOffering("off-1", "sec-a", 3)
	existing := []models.ScheduleSlotDetail{
		{ScheduleSlot: mondaySlot("old-1", "off-1", "R101", 480, 540), SectionID: "sec-a"},
	}
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: []models.SectionSubjectDetail{offering},
		existing:  existing,
		professor: qualifiedReader("prof-1", "subj-off-1"),
	})

	summary, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Scheduled)
	assert.Empty(t, fx.slots.inserted, "already-scheduled offerings are never re-placed")
}

func TestScheduleBuilderBuildIsIdempotent(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	offering := testOffering("off-1", "sec-a", 3)
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: []models.SectionSubjectDetail{offering},
		professor: qualifiedReader("prof-1", "subj-off-1"),
		tx:        tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	first, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.NoError(t, err)
	require.Equal(t, 1, first.Scheduled)

	// feed the created slots back as the persisted state
	for _, slot := range fx.slots.inserted {
		fx.slots.existing = append(fx.slots.existing, models.ScheduleSlotDetail{ScheduleSlot: slot, SectionID: "sec-a"})
	}

	second, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.SlotsCreated, "a re-run over a fully scheduled term is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleBuilderRecordsFallbackProfessor(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	stub := professorReaderStub{active: []models.Professor{activeProfessor("prof-sub", "Sub")}}
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: []models.SectionSubjectDetail{testOffering("off-1", "sec-a", 3)},
		professor: stub,
		tx:        tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	summary, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FallbackProfessors)
	require.NotEmpty(t, summary.Events)
	assert.Equal(t, models.EventFallbackProfessor, summary.Events[0].Kind)
	assert.Equal(t, 1, summary.Scheduled, "a fallback professor still schedules the offering")
}

func TestScheduleBuilderSkipSuppressesFallbackEvent(t *testing.T) {
	// no qualified professor anywhere, so resolution falls back, but the
	// offering is already scheduled and must stay silent on a re-run
	stub := professorReaderStub{active: []models.Professor{activeProfessor("prof-sub", "Sub")}}
	existing := []models.ScheduleSlotDetail{
		{ScheduleSlot: mondaySlot("old-1", "off-1", "R101", 480, 540), SectionID: "sec-a"},
	}
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: []models.SectionSubjectDetail{testOffering("off-1", "sec-a", 3)},
		existing:  existing,
		professor: stub,
	})

	summary, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.FallbackProfessors)
	assert.Empty(t, summary.Events, "a skipped offering reports nothing")
}

func TestScheduleBuilderReportsPlacementFailure(t *testing.T) {
	// the section is fully booked every weekday; Saturday fallback is off in
	// the fixture's placement config
	var existing []models.ScheduleSlotDetail
	for _, day := range models.Weekdays[:5] {
		existing = append(existing, models.ScheduleSlotDetail{
			ScheduleSlot: models.ScheduleSlot{
				ID: "busy-" + string(day), SectionSubjectID: "off-other",
				Day: day, StartMinute: 7 * 60, EndMinute: 19 * 60,
			},
			SectionID: "sec-a",
		})
	}
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: []models.SectionSubjectDetail{testOffering("off-1", "sec-a", 3)},
		existing:  existing,
		professor: qualifiedReader("prof-1", "subj-off-1"),
	})

	summary, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.NoError(t, err, "an unplaceable offering is an event, not an error")
	assert.Equal(t, 1, summary.Failed)
	require.NotEmpty(t, summary.Events)
	assert.Equal(t, models.EventPlacementFailed, summary.Events[0].Kind)
	assert.Empty(t, fx.slots.inserted)
}

func TestScheduleBuilderTermNotFound(t *testing.T) {
	fx := newBuilderFixture(t, builderFixtureConfig{professor: qualifiedReader("prof-1")})

	_, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleBuilderRejectsEmptyRoomInventory(t *testing.T) {
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: []models.SectionSubjectDetail{testOffering("off-1", "sec-a", 3)},
		professor: qualifiedReader("prof-1", "subj-off-1"),
		rooms:     []models.Room{},
	})

	_, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestScheduleBuilderValidatesRequest(t *testing.T) {
	fx := newBuilderFixture(t, builderFixtureConfig{professor: qualifiedReader("prof-1")})

	_, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestScheduleBuilderLockHeld(t *testing.T) {
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: []models.SectionSubjectDetail{testOffering("off-1", "sec-a", 3)},
		professor: qualifiedReader("prof-1", "subj-off-1"),
		locker:    &lockerStub{held: true},
	})

	_, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBuildLocked.Code, appErrors.FromError(err).Code)
}

func TestScheduleBuilderReleasesLock(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	locker := &lockerStub{}
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: []models.SectionSubjectDetail{testOffering("off-1", "sec-a", 3)},
		professor: qualifiedReader("prof-1", "subj-off-1"),
		locker:    locker,
		tx:        tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestScheduleBuilderClearExisting(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fx := newBuilderFixture(t, builderFixtureConfig{
		offerings: []models.SectionSubjectDetail{testOffering("off-1", "sec-a", 3)},
		professor: qualifiedReader("prof-1", "subj-off-1"),
		tx:        tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	summary, err := fx.builder.Build(context.Background(), dto.BuildScheduleRequest{TermID: "term-1", ClearExisting: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"term-1"}, fx.slots.deletedTerms)
	assert.Equal(t, 1, summary.Scheduled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearScheduleScopedToSections(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fx := newBuilderFixture(t, builderFixtureConfig{professor: qualifiedReader("prof-1"), tx: tx})

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := fx.builder.ClearSchedule(context.Background(), "term-1", []string{"sec-a"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"sec-a"}}, fx.slots.deletedSections)
	assert.Empty(t, fx.slots.deletedTerms)
	assert.NoError(t, mock.ExpectationsWereMet())
}
