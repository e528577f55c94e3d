package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/scholaris-dev/scheduling-core/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func TestScheduleSlotRepositoryListDetailByTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleSlotRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "section_subject_id", "day", "start_minute", "end_minute", "room", "professor_id", "created_at",
		"section_id", "subject_id", "default_professor_id",
	}).AddRow("slot-1", "off-1", "MON", 480, 600, "R101", nil, time.Now(), "sec-a", "subj-math", "prof-1")

	mock.ExpectQuery(`SELECT sl\.id, sl\.section_subject_id.+FROM schedule_slots sl.+WHERE sec\.term_id = \$1`).
		WithArgs("term-1").
		WillReturnRows(rows)

	details, err := repo.ListDetailByTerm(context.Background(), "term-1")
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, models.Monday, details[0].Day)
	require.Equal(t, "sec-a", details[0].SectionID)
	require.Equal(t, "prof-1", *details[0].DefaultProfessorID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleSlotRepositoryInsertBatchDefaultsIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_slots")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	prof := "prof-1"
	slots := []models.ScheduleSlot{{
		SectionSubjectID: "off-1",
		Day:              models.Monday,
		StartMinute:      480,
		EndMinute:        540,
		Room:             "R101",
		ProfessorID:      &prof,
	}}
	err := repo.InsertBatch(context.Background(), nil, slots)
	require.NoError(t, err)
	require.NotEmpty(t, slots[0].ID, "missing ids are generated on insert")
	require.False(t, slots[0].CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleSlotRepositoryInsertBatchEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleSlotRepository(db)

	require.NoError(t, repo.InsertBatch(context.Background(), nil, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleSlotRepositoryDeleteByTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleSlotRepository(db)

	mock.ExpectExec(`DELETE FROM schedule_slots\s+WHERE section_subject_id IN`).
		WithArgs("term-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.DeleteByTerm(context.Background(), nil, "term-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleSlotRepositoryDeleteBySections(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleSlotRepository(db)

	mock.ExpectExec(`DELETE FROM schedule_slots\s+WHERE section_subject_id IN \(SELECT id FROM section_subjects WHERE section_id IN \(\$1, \$2\)\)`).
		WithArgs("sec-a", "sec-b").
		WillReturnResult(sqlmock.NewResult(0, 6))

	require.NoError(t, repo.DeleteBySections(context.Background(), nil, []string{"sec-a", "sec-b"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
