package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func offeringDetailRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "section_id", "subject_id", "professor_id", "created_at",
		"section_name", "subject_code", "subject_units", "term_id",
	}).
		AddRow("off-1", "sec-a", "subj-1", nil, now, "BSCS-1A", "CS101", 3, "term-1").
		AddRow("off-2", "sec-a", "subj-2", "prof-1", now, "BSCS-1A", "CS102", 3, "term-1")
}

func TestSectionSubjectRepositoryListByTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionSubjectRepository(db)

	mock.ExpectQuery(`FROM section_subjects ss\s+JOIN sections sec .+WHERE sec\.term_id = \$1 AND sec\.is_dissolved = FALSE ORDER BY sec\.name ASC, sub\.code ASC`).
		WithArgs("term-1").
		WillReturnRows(offeringDetailRows(time.Now()))

	offerings, err := repo.ListByTerm(context.Background(), "term-1", nil)
	require.NoError(t, err)
	require.Len(t, offerings, 2)
	require.Equal(t, "BSCS-1A", offerings[0].SectionName)
	require.Equal(t, "CS101", offerings[0].SubjectCode)
	require.Nil(t, offerings[0].ProfessorID)
	require.NotNil(t, offerings[1].ProfessorID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionSubjectRepositoryListByTermSectionFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionSubjectRepository(db)

	mock.ExpectQuery(`AND ss\.section_id IN \(\$2, \$3\) ORDER BY`).
		WithArgs("term-1", "sec-a", "sec-b").
		WillReturnRows(offeringDetailRows(time.Now()))

	offerings, err := repo.ListByTerm(context.Background(), "term-1", []string{"sec-a", "sec-b"})
	require.NoError(t, err)
	require.Len(t, offerings, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionSubjectRepositorySetProfessor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionSubjectRepository(db)

	professorID := "prof-9"
	mock.ExpectExec(`UPDATE section_subjects SET professor_id = \$2 WHERE id = \$1`).
		WithArgs("off-1", "prof-9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetProfessor(context.Background(), nil, "off-1", &professorID))

	mock.ExpectExec(`UPDATE section_subjects SET professor_id = \$2 WHERE id = \$1`).
		WithArgs("off-1", driver.Value(nil)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetProfessor(context.Background(), nil, "off-1", nil))

	require.NoError(t, mock.ExpectationsWereMet())
}
