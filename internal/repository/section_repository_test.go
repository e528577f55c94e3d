package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func sectionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "program_id", "year_level", "capacity", "term_id",
		"curriculum_id", "is_dissolved", "parent_section_id", "created_at", "updated_at",
	})
}

func TestSectionRepositoryListActiveByTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	now := time.Now()
	rows := sectionRows().
		AddRow("sec-a", "BSCS-2A", "prog-bscs", 2, 40, "term-1", nil, false, nil, now, now)

	mock.ExpectQuery(`SELECT .+ FROM sections\s+WHERE term_id = \$1 AND is_dissolved = FALSE`).
		WithArgs("term-1").
		WillReturnRows(rows)

	sections, err := repo.ListActiveByTerm(context.Background(), "term-1")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, "BSCS-2A", sections[0].Name)
	require.False(t, sections[0].IsDissolved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryListOpenByProgramYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	now := time.Now()
	rows := sectionRows().
		AddRow("sec-a", "BSCS-1A", "prog-bscs", 1, 40, "term-1", nil, false, nil, now, now).
		AddRow("sec-b", "BSCS-1B", "prog-bscs", 1, 40, "term-1", nil, false, nil, now, now)

	mock.ExpectQuery(`SELECT .+ FROM sections\s+WHERE term_id = \$1 AND program_id = \$2 AND year_level = \$3`).
		WithArgs("term-1", "prog-bscs", 1).
		WillReturnRows(rows)

	sections, err := repo.ListOpenByProgramYear(context.Background(), "term-1", "prog-bscs", 1)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	require.Equal(t, "BSCS-1A", sections[0].Name, "name order drives FCFS fill order")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryMarkDissolved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectExec(`UPDATE sections SET is_dissolved = TRUE, parent_section_id = \$2`).
		WithArgs("sec-a", "sec-b", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkDissolved(context.Background(), nil, "sec-a", "sec-b"))
	require.NoError(t, mock.ExpectationsWereMet())
}
