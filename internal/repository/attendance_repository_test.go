package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceRepositoryCountDeliveredLessons(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(DISTINCT data) FROM aulas")).
		WithArgs("turma-1", "mod-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))

	delivered, err := repo.CountDeliveredLessons(context.Background(), "turma-1", "mod-1")
	require.NoError(t, err)
	assert.Equal(t, 8, delivered)
}

func TestAttendanceRepositoryListPresenceCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	rows := sqlmock.NewRows([]string{"aluno_id", "presencas"}).
		AddRow("a1", 8).
		AddRow("a2", 5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT p.aluno_id, COUNT(*) AS presencas")).
		WithArgs("turma-1", "mod-1", "presente", "atraso").
		WillReturnRows(rows)

	counts, err := repo.ListPresenceCounts(context.Background(), "turma-1", "mod-1")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "a1", counts[0].StudentID)
	assert.Equal(t, 8, counts[0].Presences)
	require.NoError(t, mock.ExpectationsWereMet())
}
