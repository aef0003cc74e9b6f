package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewClassRepository(db)
	rows := sqlmock.NewRows([]string{"id", "name", "teacher_id", "student_count", "created_at", "updated_at"}).
		AddRow("class-1", "9A", "teacher-1", 30, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM classes WHERE id = $1")).
		WithArgs("class-1").
		WillReturnRows(rows)

	class, err := repo.FindByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 30, class.StudentCount)
	assert.Equal(t, "teacher-1", class.TeacherID)
	require.NoError(t, mock.ExpectationsWereMet())
}
