package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestCatalogRepositoryGetCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "title", "instructor_id", "estimated_hours"}).
		AddRow("course-1", "GO-101", "Go Fundamentals", "instr-1", 20)
	mock.ExpectQuery(regexp.QuoteMeta("FROM catalog.courses WHERE id = $1")).
		WithArgs("course-1").
		WillReturnRows(rows)

	course, err := repo.GetCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, "Go Fundamentals", course.Title)
	require.Equal(t, 20, course.EstimatedHours)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryListPrerequisites(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	rows := sqlmock.NewRows([]string{"course_id", "code", "title"}).
		AddRow("course-0", "GO-001", "Programming Basics").
		AddRow("course-0b", "GO-002", "Tooling")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY p.position ASC")).
		WithArgs("course-1").
		WillReturnRows(rows)

	prereqs, err := repo.ListPrerequisites(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, prereqs, 2)
	require.Equal(t, "course-0", prereqs[0].CourseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryGetLearnerName(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT full_name FROM directory.employees WHERE id = $1")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"full_name"}).AddRow("Maria Souza"))

	name, err := repo.GetLearnerName(context.Background(), "l1")
	require.NoError(t, err)
	require.Equal(t, "Maria Souza", name)
	require.NoError(t, mock.ExpectationsWereMet())
}
