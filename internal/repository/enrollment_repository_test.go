package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/nextlevel-elearning/progress-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var enrollmentCols = []string{"id", "learner_id", "course_id", "status", "completion_percent", "enrolled_at", "started_at", "completed_at"}

func TestEnrollmentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows(enrollmentCols).
		AddRow("e1", "l1", "c1", models.EnrollmentStatusInProgress, 40, time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, learner_id, course_id, status, completion_percent, enrolled_at, started_at, completed_at FROM enrollments WHERE id = $1")).
		WithArgs("e1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByID(context.Background(), "e1")
	require.NoError(t, err)
	require.Equal(t, 40, enrollment.CompletionPercent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByIDNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT id, learner_id, course_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindActiveOrCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows(enrollmentCols).
		AddRow("e1", "l1", "c1", models.EnrollmentStatusCompleted, 100, time.Now(), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("AND status IN ($3, $4) LIMIT 1")).
		WithArgs("l1", "c1", models.EnrollmentStatusInProgress, models.EnrollmentStatusCompleted).
		WillReturnRows(rows)

	enrollment, err := repo.FindActiveOrCompleted(context.Background(), "l1", "c1")
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryHasCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM enrollments WHERE learner_id = $1 AND course_id = $2 AND status = $3)")).
		WithArgs("l1", "c1", models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	completed, err := repo.HasCompleted(context.Background(), "l1", "c1")
	require.NoError(t, err)
	require.True(t, completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{LearnerID: "l1", CourseID: "c1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusInProgress, enrollment.Status)
	require.False(t, enrollment.EnrolledAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Enrollment{LearnerID: "l1", CourseID: "c1"})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows(enrollmentCols).
		AddRow("e1", "l1", "c1", models.EnrollmentStatusInProgress, 10, time.Now(), time.Now(), nil).
		AddRow("e2", "l1", "c2", models.EnrollmentStatusCompleted, 100, time.Now(), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("e.learner_id = $1")).
		WithArgs("l1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{LearnerID: "l1"})
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	require.Equal(t, 2, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCourseRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	cols := append(append([]string{}, enrollmentCols...), "modules_completed", "modules_total")
	rows := sqlmock.NewRows(cols).
		AddRow("e1", "l1", "c1", models.EnrollmentStatusInProgress, 40, time.Now(), time.Now(), nil, 2, 5)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN module_progress mp ON mp.enrollment_id = e.id")).
		WithArgs("c1").
		WillReturnRows(rows)

	roster, err := repo.CourseRoster(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, 2, roster[0].ModulesCompleted)
	require.Equal(t, 5, roster[0].ModulesTotal)
	require.NoError(t, mock.ExpectationsWereMet())
}
