package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/nextlevel-elearning/progress-api/internal/models"
)

var certificateCols = []string{"id", "learner_id", "course_id", "code", "verification_hash", "issued_at", "storage_key"}

func TestCertificateRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	rows := sqlmock.NewRows(certificateCols).
		AddRow("c1", "l1", "course-1", "ABCDEFGH2345", "deadbeef", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE code = $1")).
		WithArgs("ABCDEFGH2345").
		WillReturnRows(rows)

	cert, err := repo.FindByCode(context.Background(), "ABCDEFGH2345")
	require.NoError(t, err)
	require.Equal(t, "l1", cert.LearnerID)
	require.Nil(t, cert.StorageKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryFindByCodeNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE code = $1")).
		WithArgs("UNKNOWN23456").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByCode(context.Background(), "UNKNOWN23456")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec("INSERT INTO certificates").
		WillReturnResult(sqlmock.NewResult(0, 1))

	cert := &models.Certificate{LearnerID: "l1", CourseID: "course-1", Code: "ABCDEFGH2345", VerificationHash: "deadbeef"}
	require.NoError(t, repo.Create(context.Background(), cert))
	require.NotEmpty(t, cert.ID)
	require.False(t, cert.IssuedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryCreateUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec("INSERT INTO certificates").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Certificate{LearnerID: "l1", CourseID: "course-1", Code: "ABCDEFGH2345"})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryListByLearner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	rows := sqlmock.NewRows(certificateCols).
		AddRow("c1", "l1", "course-1", "AAAA23456789", "hash1", time.Now(), "certificates/AAAA23456789.pdf").
		AddRow("c2", "l1", "course-2", "BBBB23456789", "hash2", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE learner_id = $1 ORDER BY issued_at DESC")).
		WithArgs("l1").
		WillReturnRows(rows)

	certs, err := repo.ListByLearner(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, certs, 2)
	require.NotNil(t, certs[0].StorageKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositorySetStorageKey(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET storage_key = $2 WHERE id = $1 AND storage_key IS NULL")).
		WithArgs("c1", "certificates/ABCDEFGH2345.pdf").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetStorageKey(context.Background(), "c1", "certificates/ABCDEFGH2345.pdf"))
	require.NoError(t, mock.ExpectationsWereMet())
}
