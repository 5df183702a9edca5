package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nextlevel-elearning/progress-api/internal/models"
)

// CertificateRepository handles persistence of issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateColumns = "id, learner_id, course_id, code, verification_hash, issued_at, storage_key"

// FindByLearnerAndCourse returns the certificate for the pair, if issued.
func (r *CertificateRepository) FindByLearnerAndCourse(ctx context.Context, learnerID, courseID string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE learner_id = $1 AND course_id = $2`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, learnerID, courseID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindByCode returns the certificate carrying the public code.
func (r *CertificateRepository) FindByCode(ctx context.Context, code string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE code = $1`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, code); err != nil {
		return nil, err
	}
	return &cert, nil
}

// ListByLearner returns every certificate issued to the learner.
func (r *CertificateRepository) ListByLearner(ctx context.Context, learnerID string) ([]models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE learner_id = $1 ORDER BY issued_at DESC`, certificateColumns)
	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, learnerID); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}

// Create inserts a certificate row. The unique index over
// (learner_id, course_id) is the authoritative guard against a
// duplicate-issuance race; violations are returned unwrapped for the
// service to re-read the winning row.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certificates (id, learner_id, course_id, code, verification_hash, issued_at, storage_key)
        VALUES (:id, :learner_id, :course_id, :code, :verification_hash, :issued_at, :storage_key)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// SetStorageKey backfills the artifact key exactly once.
func (r *CertificateRepository) SetStorageKey(ctx context.Context, id, storageKey string) error {
	const query = `UPDATE certificates SET storage_key = $2 WHERE id = $1 AND storage_key IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, storageKey); err != nil {
		return fmt.Errorf("set certificate storage key: %w", err)
	}
	return nil
}
