package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nextlevel-elearning/progress-api/internal/models"
	"github.com/nextlevel-elearning/progress-api/internal/repository"
	appErrors "github.com/nextlevel-elearning/progress-api/pkg/errors"
)

const (
	certificateSaltBytes    = 16
	validateCachePrefix     = "certificates:validate:"
	defaultValidateCacheTTL = 10 * time.Minute
	maxCodeAttempts         = 3
)

type certificateStore interface {
	FindByLearnerAndCourse(ctx context.Context, learnerID, courseID string) (*models.Certificate, error)
	FindByCode(ctx context.Context, code string) (*models.Certificate, error)
	ListByLearner(ctx context.Context, learnerID string) ([]models.Certificate, error)
	Create(ctx context.Context, cert *models.Certificate) error
}

type validationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type artifactRenderer interface {
	Enqueue(cert *models.Certificate)
}

// CertificateService issues certificates for completed enrollments and
// answers public validation queries.
type CertificateService struct {
	repo        certificateStore
	enrollments enrollmentReader
	cache       validationCache
	renderer    artifactRenderer
	cacheTTL    time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewCertificateService constructs CertificateService. cache and
// renderer are optional.
func NewCertificateService(repo certificateStore, enrollments enrollmentReader, cache validationCache, renderer artifactRenderer, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultValidateCacheTTL
	}
	return &CertificateService{
		repo:        repo,
		enrollments: enrollments,
		cache:       cache,
		renderer:    renderer,
		cacheTTL:    cacheTTL,
		metrics:     metrics,
		logger:      logger,
	}
}

// GetOrCreate returns the certificate for a completed enrollment,
// issuing it on first call. Safe under concurrent completion: the
// unique (learner_id, course_id) index elects one writer and everyone
// else re-reads the winner.
func (s *CertificateService) GetOrCreate(ctx context.Context, enrollmentID string) (*models.Certificate, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	// The idempotent read comes before the status gate: a certificate
	// that was already issued stays retrievable regardless of what later
	// happens to the enrollment.
	existing, err := s.repo.FindByLearnerAndCourse(ctx, enrollment.LearnerID, enrollment.CourseID)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up certificate")
	}
	if enrollment.Status != models.EnrollmentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is not completed")
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCertificateCode()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate certificate code")
		}
		hash, err := verificationHash(code, enrollment.LearnerID, enrollment.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to derive verification hash")
		}

		cert := &models.Certificate{
			LearnerID:        enrollment.LearnerID,
			CourseID:         enrollment.CourseID,
			Code:             code,
			VerificationHash: hash,
		}
		if err := s.repo.Create(ctx, cert); err != nil {
			if repository.IsUniqueViolation(err) {
				winner, readErr := s.repo.FindByLearnerAndCourse(ctx, enrollment.LearnerID, enrollment.CourseID)
				if readErr == nil {
					return winner, nil
				}
				if readErr == sql.ErrNoRows {
					// Code collision rather than a concurrent issue; try again.
					continue
				}
				return nil, appErrors.Wrap(readErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up certificate")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue certificate")
		}

		if s.metrics != nil {
			s.metrics.IncCertificatesIssued()
		}
		s.logger.Info("certificate issued",
			zap.String("learner_id", cert.LearnerID),
			zap.String("course_id", cert.CourseID),
			zap.String("code", cert.Code),
		)
		if s.renderer != nil {
			s.renderer.Enqueue(cert)
		}
		return cert, nil
	}
	return nil, appErrors.Clone(appErrors.ErrInternal, "exhausted certificate code attempts")
}

// GetByCode returns the full certificate record for a code.
func (s *CertificateService) GetByCode(ctx context.Context, code string) (*models.Certificate, error) {
	cert, err := s.repo.FindByCode(ctx, normalizeCode(code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up certificate")
	}
	return cert, nil
}

// cachedCertificate is the subset of the certificate row kept in the
// validation cache. The hash is public alongside the code, so caching
// it discloses nothing new.
type cachedCertificate struct {
	Code             string    `json:"code"`
	CourseID         string    `json:"course_id"`
	LearnerID        string    `json:"learner_id"`
	IssuedAt         time.Time `json:"issued_at"`
	VerificationHash string    `json:"verification_hash"`
}

// Validate answers the public authenticity query: look up by code and
// compare the supplied hash to the stored one. The hash is a checksum,
// not a bearer credential, so plain equality suffices. Known codes are
// cached; unknown codes are not.
func (s *CertificateService) Validate(ctx context.Context, code, suppliedHash string) (*models.CertificateValidation, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "certificate code is required")
	}

	cacheKey := validateCachePrefix + code
	var cached cachedCertificate
	found := false
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			found = true
		}
	}
	if !found {
		cert, err := s.repo.FindByCode(ctx, code)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate certificate")
		}
		cached = cachedCertificate{
			Code:             cert.Code,
			CourseID:         cert.CourseID,
			LearnerID:        cert.LearnerID,
			IssuedAt:         cert.IssuedAt,
			VerificationHash: cert.VerificationHash,
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, cacheKey, cached, s.cacheTTL); err != nil {
				s.logger.Debug("failed to cache validation", zap.String("code", code), zap.Error(err))
			}
		}
	}

	return &models.CertificateValidation{
		Code:      cached.Code,
		CourseID:  cached.CourseID,
		LearnerID: cached.LearnerID,
		IssuedAt:  cached.IssuedAt,
		Valid:     suppliedHash != "" && suppliedHash == cached.VerificationHash,
	}, nil
}

// ListByLearner returns all certificates held by a learner.
func (s *CertificateService) ListByLearner(ctx context.Context, learnerID string) ([]models.Certificate, error) {
	certs, err := s.repo.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	return certs, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateCertificateCode() (string, error) {
	buf := make([]byte, models.CertificateCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, models.CertificateCodeLength)
	for i, b := range buf {
		out[i] = models.CertificateCodeAlphabet[int(b)%len(models.CertificateCodeAlphabet)]
	}
	return string(out), nil
}

func verificationHash(code, learnerID, courseID string) (string, error) {
	salt := make([]byte, certificateSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%s", code, learnerID, courseID, hex.EncodeToString(salt))))
	return hex.EncodeToString(sum[:]), nil
}
