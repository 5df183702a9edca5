package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nextlevel-elearning/progress-api/internal/models"
	appErrors "github.com/nextlevel-elearning/progress-api/pkg/errors"
	"github.com/nextlevel-elearning/progress-api/pkg/export"
	"github.com/nextlevel-elearning/progress-api/pkg/jobs"
	"github.com/nextlevel-elearning/progress-api/pkg/storage"
)

const renderJobType = "certificate.render"

type renderStore interface {
	FindByCode(ctx context.Context, code string) (*models.Certificate, error)
	SetStorageKey(ctx context.Context, id, storageKey string) error
}

type renderCatalog interface {
	GetCourse(ctx context.Context, courseID string) (*models.Course, error)
	GetLearnerName(ctx context.Context, learnerID string) (string, error)
}

type cacheInvalidator interface {
	Delete(ctx context.Context, key string) error
}

// RenderOptions carries the static certificate branding.
type RenderOptions struct {
	Issuer            string
	Locality          string
	ValidationBaseURL string
	Workers           int
	Retries           int
}

// RenderService renders certificate PDFs in the background, persists
// them to artifact storage, and issues signed download URLs.
type RenderService struct {
	repo     renderStore
	catalog  renderCatalog
	storage  *storage.LocalStorage
	signer   *storage.SignedURLSigner
	renderer *export.PDFRenderer
	cache    cacheInvalidator
	opts     RenderOptions
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewRenderService constructs RenderService and its worker queue. Call
// Start before enqueueing work. cache is optional.
func NewRenderService(repo renderStore, catalog renderCatalog, store *storage.LocalStorage, signer *storage.SignedURLSigner, cache cacheInvalidator, opts RenderOptions, logger *zap.Logger) *RenderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RenderService{
		repo:     repo,
		catalog:  catalog,
		storage:  store,
		signer:   signer,
		renderer: export.NewPDFRenderer(),
		cache:    cache,
		opts:     opts,
		logger:   logger,
	}
	s.queue = jobs.NewQueue("certificate-render", s.handleRenderJob, jobs.QueueConfig{
		Workers:    opts.Workers,
		MaxRetries: opts.Retries,
		Logger:     logger,
	})
	return s
}

// Start launches the render workers.
func (s *RenderService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the render workers.
func (s *RenderService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules a background render for a freshly issued
// certificate. Best effort: a full queue is logged, not surfaced, since
// the artifact can still be rendered on first download.
func (s *RenderService) Enqueue(cert *models.Certificate) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      cert.ID,
		Type:    renderJobType,
		Payload: cert.Code,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue certificate render",
			zap.String("code", cert.Code),
			zap.Error(err),
		)
	}
}

// SignedDownload returns a short-lived signed token for the
// certificate's PDF, rendering it on the spot if the background job has
// not produced it yet.
func (s *RenderService) SignedDownload(ctx context.Context, code string) (string, time.Time, error) {
	cert, err := s.repo.FindByCode(ctx, normalizeCode(code))
	if err != nil {
		if err == sql.ErrNoRows {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up certificate")
	}

	key, err := s.ensureArtifact(ctx, cert)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare certificate artifact")
	}

	token, expiresAt, err := s.signer.Generate(cert.Code, key)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return token, expiresAt, nil
}

// ResolveDownload validates a signed token and returns the artifact's
// filesystem path for streaming.
func (s *RenderService) ResolveDownload(token string) (path, filename string, err error) {
	code, key, _, err := s.signer.Parse(token)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "invalid or expired download token")
	}
	if !s.storage.Exists(key) {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "certificate artifact not found")
	}
	return s.storage.Path(key), fmt.Sprintf("certificate-%s.pdf", code), nil
}

func (s *RenderService) handleRenderJob(ctx context.Context, job jobs.Job) error {
	code, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("render job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	cert, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("load certificate %s: %w", code, err)
	}
	if _, err := s.ensureArtifact(ctx, cert); err != nil {
		return err
	}
	return nil
}

// ensureArtifact renders and stores the PDF if it is not already on
// disk, and backfills the certificate's storage key.
func (s *RenderService) ensureArtifact(ctx context.Context, cert *models.Certificate) (string, error) {
	if cert.StorageKey != nil && s.storage.Exists(*cert.StorageKey) {
		return *cert.StorageKey, nil
	}

	doc := export.CertificateDocument{
		Code:              cert.Code,
		VerificationHash:  cert.VerificationHash,
		Issuer:            s.opts.Issuer,
		Locality:          s.opts.Locality,
		ValidationBaseURL: s.opts.ValidationBaseURL,
		IssuedAt:          cert.IssuedAt,
		CompletedAt:       cert.IssuedAt,
	}
	if name, err := s.catalog.GetLearnerName(ctx, cert.LearnerID); err == nil {
		doc.LearnerName = name
	} else {
		s.logger.Warn("learner name unavailable for certificate",
			zap.String("learner_id", cert.LearnerID),
			zap.Error(err),
		)
	}
	if course, err := s.catalog.GetCourse(ctx, cert.CourseID); err == nil {
		doc.CourseTitle = course.Title
		doc.EstimatedHours = course.EstimatedHours
		if name, err := s.catalog.GetLearnerName(ctx, course.InstructorID); err == nil {
			doc.InstructorName = name
		}
	} else {
		s.logger.Warn("course metadata unavailable for certificate",
			zap.String("course_id", cert.CourseID),
			zap.Error(err),
		)
	}

	data, err := s.renderer.Render(doc)
	if err != nil {
		return "", fmt.Errorf("render certificate %s: %w", cert.Code, err)
	}

	key := fmt.Sprintf("certificates/%s.pdf", cert.Code)
	if _, err := s.storage.Save(key, data); err != nil {
		return "", fmt.Errorf("store certificate %s: %w", cert.Code, err)
	}
	if err := s.repo.SetStorageKey(ctx, cert.ID, key); err != nil {
		return "", fmt.Errorf("record storage key for %s: %w", cert.Code, err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, validateCachePrefix+cert.Code); err != nil {
			s.logger.Debug("failed to invalidate validation cache", zap.String("code", cert.Code), zap.Error(err))
		}
	}
	s.logger.Info("certificate artifact rendered",
		zap.String("code", cert.Code),
		zap.String("storage_key", key),
	)
	return key, nil
}
