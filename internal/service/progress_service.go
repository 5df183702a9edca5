package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/nextlevel-elearning/progress-api/internal/events"
	"github.com/nextlevel-elearning/progress-api/internal/models"
	"github.com/nextlevel-elearning/progress-api/internal/repository"
	appErrors "github.com/nextlevel-elearning/progress-api/pkg/errors"
)

type progressStore interface {
	FindByEnrollmentAndModule(ctx context.Context, enrollmentID, moduleID string) (*models.ModuleProgress, error)
	Create(ctx context.Context, progress *models.ModuleProgress) error
	Complete(ctx context.Context, enrollmentID, moduleID string) (*repository.CompletionRow, error)
	ListWithModules(ctx context.Context, enrollmentID string) ([]models.ModuleProgressView, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type moduleReader interface {
	GetModule(ctx context.Context, moduleID string) (*models.CourseModule, error)
}

type certificateIssuer interface {
	GetOrCreate(ctx context.Context, enrollmentID string) (*models.Certificate, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// ProgressService records module lifecycle activity, recomputes the
// enrollment aggregate, and drives the post-commit event cascade.
type ProgressService struct {
	repo        progressStore
	enrollments enrollmentReader
	catalog     moduleReader
	issuer      certificateIssuer
	publisher   eventPublisher
	source      string
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewProgressService constructs ProgressService.
func NewProgressService(repo progressStore, enrollments enrollmentReader, catalog moduleReader, issuer certificateIssuer, publisher eventPublisher, source string, metrics *MetricsService, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if source == "" {
		source = "progress-service"
	}
	return &ProgressService{
		repo:        repo,
		enrollments: enrollments,
		catalog:     catalog,
		issuer:      issuer,
		publisher:   publisher,
		source:      source,
		metrics:     metrics,
		logger:      logger,
	}
}

// StartModule creates the progress row marking the module as started.
func (s *ProgressService) StartModule(ctx context.Context, enrollmentID, moduleID string) (*models.ModuleProgress, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !enrollment.Active() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not active")
	}

	if _, err := s.repo.FindByEnrollmentAndModule(ctx, enrollmentID, moduleID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "module already started")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check module progress")
	}

	progress := &models.ModuleProgress{EnrollmentID: enrollmentID, ModuleID: moduleID}
	if err := s.repo.Create(ctx, progress); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "module already started")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start module")
	}
	return progress, nil
}

// CompleteModule marks the module done, recomputes the enrollment
// percentage transactionally, and cascades domain events after the
// commit. Requires a prior StartModule for the pair.
func (s *ProgressService) CompleteModule(ctx context.Context, enrollmentID, moduleID string) (*models.ModuleCompletion, error) {
	row, err := s.repo.Complete(ctx, enrollmentID, moduleID)
	if err != nil {
		switch {
		case err == sql.ErrNoRows:
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		case errors.Is(err, repository.ErrProgressNotFound):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module progress not found; start the module first")
		case errors.Is(err, repository.ErrAlreadyCompleted):
			return nil, appErrors.Clone(appErrors.ErrConflict, "module already completed")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete module")
		}
	}

	completion := &models.ModuleCompletion{
		EnrollmentID:      row.EnrollmentID,
		ModuleID:          row.ModuleID,
		LearnerID:         row.LearnerID,
		CourseID:          row.CourseID,
		CompletionPercent: row.CompletionPercent,
		CourseCompleted:   row.CourseCompleted,
		TimeSpentMinutes:  row.TimeSpentMinutes,
	}
	if module, err := s.catalog.GetModule(ctx, moduleID); err == nil {
		completion.ModuleXP = module.XP
	}

	if s.metrics != nil {
		s.metrics.IncModulesCompleted()
		if completion.CourseCompleted {
			s.metrics.IncCoursesCompleted()
		}
	}

	// Everything below is post-commit and best effort: failures are
	// logged and never alter the outcome of the completed call.
	s.cascade(ctx, completion)

	return completion, nil
}

// ListModules returns the enrollment's modules with progress, in catalog order.
func (s *ProgressService) ListModules(ctx context.Context, enrollmentID string) ([]models.ModuleProgressView, error) {
	if _, err := s.enrollments.FindByID(ctx, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	views, err := s.repo.ListWithModules(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list module progress")
	}
	return views, nil
}

// Detail returns the composite progress view: the enrollment, its
// module list and the derived statistics.
func (s *ProgressService) Detail(ctx context.Context, enrollmentID string) (*models.ProgressDetail, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	views, err := s.repo.ListWithModules(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list module progress")
	}

	stats := models.ProgressStats{
		ModulesTotal:      len(views),
		CompletionPercent: enrollment.CompletionPercent,
	}
	for _, view := range views {
		if view.Required {
			stats.RequiredTotal++
		}
		if view.Completed {
			stats.ModulesCompleted++
			stats.XPEarned += view.XP
			if view.Required {
				stats.RequiredCompleted++
			}
		}
	}

	return &models.ProgressDetail{
		Enrollment: *enrollment,
		Modules:    views,
		Stats:      stats,
	}, nil
}

// NextModule returns the first not-yet-completed module in catalog
// order, or nil when every module is done.
func (s *ProgressService) NextModule(ctx context.Context, enrollmentID string) (*models.ModuleProgressView, error) {
	views, err := s.ListModules(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	for i := range views {
		if !views[i].Completed {
			return &views[i], nil
		}
	}
	return nil, nil
}

// ModuleUnlocked reports whether the learner may access the module:
// every required module positioned before it must be completed.
func (s *ProgressService) ModuleUnlocked(ctx context.Context, enrollmentID, moduleID string) (bool, error) {
	views, err := s.ListModules(ctx, enrollmentID)
	if err != nil {
		return false, err
	}
	var target *models.ModuleProgressView
	for i := range views {
		if views[i].ModuleID == moduleID {
			target = &views[i]
			break
		}
	}
	if target == nil {
		return false, appErrors.Clone(appErrors.ErrNotFound, "module not found in course")
	}
	for _, view := range views {
		if view.Position >= target.Position {
			break
		}
		if view.Required && !view.Completed {
			return false, nil
		}
	}
	return true, nil
}

func (s *ProgressService) cascade(ctx context.Context, completion *models.ModuleCompletion) {
	s.publish(ctx, events.RoutingKeyModuleCompleted, events.ModuleCompleted{
		EnrollmentID:    completion.EnrollmentID,
		CourseID:        completion.CourseID,
		LearnerID:       completion.LearnerID,
		ModuleID:        completion.ModuleID,
		ProgressPercent: completion.CompletionPercent,
		CourseCompleted: completion.CourseCompleted,
	})

	if !completion.CourseCompleted {
		return
	}

	s.publish(ctx, events.RoutingKeyCourseCompleted, events.CourseCompleted{
		EnrollmentID:  completion.EnrollmentID,
		CourseID:      completion.CourseID,
		LearnerID:     completion.LearnerID,
		TotalProgress: 100,
	})

	cert, err := s.issuer.GetOrCreate(ctx, completion.EnrollmentID)
	if err != nil {
		s.logger.Error("certificate issuance failed after completion",
			zap.String("enrollment_id", completion.EnrollmentID),
			zap.Error(err),
		)
		return
	}

	fragment := cert.VerificationHash
	if len(fragment) > 16 {
		fragment = fragment[:16]
	}
	s.publish(ctx, events.RoutingKeyCertificateIssued, events.CertificateIssued{
		CourseID:                 cert.CourseID,
		LearnerID:                cert.LearnerID,
		CertificateCode:          cert.Code,
		IssuedAt:                 cert.IssuedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		StorageKey:               cert.StorageKey,
		VerificationHashFragment: fragment,
	})
}

func (s *ProgressService) publish(ctx context.Context, routingKey string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	envelope := events.NewEnvelope(routingKey, s.source, payload)
	body, err := json.Marshal(envelope)
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("routing_key", routingKey), zap.Error(err))
		return
	}
	err = s.publisher.Publish(ctx, routingKey, body)
	if s.metrics != nil {
		s.metrics.ObserveEventPublish(routingKey, err)
	}
	if err != nil {
		s.logger.Error("event publish failed",
			zap.String("routing_key", routingKey),
			zap.String("event_id", envelope.EventID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("event published",
		zap.String("routing_key", routingKey),
		zap.String("event_id", envelope.EventID),
	)
}
