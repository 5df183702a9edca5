package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nextlevel-elearning/progress-api/internal/models"
	"github.com/nextlevel-elearning/progress-api/internal/repository"
	appErrors "github.com/nextlevel-elearning/progress-api/pkg/errors"
)

type enrollmentStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindActiveOrCompleted(ctx context.Context, learnerID, courseID string) (*models.Enrollment, error)
	HasCompleted(ctx context.Context, learnerID, courseID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	CourseRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error)
}

type catalogReader interface {
	GetCourse(ctx context.Context, courseID string) (*models.Course, error)
	ListPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error)
}

// CreateEnrollmentRequest describes enrollment creation payload.
type CreateEnrollmentRequest struct {
	LearnerID string `json:"learner_id" validate:"required,uuid4"`
	CourseID  string `json:"course_id" validate:"required"`
}

// EnrollmentService gates enrollment on duplicates and prerequisites.
type EnrollmentService struct {
	repo      enrollmentStore
	catalog   catalogReader
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentStore, catalog catalogReader, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, catalog: catalog, validator: validate, metrics: metrics, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Create registers a learner in a course after checking for duplicates
// and unmet prerequisites.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	existing, err := s.repo.FindActiveOrCompleted(ctx, req.LearnerID, req.CourseID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if existing != nil {
		return nil, appErrors.WithDetails(appErrors.ErrConflict, "learner already holds an active or completed enrollment in this course", existing)
	}

	if _, err := s.catalog.GetCourse(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	prereqs, err := s.catalog.ListPrerequisites(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	var unmet []models.Prerequisite
	for _, prereq := range prereqs {
		completed, err := s.repo.HasCompleted(ctx, req.LearnerID, prereq.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite")
		}
		if !completed {
			unmet = append(unmet, prereq)
		}
	}
	if len(unmet) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "course prerequisites not met", unmet)
	}

	enrollment := &models.Enrollment{
		LearnerID: req.LearnerID,
		CourseID:  req.CourseID,
		Status:    models.EnrollmentStatusInProgress,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		// Two creations racing past the existence check: the partial
		// unique index is the authoritative guard, translated to the
		// same conflict as the pre-check.
		if repository.IsUniqueViolation(err) {
			winner, findErr := s.repo.FindActiveOrCompleted(ctx, req.LearnerID, req.CourseID)
			if findErr == nil && winner != nil {
				return nil, appErrors.WithDetails(appErrors.ErrConflict, "learner already holds an active or completed enrollment in this course", winner)
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "learner already holds an active or completed enrollment in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if s.metrics != nil {
		s.metrics.IncEnrollmentsCreated()
	}
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("learner_id", enrollment.LearnerID),
		zap.String("course_id", enrollment.CourseID),
	)
	return enrollment, nil
}

// Get returns an enrollment by ID.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// CourseRoster lists every enrollment in a course with module counts.
func (s *EnrollmentService) CourseRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	if _, err := s.catalog.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	roster, err := s.repo.CourseRoster(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course roster")
	}
	return roster, nil
}
