package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/nextlevel-elearning/progress-api/internal/models"
)

// IsUniqueViolation reports whether the error is a Postgres unique
// constraint violation. The store-level constraint is the authoritative
// guard for duplicate enrollments and certificates; callers translate
// this into their conflict error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	base := "FROM enrollments e"
	var conditions []string
	var args []interface{}

	if filter.LearnerID != "" {
		conditions = append(conditions, fmt.Sprintf("e.learner_id = $%d", len(args)+1))
		args = append(args, filter.LearnerID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.learner_id, e.course_id, e.status, e.completion_percent, e.enrolled_at, e.started_at, e.completed_at
        %s ORDER BY e.enrolled_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, learner_id, course_id, status, completion_percent, enrolled_at, started_at, completed_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindActiveOrCompleted returns the learner's current enrollment in the
// course, skipping cancelled ones.
func (r *EnrollmentRepository) FindActiveOrCompleted(ctx context.Context, learnerID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT id, learner_id, course_id, status, completion_percent, enrolled_at, started_at, completed_at
        FROM enrollments WHERE learner_id = $1 AND course_id = $2 AND status IN ($3, $4) LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, learnerID, courseID, models.EnrollmentStatusInProgress, models.EnrollmentStatusCompleted); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// HasCompleted reports whether the learner holds a COMPLETED enrollment
// for the course; used for prerequisite checks.
func (r *EnrollmentRepository) HasCompleted(ctx context.Context, learnerID, courseID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM enrollments WHERE learner_id = $1 AND course_id = $2 AND status = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, learnerID, courseID, models.EnrollmentStatusCompleted); err != nil {
		return false, fmt.Errorf("check completed enrollment: %w", err)
	}
	return exists, nil
}

// Create persists a new enrollment record. A unique violation from the
// partial index over active/completed (learner, course) pairs is
// returned unwrapped so the service can detect the duplicate race.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.StartedAt.IsZero() {
		enrollment.StartedAt = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusInProgress
	}
	const query = `INSERT INTO enrollments (id, learner_id, course_id, status, completion_percent, enrolled_at, started_at, completed_at)
        VALUES (:id, :learner_id, :course_id, :status, :completion_percent, :enrolled_at, :started_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// CourseRoster lists every enrollment in a course with module counts.
func (r *EnrollmentRepository) CourseRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id, e.learner_id, e.course_id, e.status, e.completion_percent, e.enrolled_at, e.started_at, e.completed_at,
        COUNT(DISTINCT mp.module_id) FILTER (WHERE mp.completed_at IS NOT NULL) AS modules_completed,
        (SELECT COUNT(*) FROM catalog.modules m WHERE m.course_id = e.course_id) AS modules_total
        FROM enrollments e
        LEFT JOIN module_progress mp ON mp.enrollment_id = e.id
        WHERE e.course_id = $1
        GROUP BY e.id
        ORDER BY e.enrolled_at DESC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, courseID); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return roster, nil
}
