package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nextlevel-elearning/progress-api/internal/models"
)

// Sentinel results from the transactional completion path.
var (
	// ErrProgressNotFound signals the module was never started.
	ErrProgressNotFound = errors.New("module progress not found")
	// ErrAlreadyCompleted signals a second completion attempt.
	ErrAlreadyCompleted = errors.New("module already completed")
)

// CompletionRow is the db-level outcome of the transactional completion.
type CompletionRow struct {
	EnrollmentID      string
	ModuleID          string
	LearnerID         string
	CourseID          string
	CompletionPercent int
	CourseCompleted   bool
	TimeSpentMinutes  int
}

// ModuleProgressRepository handles per-module activity rows and the
// transactional enrollment recompute.
type ModuleProgressRepository struct {
	db *sqlx.DB
}

// NewModuleProgressRepository constructs the repository.
func NewModuleProgressRepository(db *sqlx.DB) *ModuleProgressRepository {
	return &ModuleProgressRepository{db: db}
}

// FindByEnrollmentAndModule returns the progress row for the pair.
func (r *ModuleProgressRepository) FindByEnrollmentAndModule(ctx context.Context, enrollmentID, moduleID string) (*models.ModuleProgress, error) {
	const query = `SELECT id, enrollment_id, module_id, started_at, completed_at, time_spent_minutes
        FROM module_progress WHERE enrollment_id = $1 AND module_id = $2`
	var progress models.ModuleProgress
	if err := r.db.GetContext(ctx, &progress, query, enrollmentID, moduleID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// Create inserts a new progress row marking the module as started.
func (r *ModuleProgressRepository) Create(ctx context.Context, progress *models.ModuleProgress) error {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	if progress.StartedAt.IsZero() {
		progress.StartedAt = time.Now().UTC()
	}
	const query = `INSERT INTO module_progress (id, enrollment_id, module_id, started_at, completed_at, time_spent_minutes)
        VALUES (:id, :enrollment_id, :module_id, :started_at, :completed_at, :time_spent_minutes)`
	if _, err := r.db.NamedExecContext(ctx, query, progress); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create module progress: %w", err)
	}
	return nil
}

// Complete marks the module done and recomputes the enrollment aggregate
// in a single transaction. The enrollment row is locked for the duration
// so concurrent completions for the same enrollment serialize instead of
// racing the read-modify-write of the percentage.
func (r *ModuleProgressRepository) Complete(ctx context.Context, enrollmentID, moduleID string) (*CompletionRow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin module completion: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var enrollment models.Enrollment
	const lockQuery = `SELECT id, learner_id, course_id, status, completion_percent, enrolled_at, started_at, completed_at
        FROM enrollments WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &enrollment, lockQuery, enrollmentID); err != nil {
		return nil, err
	}

	var progress models.ModuleProgress
	const progressQuery = `SELECT id, enrollment_id, module_id, started_at, completed_at, time_spent_minutes
        FROM module_progress WHERE enrollment_id = $1 AND module_id = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &progress, progressQuery, enrollmentID, moduleID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProgressNotFound
		}
		return nil, fmt.Errorf("load module progress: %w", err)
	}
	if progress.CompletedAt != nil {
		return nil, ErrAlreadyCompleted
	}

	now := time.Now().UTC()
	minutes := int(math.Round(now.Sub(progress.StartedAt).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	const completeQuery = `UPDATE module_progress SET completed_at = $2, time_spent_minutes = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, completeQuery, progress.ID, now, minutes); err != nil {
		return nil, fmt.Errorf("complete module progress: %w", err)
	}

	// Aggregate over required modules only; non-required modules never
	// count toward the percentage.
	var counts struct {
		Total int `db:"total"`
		Done  int `db:"done"`
	}
	const countsQuery = `SELECT
        (SELECT COUNT(*) FROM catalog.modules m WHERE m.course_id = $2 AND m.required) AS total,
        (SELECT COUNT(DISTINCT mp.module_id) FROM module_progress mp
            JOIN catalog.modules m ON m.id = mp.module_id AND m.required
            WHERE mp.enrollment_id = $1 AND mp.completed_at IS NOT NULL) AS done`
	if err := tx.GetContext(ctx, &counts, countsQuery, enrollmentID, enrollment.CourseID); err != nil {
		return nil, fmt.Errorf("count required modules: %w", err)
	}

	percent := 100
	if counts.Total > 0 {
		percent = int(math.Round(float64(counts.Done) / float64(counts.Total) * 100))
	}
	// The flag marks the transition into COMPLETED, not the resulting
	// percentage: completing a leftover non-required module after the
	// course already finished must not announce the course again.
	courseCompleted := percent == 100 && enrollment.Status != models.EnrollmentStatusCompleted

	if percent == 100 {
		// COALESCE keeps an already-set completion timestamp intact.
		const finishQuery = `UPDATE enrollments SET completion_percent = $2, status = $3, completed_at = COALESCE(completed_at, $4) WHERE id = $1`
		if _, err := tx.ExecContext(ctx, finishQuery, enrollmentID, percent, models.EnrollmentStatusCompleted, now); err != nil {
			return nil, fmt.Errorf("finish enrollment: %w", err)
		}
	} else {
		const updateQuery = `UPDATE enrollments SET completion_percent = $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, updateQuery, enrollmentID, percent); err != nil {
			return nil, fmt.Errorf("update enrollment percent: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit module completion: %w", err)
	}
	committed = true

	return &CompletionRow{
		EnrollmentID:      enrollmentID,
		ModuleID:          moduleID,
		LearnerID:         enrollment.LearnerID,
		CourseID:          enrollment.CourseID,
		CompletionPercent: percent,
		CourseCompleted:   courseCompleted,
		TimeSpentMinutes:  minutes,
	}, nil
}

// ListWithModules joins catalog metadata with progress rows for the
// per-enrollment module listing, in catalog order.
func (r *ModuleProgressRepository) ListWithModules(ctx context.Context, enrollmentID string) ([]models.ModuleProgressView, error) {
	const query = `SELECT m.id AS module_id, m.title, m.position, m.required, m.xp,
        mp.started_at, mp.completed_at,
        (mp.completed_at IS NOT NULL) AS completed
        FROM enrollments e
        JOIN catalog.modules m ON m.course_id = e.course_id
        LEFT JOIN module_progress mp ON mp.enrollment_id = e.id AND mp.module_id = m.id
        WHERE e.id = $1
        ORDER BY m.position ASC`
	var views []models.ModuleProgressView
	if err := r.db.SelectContext(ctx, &views, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list module progress: %w", err)
	}
	return views, nil
}
