package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevel-elearning/progress-api/internal/models"
)

// CatalogRepository is the read-only gateway to course and learner
// metadata owned by the catalog and directory services. Nothing here
// is ever written by this service.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the gateway.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetCourse returns catalog metadata for a course.
func (r *CatalogRepository) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	const query = `SELECT id, code, title, instructor_id, estimated_hours FROM catalog.courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, courseID); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListPrerequisites returns prerequisite courses in catalog-declared order.
func (r *CatalogRepository) ListPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error) {
	const query = `SELECT c.id AS course_id, c.code, c.title
        FROM catalog.course_prerequisites p
        JOIN catalog.courses c ON c.id = p.prerequisite_id
        WHERE p.course_id = $1
        ORDER BY p.position ASC`
	var prereqs []models.Prerequisite
	if err := r.db.SelectContext(ctx, &prereqs, query, courseID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return prereqs, nil
}

// GetModule returns catalog metadata for a single module.
func (r *CatalogRepository) GetModule(ctx context.Context, moduleID string) (*models.CourseModule, error) {
	const query = `SELECT id, course_id, title, position, required, xp FROM catalog.modules WHERE id = $1`
	var module models.CourseModule
	if err := r.db.GetContext(ctx, &module, query, moduleID); err != nil {
		return nil, err
	}
	return &module, nil
}

// GetLearnerName resolves a learner's display name from the employee
// directory; falls back to the id when the directory has no row.
func (r *CatalogRepository) GetLearnerName(ctx context.Context, learnerID string) (string, error) {
	const query = `SELECT full_name FROM directory.employees WHERE id = $1`
	var name string
	if err := r.db.GetContext(ctx, &name, query, learnerID); err != nil {
		return "", err
	}
	return name, nil
}
