package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nextlevel-elearning/progress-api/internal/models"
	appErrors "github.com/nextlevel-elearning/progress-api/pkg/errors"
)

const (
	testLearnerID = "5f0c6f9a-8f0a-4c2d-9b6e-1a2b3c4d5e6f"
	testCourseID  = "course-go-101"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	byPair      map[string]models.Enrollment
	completed   map[string]bool
	created     *models.Enrollment
	createErr   error
	roster      []models.RosterEntry
}

func pairKey(learnerID, courseID string) string {
	return learnerID + "|" + courseID
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var list []models.Enrollment
	for _, e := range m.enrollments {
		list = append(list, e)
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindActiveOrCompleted(ctx context.Context, learnerID, courseID string) (*models.Enrollment, error) {
	if e, ok := m.byPair[pairKey(learnerID, courseID)]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) HasCompleted(ctx context.Context, learnerID, courseID string) (bool, error) {
	return m.completed[pairKey(learnerID, courseID)], nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enrollment"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) CourseRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	return m.roster, nil
}

type mockCatalog struct {
	courses map[string]*models.Course
	prereqs map[string][]models.Prerequisite
	modules map[string]*models.CourseModule
	names   map[string]string
}

func (m *mockCatalog) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	if c, ok := m.courses[courseID]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalog) ListPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error) {
	return m.prereqs[courseID], nil
}

func (m *mockCatalog) GetModule(ctx context.Context, moduleID string) (*models.CourseModule, error) {
	if mod, ok := m.modules[moduleID]; ok {
		return mod, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalog) GetLearnerName(ctx context.Context, learnerID string) (string, error) {
	if n, ok := m.names[learnerID]; ok {
		return n, nil
	}
	return "", sql.ErrNoRows
}

func newTestCatalog() *mockCatalog {
	return &mockCatalog{
		courses: map[string]*models.Course{
			testCourseID: {ID: testCourseID, Code: "GO-101", Title: "Go Fundamentals"},
		},
	}
}

func TestEnrollmentServiceCreate(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := NewEnrollmentService(repo, newTestCatalog(), validator.New(), nil, zap.NewNop())

	enrollment, err := svc.Create(context.Background(), CreateEnrollmentRequest{LearnerID: testLearnerID, CourseID: testCourseID})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusInProgress, enrollment.Status)
	assert.NotNil(t, repo.created)
}

func TestEnrollmentServiceCreateInvalidPayload(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{}, newTestCatalog(), validator.New(), nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{LearnerID: "not-a-uuid", CourseID: testCourseID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateDuplicate(t *testing.T) {
	existing := models.Enrollment{ID: "e1", LearnerID: testLearnerID, CourseID: testCourseID, Status: models.EnrollmentStatusInProgress}
	repo := &mockEnrollmentRepo{byPair: map[string]models.Enrollment{pairKey(testLearnerID, testCourseID): existing}}
	svc := NewEnrollmentService(repo, newTestCatalog(), validator.New(), nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{LearnerID: testLearnerID, CourseID: testCourseID})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.NotNil(t, appErr.Details)
}

func TestEnrollmentServiceCreateCourseNotFound(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{}, &mockCatalog{}, validator.New(), nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{LearnerID: testLearnerID, CourseID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateUnmetPrerequisites(t *testing.T) {
	catalog := newTestCatalog()
	catalog.prereqs = map[string][]models.Prerequisite{
		testCourseID: {
			{CourseID: "course-basics", Code: "GO-001", Title: "Programming Basics"},
			{CourseID: "course-done", Code: "GO-000", Title: "Orientation"},
		},
	}
	repo := &mockEnrollmentRepo{completed: map[string]bool{pairKey(testLearnerID, "course-done"): true}}
	svc := NewEnrollmentService(repo, catalog, validator.New(), nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{LearnerID: testLearnerID, CourseID: testCourseID})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	unmet, ok := appErr.Details.([]models.Prerequisite)
	require.True(t, ok)
	require.Len(t, unmet, 1)
	assert.Equal(t, "course-basics", unmet[0].CourseID)
}

func TestEnrollmentServiceCreateRace(t *testing.T) {
	// A concurrent insert wins between the pre-check and our insert:
	// the unique index violation must map to the same conflict.
	repo := &mockEnrollmentRepo{createErr: &pq.Error{Code: "23505"}}
	svc := NewEnrollmentService(repo, newTestCatalog(), validator.New(), nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{LearnerID: testLearnerID, CourseID: testCourseID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceGetNotFound(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{}, newTestCatalog(), validator.New(), nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCourseRoster(t *testing.T) {
	repo := &mockEnrollmentRepo{roster: []models.RosterEntry{
		{Enrollment: models.Enrollment{ID: "e1", CourseID: testCourseID}, ModulesCompleted: 2, ModulesTotal: 5},
	}}
	svc := NewEnrollmentService(repo, newTestCatalog(), validator.New(), nil, zap.NewNop())

	roster, err := svc.CourseRoster(context.Background(), testCourseID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, 2, roster[0].ModulesCompleted)
}
