package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nextlevel-elearning/progress-api/internal/models"
	appErrors "github.com/nextlevel-elearning/progress-api/pkg/errors"
)

type mockCertificateRepo struct {
	byPair      map[string]models.Certificate
	byCode      map[string]models.Certificate
	created     *models.Certificate
	createErr   error
	winnerAfter *models.Certificate
	pairCalls   int
}

func (m *mockCertificateRepo) FindByLearnerAndCourse(ctx context.Context, learnerID, courseID string) (*models.Certificate, error) {
	m.pairCalls++
	if c, ok := m.byPair[pairKey(learnerID, courseID)]; ok {
		return &c, nil
	}
	if m.winnerAfter != nil && m.pairCalls > 1 {
		return m.winnerAfter, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateRepo) FindByCode(ctx context.Context, code string) (*models.Certificate, error) {
	if c, ok := m.byCode[code]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateRepo) ListByLearner(ctx context.Context, learnerID string) ([]models.Certificate, error) {
	var list []models.Certificate
	for _, c := range m.byCode {
		if c.LearnerID == learnerID {
			list = append(list, c)
		}
	}
	return list, nil
}

func (m *mockCertificateRepo) Create(ctx context.Context, cert *models.Certificate) error {
	if m.createErr != nil {
		return m.createErr
	}
	cert.ID = "new-cert"
	cert.IssuedAt = time.Now().UTC()
	m.created = cert
	return nil
}

type mockValidationCache struct {
	entries map[string][]byte
	sets    int
}

func (m *mockValidationCache) Get(ctx context.Context, key string, dest interface{}) error {
	if raw, ok := m.entries[key]; ok {
		return json.Unmarshal(raw, dest)
	}
	return appErrors.ErrCacheMiss
}

func (m *mockValidationCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	m.sets++
	return nil
}

type mockRenderEnqueuer struct {
	enqueued []string
}

func (m *mockRenderEnqueuer) Enqueue(cert *models.Certificate) {
	m.enqueued = append(m.enqueued, cert.Code)
}

func completedEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", LearnerID: testLearnerID, CourseID: testCourseID, Status: models.EnrollmentStatusCompleted},
	}}
}

func TestCertificateServiceGetOrCreate(t *testing.T) {
	repo := &mockCertificateRepo{}
	renderer := &mockRenderEnqueuer{}
	svc := NewCertificateService(repo, completedEnrollmentRepo(), nil, renderer, 0, nil, zap.NewNop())

	cert, err := svc.GetOrCreate(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, repo.created)

	assert.Len(t, cert.Code, models.CertificateCodeLength)
	for _, r := range cert.Code {
		assert.Contains(t, models.CertificateCodeAlphabet, string(r))
	}
	assert.Len(t, cert.VerificationHash, 64)
	assert.Equal(t, strings.ToLower(cert.VerificationHash), cert.VerificationHash)
	assert.Equal(t, []string{cert.Code}, renderer.enqueued)
}

func TestCertificateServiceGetOrCreateIdempotent(t *testing.T) {
	existing := models.Certificate{ID: "c1", LearnerID: testLearnerID, CourseID: testCourseID, Code: "EXISTING2345"}
	repo := &mockCertificateRepo{byPair: map[string]models.Certificate{pairKey(testLearnerID, testCourseID): existing}}
	renderer := &mockRenderEnqueuer{}
	svc := NewCertificateService(repo, completedEnrollmentRepo(), nil, renderer, 0, nil, zap.NewNop())

	cert, err := svc.GetOrCreate(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "EXISTING2345", cert.Code)
	assert.Nil(t, repo.created)
	assert.Empty(t, renderer.enqueued)
}

func TestCertificateServiceGetOrCreateNotCompleted(t *testing.T) {
	svc := NewCertificateService(&mockCertificateRepo{}, activeEnrollmentRepo(), nil, nil, 0, nil, zap.NewNop())

	_, err := svc.GetOrCreate(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceGetOrCreateReturnsExistingAfterCancellation(t *testing.T) {
	// An issued certificate stays retrievable even if the enrollment is
	// later moved out of COMPLETED.
	existing := models.Certificate{ID: "c1", LearnerID: testLearnerID, CourseID: testCourseID, Code: "EXISTING2345"}
	repo := &mockCertificateRepo{byPair: map[string]models.Certificate{pairKey(testLearnerID, testCourseID): existing}}
	enrollments := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", LearnerID: testLearnerID, CourseID: testCourseID, Status: models.EnrollmentStatusCancelled},
	}}
	svc := NewCertificateService(repo, enrollments, nil, nil, 0, nil, zap.NewNop())

	cert, err := svc.GetOrCreate(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "EXISTING2345", cert.Code)
	assert.Nil(t, repo.created)
}

func TestCertificateServiceGetOrCreateRaceReturnsWinner(t *testing.T) {
	// The insert loses to a concurrent issuer; the service must return
	// the winner's row rather than an error.
	winner := models.Certificate{ID: "c-win", LearnerID: testLearnerID, CourseID: testCourseID, Code: "WINNER234567"}
	repo := &mockCertificateRepo{createErr: &pq.Error{Code: "23505"}, winnerAfter: &winner}
	svc := NewCertificateService(repo, completedEnrollmentRepo(), nil, nil, 0, nil, zap.NewNop())

	cert, err := svc.GetOrCreate(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "WINNER234567", cert.Code)
}

func TestCertificateServiceValidate(t *testing.T) {
	issued := time.Now().UTC().Truncate(time.Second)
	storedHash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	repo := &mockCertificateRepo{byCode: map[string]models.Certificate{
		"VALID2345678": {ID: "c1", LearnerID: testLearnerID, CourseID: testCourseID, Code: "VALID2345678", VerificationHash: storedHash, IssuedAt: issued},
	}}
	cache := &mockValidationCache{}
	svc := NewCertificateService(repo, completedEnrollmentRepo(), cache, nil, time.Minute, nil, zap.NewNop())

	validation, err := svc.Validate(context.Background(), "  valid2345678 ", storedHash)
	require.NoError(t, err)
	assert.True(t, validation.Valid)
	assert.Equal(t, testCourseID, validation.CourseID)
	assert.Equal(t, 1, cache.sets)

	// second call is served from cache even if the store forgets the row
	repo.byCode = nil
	validation, err = svc.Validate(context.Background(), "VALID2345678", storedHash)
	require.NoError(t, err)
	assert.True(t, validation.Valid)
	assert.Equal(t, 1, cache.sets)
}

func TestCertificateServiceValidateHashMismatch(t *testing.T) {
	repo := &mockCertificateRepo{byCode: map[string]models.Certificate{
		"VALID2345678": {ID: "c1", LearnerID: testLearnerID, CourseID: testCourseID, Code: "VALID2345678", VerificationHash: "expected"},
	}}
	svc := NewCertificateService(repo, completedEnrollmentRepo(), nil, nil, time.Minute, nil, zap.NewNop())

	validation, err := svc.Validate(context.Background(), "VALID2345678", "tampered")
	require.NoError(t, err)
	assert.False(t, validation.Valid)

	validation, err = svc.Validate(context.Background(), "VALID2345678", "")
	require.NoError(t, err)
	assert.False(t, validation.Valid)
}

func TestCertificateServiceValidateUnknownCode(t *testing.T) {
	svc := NewCertificateService(&mockCertificateRepo{}, completedEnrollmentRepo(), &mockValidationCache{}, nil, time.Minute, nil, zap.NewNop())

	_, err := svc.Validate(context.Background(), "UNKNOWN23456", "whatever")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceValidateEmptyCode(t *testing.T) {
	svc := NewCertificateService(&mockCertificateRepo{}, completedEnrollmentRepo(), nil, nil, time.Minute, nil, zap.NewNop())

	_, err := svc.Validate(context.Background(), "   ", "whatever")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceListByLearner(t *testing.T) {
	repo := &mockCertificateRepo{byCode: map[string]models.Certificate{
		"AAAA23456789": {ID: "c1", LearnerID: testLearnerID, Code: "AAAA23456789"},
		"BBBB23456789": {ID: "c2", LearnerID: "someone-else", Code: "BBBB23456789"},
	}}
	svc := NewCertificateService(repo, completedEnrollmentRepo(), nil, nil, 0, nil, zap.NewNop())

	certs, err := svc.ListByLearner(context.Background(), testLearnerID)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "AAAA23456789", certs[0].Code)
}
