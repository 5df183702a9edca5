package service

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nextlevel-elearning/progress-api/internal/models"
	appErrors "github.com/nextlevel-elearning/progress-api/pkg/errors"
	"github.com/nextlevel-elearning/progress-api/pkg/jobs"
	"github.com/nextlevel-elearning/progress-api/pkg/storage"
)

type mockRenderStore struct {
	certs       map[string]models.Certificate
	storageKeys map[string]string
}

func (m *mockRenderStore) FindByCode(ctx context.Context, code string) (*models.Certificate, error) {
	if c, ok := m.certs[code]; ok {
		if key, set := m.storageKeys[c.ID]; set {
			c.StorageKey = &key
		}
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRenderStore) SetStorageKey(ctx context.Context, id, storageKey string) error {
	if m.storageKeys == nil {
		m.storageKeys = make(map[string]string)
	}
	m.storageKeys[id] = storageKey
	return nil
}

func newTestRenderService(t *testing.T, repo *mockRenderStore) *RenderService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	catalog := &mockCatalog{
		courses: map[string]*models.Course{
			testCourseID: {ID: testCourseID, Title: "Go Fundamentals", InstructorID: "instr-1", EstimatedHours: 20},
		},
		names: map[string]string{
			testLearnerID: "Maria Souza",
			"instr-1":     "Carlos Lima",
		},
	}
	return NewRenderService(repo, catalog, store, signer, nil, RenderOptions{
		Issuer:            "NextLevel E-Learning",
		Locality:          "Sao Paulo",
		ValidationBaseURL: "https://validar.nextlevel.com.br/cert",
	}, zap.NewNop())
}

func testCert() models.Certificate {
	return models.Certificate{
		ID:               "cert-1",
		LearnerID:        testLearnerID,
		CourseID:         testCourseID,
		Code:             "ABCDEFGH2345",
		VerificationHash: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		IssuedAt:         time.Now().UTC(),
	}
}

func TestRenderServiceSignedDownloadRendersOnDemand(t *testing.T) {
	repo := &mockRenderStore{certs: map[string]models.Certificate{"ABCDEFGH2345": testCert()}}
	svc := newTestRenderService(t, repo)

	token, expiresAt, err := svc.SignedDownload(context.Background(), "abcdefgh2345")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.Equal(t, "certificates/ABCDEFGH2345.pdf", repo.storageKeys["cert-1"])

	path, filename, err := svc.ResolveDownload(token)
	require.NoError(t, err)
	assert.Equal(t, "certificate-ABCDEFGH2345.pdf", filename)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, len(data) > 0)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestRenderServiceSignedDownloadUnknownCode(t *testing.T) {
	svc := newTestRenderService(t, &mockRenderStore{})

	_, _, err := svc.SignedDownload(context.Background(), "UNKNOWN23456")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRenderServiceResolveDownloadRejectsTamperedToken(t *testing.T) {
	repo := &mockRenderStore{certs: map[string]models.Certificate{"ABCDEFGH2345": testCert()}}
	svc := newTestRenderService(t, repo)

	token, _, err := svc.SignedDownload(context.Background(), "ABCDEFGH2345")
	require.NoError(t, err)

	_, _, err = svc.ResolveDownload(token + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRenderServiceHandleRenderJob(t *testing.T) {
	repo := &mockRenderStore{certs: map[string]models.Certificate{"ABCDEFGH2345": testCert()}}
	svc := newTestRenderService(t, repo)

	err := svc.handleRenderJob(context.Background(), jobs.Job{ID: "cert-1", Type: "certificate.render", Payload: "ABCDEFGH2345"})
	require.NoError(t, err)
	assert.Equal(t, "certificates/ABCDEFGH2345.pdf", repo.storageKeys["cert-1"])

	// idempotent: a second run keeps the same key and does not error
	require.NoError(t, svc.handleRenderJob(context.Background(), jobs.Job{Payload: "ABCDEFGH2345"}))
}
