package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nextlevel-elearning/progress-api/internal/service"
	"github.com/nextlevel-elearning/progress-api/pkg/response"
)

// CertificateHandler exposes certificate endpoints, including the
// public validation route.
type CertificateHandler struct {
	certificates *service.CertificateService
	render       *service.RenderService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates *service.CertificateService, render *service.RenderService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates, render: render}
}

type downloadResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue godoc
// @Summary Issue (or return) the certificate for a completed enrollment
// @Tags Certificates
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/certificate [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	cert, err := h.certificates.GetOrCreate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// ListByLearner godoc
// @Summary List a learner's certificates
// @Tags Certificates
// @Produce json
// @Param learnerId path string true "Learner ID"
// @Success 200 {object} response.Envelope
// @Router /learners/{learnerId}/certificates [get]
func (h *CertificateHandler) ListByLearner(c *gin.Context) {
	certs, err := h.certificates.ListByLearner(c.Request.Context(), c.Param("learnerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, certs, nil)
}

// Get godoc
// @Summary Get a certificate by code
// @Tags Certificates
// @Produce json
// @Param code path string true "Certificate code"
// @Success 200 {object} response.Envelope
// @Router /certificates/{code} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	cert, err := h.certificates.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Validate godoc
// @Summary Validate a certificate's authenticity
// @Tags Certificates
// @Produce json
// @Param code query string true "Certificate code"
// @Param hash query string true "Verification hash"
// @Success 200 {object} response.Envelope
// @Router /certificates/validate [get]
func (h *CertificateHandler) Validate(c *gin.Context) {
	validation, err := h.certificates.Validate(c.Request.Context(), c.Query("code"), c.Query("hash"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, validation, nil)
}

// Download godoc
// @Summary Issue a short-lived signed download URL for the certificate PDF
// @Tags Certificates
// @Produce json
// @Param code path string true "Certificate code"
// @Success 200 {object} response.Envelope
// @Router /certificates/{code}/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	token, expiresAt, err := h.render.SignedDownload(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	resp := downloadResponse{
		URL:       fmt.Sprintf("%s/files?token=%s", basePathOf(c), url.QueryEscape(token)),
		Token:     token,
		ExpiresAt: expiresAt,
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// File godoc
// @Summary Stream a certificate PDF for a valid signed token
// @Tags Certificates
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /certificates/files [get]
func (h *CertificateHandler) File(c *gin.Context) {
	filePath, filename, err := h.render.ResolveDownload(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(filePath, filename)
}

// basePathOf strips the trailing /{code}/download segments so the file
// URL lands back under the certificates group.
func basePathOf(c *gin.Context) string {
	return path.Dir(path.Dir(c.Request.URL.Path))
}
