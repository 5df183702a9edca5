package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nextlevel-elearning/progress-api/internal/service"
	"github.com/nextlevel-elearning/progress-api/pkg/response"
)

// ProgressHandler exposes module progress endpoints.
type ProgressHandler struct {
	progress *service.ProgressService
}

// NewProgressHandler constructs ProgressHandler.
func NewProgressHandler(progress *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// StartModule godoc
// @Summary Mark a module as started
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param moduleId path string true "Module ID"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{id}/modules/{moduleId}/start [post]
func (h *ProgressHandler) StartModule(c *gin.Context) {
	progress, err := h.progress.StartModule(c.Request.Context(), c.Param("id"), c.Param("moduleId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, progress)
}

// CompleteModule godoc
// @Summary Mark a module as completed and recompute the enrollment
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param moduleId path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/modules/{moduleId}/complete [post]
func (h *ProgressHandler) CompleteModule(c *gin.Context) {
	completion, err := h.progress.CompleteModule(c.Request.Context(), c.Param("id"), c.Param("moduleId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, completion, nil)
}

type unlockedResponse struct {
	Unlocked bool `json:"unlocked"`
}

// Detail godoc
// @Summary Composite progress view for an enrollment
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/progress [get]
func (h *ProgressHandler) Detail(c *gin.Context) {
	detail, err := h.progress.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// NextModule godoc
// @Summary First not-yet-completed module in catalog order
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/next-module [get]
func (h *ProgressHandler) NextModule(c *gin.Context) {
	// Data is null once every module is completed.
	next, err := h.progress.NextModule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if next == nil {
		response.JSON(c, http.StatusOK, nil, nil)
		return
	}
	response.JSON(c, http.StatusOK, next, nil)
}

// ModuleUnlocked godoc
// @Summary Whether prior required modules allow access to this one
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param moduleId path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/modules/{moduleId}/unlocked [get]
func (h *ProgressHandler) ModuleUnlocked(c *gin.Context) {
	unlocked, err := h.progress.ModuleUnlocked(c.Request.Context(), c.Param("id"), c.Param("moduleId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, unlockedResponse{Unlocked: unlocked}, nil)
}

// ListModules godoc
// @Summary List an enrollment's modules with progress
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/modules [get]
func (h *ProgressHandler) ListModules(c *gin.Context) {
	views, err := h.progress.ListModules(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}
