package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gtasite/api/collector"
	"gtasite/api/middleware"
	"gtasite/api/models"
)

// RegistrationHandlers wires the lead-capture form and the download
// permission checks the SPA performs.
type RegistrationHandlers struct {
	Guard *collector.Guard
}

func NewRegistrationHandlers(guard *collector.Guard) *RegistrationHandlers {
	return &RegistrationHandlers{Guard: guard}
}

type registerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Occupation string `json:"occupation"`
	UseCase    string `json:"useCase"`
	SourcePage string `json:"sourcePage"`
}

// Register runs one submission through the spam guard. Validation and
// rate-limit failures come back verbatim as user-facing messages; any
// backend failure is masked behind a single generic message.
func (h *RegistrationHandlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	sourcePage := req.SourcePage
	if sourcePage == "" {
		sourcePage = "direct"
	}

	form := models.RegistrationRequest{
		Name:       req.Name,
		Email:      req.Email,
		Occupation: req.Occupation,
		UseCase:    req.UseCase,
	}

	registrationID, err := h.Guard.Submit(
		c.Request.Context(),
		middleware.DeviceID(c),
		sourcePage,
		requestMeta(c, sourcePage),
		form,
	)
	switch {
	case errors.Is(err, collector.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	case errors.Is(err, collector.ErrInvalidEmail), errors.Is(err, collector.ErrMissingFields):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": collector.ErrSubmitFailed.Error()})
		return
	}

	if registrationID == collector.AlreadyRegistered {
		c.JSON(http.StatusOK, gin.H{
			"status":        collector.AlreadyRegistered,
			"hasPermission": true,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"registrationId": registrationID,
		"hasPermission":  true,
	})
}

// Permission reports whether this device has earned the download.
func (h *RegistrationHandlers) Permission(c *gin.Context) {
	hasPermission := h.Guard.HasDownloadPermission(c.Request.Context(), middleware.DeviceID(c))
	c.JSON(http.StatusOK, gin.H{"hasPermission": hasPermission})
}

// RegistrationInfo returns the correlated email for pre-filling the form
// on a return visit.
func (h *RegistrationHandlers) RegistrationInfo(c *gin.Context) {
	email, deviceID := h.Guard.StoredRegistrationInfo(c.Request.Context(), middleware.DeviceID(c))
	c.JSON(http.StatusOK, gin.H{
		"email":    email,
		"deviceId": deviceID,
	})
}
