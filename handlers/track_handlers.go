package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gtasite/api/collector"
	"gtasite/api/middleware"
)

// TrackHandlers exposes the public tracking surface the SPA calls. Every
// endpoint is fire-and-forget for the caller: bad payloads get a 400, but
// backend trouble never turns into a user-visible failure.
type TrackHandlers struct {
	Tracker *collector.Tracker
}

func NewTrackHandlers(tracker *collector.Tracker) *TrackHandlers {
	return &TrackHandlers{Tracker: tracker}
}

// requestMeta collects the per-request facts the session layer needs from
// headers rather than the JSON body.
func requestMeta(c *gin.Context, landingPage string) collector.RequestMeta {
	return collector.RequestMeta{
		IPHint:      c.ClientIP(),
		Referrer:    c.GetHeader("Referer"),
		LandingPage: landingPage,
		UserAgent:   c.GetHeader("User-Agent"),
	}
}

type initRequest struct {
	Page string `json:"page" binding:"required"`
}

// Init starts a visit. Any session left over from a previous page load
// is rotated out so the device's durable session counter increments per
// visit.
func (h *TrackHandlers) Init(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.Tracker.InitializeAnalytics(c.Request.Context(), middleware.DeviceID(c), requestMeta(c, req.Page))
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

type pageRequest struct {
	Page string `json:"page" binding:"required"`
}

func (h *TrackHandlers) PageNavigation(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.Tracker.TrackPageNavigation(c.Request.Context(), middleware.DeviceID(c), requestMeta(c, req.Page), req.Page)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

type clickRequest struct {
	ElementID  string `json:"elementId" binding:"required"`
	Page       string `json:"page" binding:"required"`
	ButtonText string `json:"buttonText"`
}

func (h *TrackHandlers) ButtonClick(c *gin.Context) {
	var req clickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.Tracker.TrackButtonClick(c.Request.Context(), middleware.DeviceID(c), requestMeta(c, req.Page), req.ElementID, req.Page, req.ButtonText)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

type formRequest struct {
	FormID string `json:"formId" binding:"required"`
	Page   string `json:"page" binding:"required"`
}

func (h *TrackHandlers) FormStart(c *gin.Context) {
	var req formRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.Tracker.TrackFormStart(c.Request.Context(), middleware.DeviceID(c), requestMeta(c, req.Page), req.FormID, req.Page)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

// FormSubmit marks the submit attempt itself. Completion is recorded
// separately by the registration flow once the submission is accepted.
func (h *TrackHandlers) FormSubmit(c *gin.Context) {
	var req formRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.Tracker.TrackFormSubmission(c.Request.Context(), middleware.DeviceID(c), requestMeta(c, req.Page), req.FormID, req.Page)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

type downloadRequest struct {
	DownloadType string `json:"downloadType" binding:"required"`
	Page         string `json:"page" binding:"required"`
}

func (h *TrackHandlers) Download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.Tracker.TrackDownloadAttempt(c.Request.Context(), middleware.DeviceID(c), requestMeta(c, req.Page), req.DownloadType, req.Page)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

type scrollRequest struct {
	Page             string `json:"page" binding:"required"`
	ScrollPercentage int    `json:"scrollPercentage" binding:"required"`
}

func (h *TrackHandlers) ScrollMilestone(c *gin.Context) {
	var req scrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.Tracker.TrackScrollMilestone(c.Request.Context(), middleware.DeviceID(c), requestMeta(c, req.Page), req.Page, req.ScrollPercentage)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

type timeRequest struct {
	Page       string `json:"page" binding:"required"`
	TimeOnPage int    `json:"timeOnPage" binding:"required"`
}

func (h *TrackHandlers) TimeMilestone(c *gin.Context) {
	var req timeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.Tracker.TrackTimeMilestone(c.Request.Context(), middleware.DeviceID(c), requestMeta(c, req.Page), req.Page, req.TimeOnPage)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}
