package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gtasite/api/collector"
	"gtasite/api/logger"
	"gtasite/api/store"
	"gtasite/api/utils"
)

// AdminHandlers serves the JWT-gated stats and debug surface: aggregate
// counters, ClickHouse rollups, per-device journeys, spam-guard state,
// and the fallback log.
type AdminHandlers struct {
	Stats         *store.StatsStore
	Events        *store.EventStore
	Devices       *store.DeviceStore
	Registrations *store.RegistrationStore
	Sessions      *collector.SessionManager
	Tracker       *collector.Tracker
	Guard         *collector.Guard
	Fallback      *collector.FallbackLog
	Log           *logger.Logger
}

func NewAdminHandlers(
	stats *store.StatsStore,
	events *store.EventStore,
	devices *store.DeviceStore,
	registrations *store.RegistrationStore,
	sessions *collector.SessionManager,
	tracker *collector.Tracker,
	guard *collector.Guard,
	fallback *collector.FallbackLog,
	log *logger.Logger,
) *AdminHandlers {
	return &AdminHandlers{
		Stats:         stats,
		Events:        events,
		Devices:       devices,
		Registrations: registrations,
		Sessions:      sessions,
		Tracker:       tracker,
		Guard:         guard,
		Fallback:      fallback,
		Log:           log.With("component", "admin"),
	}
}

// parseDate accepts the YYYY-MM-DD aggregate document key format and
// defaults to today (UTC) when omitted.
func parseDate(c *gin.Context) (string, bool) {
	date := c.Query("date")
	if date == "" {
		return time.Now().UTC().Format("2006-01-02"), true
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'date' format. Use YYYY-MM-DD"})
		return "", false
	}
	return date, true
}

// DailyStats returns the aggregate counter document for one day.
func (h *AdminHandlers) DailyStats(c *gin.Context) {
	date, ok := parseDate(c)
	if !ok {
		return
	}

	stats, err := h.Stats.GetStats(c.Request.Context(), store.DailyStatsKey(date))
	if err != nil {
		h.Log.Error("failed to read daily stats", "date", date, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve stats"})
		return
	}
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No stats recorded for this date"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HourlyStats returns the aggregate counter document for one hour.
func (h *AdminHandlers) HourlyStats(c *gin.Context) {
	date, ok := parseDate(c)
	if !ok {
		return
	}
	hour, err := strconv.Atoi(c.DefaultQuery("hour", strconv.Itoa(time.Now().UTC().Hour())))
	if err != nil || hour < 0 || hour > 23 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'hour'. Use 0-23"})
		return
	}

	stats, err := h.Stats.GetStats(c.Request.Context(), store.HourlyStatsKey(date, hour))
	if err != nil {
		h.Log.Error("failed to read hourly stats", "date", date, "hour", hour, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve stats"})
		return
	}
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No stats recorded for this hour"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// parseTimeRange handles the shared start/end query parameters, defaulting
// to the last 7 days.
func parseTimeRange(c *gin.Context) (time.Time, time.Time, bool) {
	var start, end time.Time
	var err error

	startParam := c.Query("start")
	if startParam != "" {
		start, err = time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		start = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}

	endParam := c.Query("end")
	if endParam != "" {
		end, err = time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		end = time.Now().UTC()
	}
	return start, end, true
}

// EventCounts returns time-bucketed event counts from the event log.
func (h *AdminHandlers) EventCounts(c *gin.Context) {
	interval := c.DefaultQuery("interval", "Day")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'interval'. Use Minute, Hour, Day, Week, Month, Quarter, or Year"})
		return
	}

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	results, err := h.Events.GetEventCountsOverTime(c.Request.Context(), interval, start, end, c.Query("eventType"))
	if err != nil {
		h.Log.Error("failed to get event counts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

// TopPaths returns the most-viewed page paths from the event log.
func (h *AdminHandlers) TopPaths(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	limit, err := strconv.ParseUint(c.DefaultQuery("limit", "10"), 10, 64)
	if err != nil || limit == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit'"})
		return
	}

	results, err := h.Events.GetTopNPagePaths(c.Request.Context(), start, end, limit)
	if err != nil {
		h.Log.Error("failed to get top paths", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top paths"})
		return
	}
	c.JSON(http.StatusOK, results)
}

// DeviceJourney returns the persisted device record plus its latest
// registration, if any.
func (h *AdminHandlers) DeviceJourney(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}

	device, err := h.Devices.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		h.Log.Error("failed to read device record", "deviceId", deviceID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve device record"})
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown device"})
		return
	}

	registration, err := h.Registrations.GetLatestRegistrationByDevice(c.Request.Context(), deviceID)
	if err != nil {
		h.Log.Warn("failed to read registration for device", "deviceId", deviceID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"device":       device,
		"registration": registration,
	})
}

// SpamStatus reports the rate-limit window state for a device.
func (h *AdminHandlers) SpamStatus(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}
	c.JSON(http.StatusOK, h.Guard.Status(c.Request.Context(), deviceID))
}

// ClearRateLimit lifts the submission window for a device.
func (h *AdminHandlers) ClearRateLimit(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}
	h.Guard.ClearRateLimit(c.Request.Context(), deviceID)
	c.JSON(http.StatusOK, gin.H{"message": "Rate limit cleared"})
}

// ClearSubmittedEmails wipes the duplicate-detection set for a device.
func (h *AdminHandlers) ClearSubmittedEmails(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}
	h.Guard.ClearSubmittedEmails(c.Request.Context(), deviceID)
	c.JSON(http.StatusOK, gin.H{"message": "Submitted emails cleared"})
}

// SessionDebug exposes the live in-memory session for a device: the
// current snapshot, its ordered conversion path, and the per-device
// counters the tracker keeps.
func (h *AdminHandlers) SessionDebug(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}

	sess, path, active := h.Sessions.Snapshot(deviceID)
	if !active {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":          true,
		"session":         sess,
		"conversionPath":  path,
		"timeOnSite":      h.Sessions.SecondsSinceStart(deviceID),
		"downloadCount":   h.Tracker.DownloadCount(deviceID),
		"lastTrackedPage": h.Tracker.LastTrackedPage(deviceID),
	})
}

// FallbackEntries dumps the local JSONL log of events that could not be
// written to the event store.
func (h *AdminHandlers) FallbackEntries(c *gin.Context) {
	entries := h.Fallback.Entries()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}
