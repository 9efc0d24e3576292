package collector

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gtasite/api/logger"
	"gtasite/api/models"
	"gtasite/api/utils"
)

// Tracker records interaction events. Every entry point is best-effort:
// nothing here ever returns an error, and a failed backend write lands
// in the local fallback log instead.
//
// Sessions are created lazily, here and only here (and by the
// registration guard through the same manager): a passive page load that
// never calls a tracking entry point produces zero backend writes.
type Tracker struct {
	sessions   *SessionManager
	events     EventStore
	aggregates *Aggregator
	fallback   *FallbackLog
	log        *logger.Logger

	// seq gives a total order of events within one collector process.
	seq atomic.Int64

	mu        sync.Mutex
	lastPages map[string]string
	downloads map[string]int
}

func NewTracker(sessions *SessionManager, events EventStore, aggregates *Aggregator, fallback *FallbackLog, log *logger.Logger) *Tracker {
	return &Tracker{
		sessions:   sessions,
		events:     events,
		aggregates: aggregates,
		fallback:   fallback,
		log:        log.With("component", "tracker"),
		lastPages:  make(map[string]string),
		downloads:  make(map[string]int),
	}
}

// Track is the universal entry point. It ensures a session, assembles
// the immutable event record, writes it keyed by its own id, then feeds
// the session rollups and the aggregate counters.
func (t *Tracker) Track(ctx context.Context, deviceID string, meta RequestMeta, eventType, page, elementID string, data *models.EventData) {
	_, _, hadSession := t.sessions.Snapshot(deviceID)
	sessionID, err := t.sessions.EnsureSession(ctx, deviceID, meta)
	if err != nil {
		t.log.Warn("failed to ensure session for event", "deviceId", deviceID, "eventType", eventType, "error", err)
		t.fallback.Append(eventType, page, elementID, data)
		return
	}

	event := models.Event{
		DeviceID:       deviceID,
		SessionID:      sessionID,
		EventID:        utils.NewEventID(),
		Timestamp:      time.Now().UTC(),
		EventType:      eventType,
		Page:           page,
		ElementID:      elementID,
		EventData:      data,
		SequenceNumber: t.seq.Add(1),
	}

	sess, _, ok := t.sessions.Snapshot(deviceID)
	if ok && sess.UserID != "" {
		event.UserID = sess.UserID
	}

	if err := t.events.InsertEvents(ctx, []models.Event{event}); err != nil {
		t.log.Warn("failed to write event, logging locally", "eventId", event.EventID, "error", err)
		t.fallback.Append(eventType, page, elementID, data)
		return
	}

	t.sessions.RecordActivity(ctx, deviceID, eventType, page)

	if !hadSession {
		t.aggregates.ApplySessionStart(ctx)
	}
	snapshot, _, _ := t.sessions.Snapshot(deviceID)
	t.aggregates.ApplyEvent(ctx, eventType, page, data, &snapshot)
}

// InitializeAnalytics starts a visit; the SPA calls it once per page
// load. A session left over from a previous visit is rotated out, and
// the per-visit tracker state for the device resets with it.
func (t *Tracker) InitializeAnalytics(ctx context.Context, deviceID string, meta RequestMeta) {
	if _, err := t.sessions.BeginVisit(ctx, deviceID, meta); err != nil {
		t.log.Warn("failed to initialize analytics", "deviceId", deviceID, "error", err)
		return
	}

	t.mu.Lock()
	delete(t.lastPages, deviceID)
	delete(t.downloads, deviceID)
	t.mu.Unlock()

	t.aggregates.ApplySessionStart(ctx)
}

// TrackPageNavigation is a transition detector: it fires a page_view
// only when the last-seen page actually changes, so the first page view
// of a visit is intentionally not tracked through this path.
func (t *Tracker) TrackPageNavigation(ctx context.Context, deviceID string, meta RequestMeta, newPage string) {
	t.mu.Lock()
	last := t.lastPages[deviceID]
	t.lastPages[deviceID] = newPage
	t.mu.Unlock()

	if last != "" && last != newPage {
		t.Track(ctx, deviceID, meta, models.EventPageView, newPage, "", nil)
	}
}

func (t *Tracker) TrackButtonClick(ctx context.Context, deviceID string, meta RequestMeta, elementID, page, buttonText string) {
	var data *models.EventData
	if buttonText != "" {
		data = &models.EventData{ButtonText: &buttonText}
	}
	t.Track(ctx, deviceID, meta, models.EventButtonClick, page, elementID, data)
}

func (t *Tracker) TrackFormStart(ctx context.Context, deviceID string, meta RequestMeta, formID, page string) {
	t.Track(ctx, deviceID, meta, models.EventFormStart, page, formID, nil)
}

// TrackFormSubmission records the submit interaction itself as a button
// click; the qualifying form_complete event is fired by the registration
// guard once the submission actually persists.
func (t *Tracker) TrackFormSubmission(ctx context.Context, deviceID string, meta RequestMeta, formID, page string) {
	t.TrackButtonClick(ctx, deviceID, meta, "form_submit_"+formID, page, "")
}

func (t *Tracker) TrackFormComplete(ctx context.Context, deviceID string, meta RequestMeta, formID, page string) {
	t.Track(ctx, deviceID, meta, models.EventFormComplete, page, formID, nil)
}

func (t *Tracker) TrackDownloadAttempt(ctx context.Context, deviceID string, meta RequestMeta, downloadType, page string) {
	t.mu.Lock()
	t.downloads[deviceID]++
	count := t.downloads[deviceID]
	t.mu.Unlock()
	t.log.Info("download attempt", "deviceId", deviceID, "count", count, "type", downloadType)

	data := &models.EventData{DownloadType: &downloadType}
	t.Track(ctx, deviceID, meta, models.EventDownload, page, "download_"+downloadType, data)
}

func (t *Tracker) TrackScrollMilestone(ctx context.Context, deviceID string, meta RequestMeta, page string, scrollPercentage int) {
	data := &models.EventData{ScrollPercentage: &scrollPercentage}
	t.Track(ctx, deviceID, meta, models.EventScrollMilestone, page, "scroll_"+strconv.Itoa(scrollPercentage), data)
}

func (t *Tracker) TrackTimeMilestone(ctx context.Context, deviceID string, meta RequestMeta, page string, timeOnPage int) {
	data := &models.EventData{TimeOnPage: &timeOnPage}
	t.Track(ctx, deviceID, meta, models.EventTimeMilestone, page, "time_"+strconv.Itoa(timeOnPage), data)
}

// DownloadCount reports how many download attempts this device has made
// in the current collector process.
func (t *Tracker) DownloadCount(deviceID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloads[deviceID]
}

// LastTrackedPage reports the transition detector's last-seen page.
func (t *Tracker) LastTrackedPage(deviceID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastPages[deviceID]
}
