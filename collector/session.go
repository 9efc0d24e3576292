package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gtasite/api/logger"
	"gtasite/api/models"
	"gtasite/api/utils"
)

// RequestMeta is what the HTTP layer knows about the visit that the
// session needs: the client address hint and the browser-reported
// context captured on the first meaningful interaction.
type RequestMeta struct {
	IPHint      string
	Referrer    string
	LandingPage string
	UserAgent   string
}

type sessionState struct {
	session        *models.Session
	startTime      time.Time
	conversionPath []string
}

// SessionManager owns the in-memory sessions, one per device. It is the
// explicit session-context object: nothing else in the package holds
// session state. The durable record under each session is merged, never
// replaced, so history survives concurrent tabs and repeat visits.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*sessionState

	devices  DeviceStore
	identity Identity
	geo      GeoResolver
	log      *logger.Logger
	now      func() time.Time
}

func NewSessionManager(devices DeviceStore, identity Identity, geoResolver GeoResolver, log *logger.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*sessionState),
		devices:  devices,
		identity: identity,
		geo:      geoResolver,
		log:      log.With("component", "sessions"),
		now:      time.Now,
	}
}

// EnsureSession returns the device's current session id, creating the
// session on first call. Creation resolves geolocation best-effort,
// captures the request context, and upserts the durable device record:
// a merge write whose session counter is incremented atomically, so
// repeated initialization never overwrites history.
func (m *SessionManager) EnsureSession(ctx context.Context, deviceID string, meta RequestMeta) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("device id is required for all session operations")
	}

	m.mu.Lock()
	if st, ok := m.sessions[deviceID]; ok {
		m.mu.Unlock()
		return st.session.SessionID, nil
	}
	m.mu.Unlock()

	// Resolve outside the lock; provider calls can take seconds.
	loc := m.geo.Resolve(ctx, meta.IPHint)

	referrer := meta.Referrer
	if referrer == "" {
		referrer = "direct"
	}

	now := m.now()
	sess := &models.Session{
		DeviceID:         deviceID,
		SessionID:        "session_" + uuid.New().String(),
		Timestamp:        now,
		IPAddress:        loc.IPAddress,
		IPLocation:       &loc.Location,
		Device:           utils.DeviceInfoFromUserAgent(meta.UserAgent),
		Referrer:         referrer,
		LandingPage:      meta.LandingPage,
		TotalPageViews:   0,
		TotalTimeSpent:   0,
		ConversionEvents: []string{},
		IsConverted:      false,
		SessionCount:     1,
		FirstVisit:       now,
		LastVisit:        now,
	}
	if email, ok := m.identity.GetStoredEmail(ctx, deviceID); ok {
		sess.UserEmail = email
	}

	st := &sessionState{
		session:        sess,
		startTime:      now,
		conversionPath: []string{meta.LandingPage},
	}

	m.mu.Lock()
	if existing, ok := m.sessions[deviceID]; ok {
		// Another request created the session while we were resolving.
		m.mu.Unlock()
		return existing.session.SessionID, nil
	}
	m.sessions[deviceID] = st
	m.mu.Unlock()

	if err := m.devices.UpsertSession(ctx, sess); err != nil {
		m.log.Warn("failed to initialize durable session record", "deviceId", deviceID, "error", err)
	}

	return sess.SessionID, nil
}

// BeginVisit rotates the device onto a fresh session. The SPA's init
// call is the page-load signal: any session left over from a previous
// visit is discarded, so the durable record's session counter increments
// again and the new visit's counters start from zero.
func (m *SessionManager) BeginVisit(ctx context.Context, deviceID string, meta RequestMeta) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("device id is required for all session operations")
	}

	m.mu.Lock()
	delete(m.sessions, deviceID)
	m.mu.Unlock()

	return m.EnsureSession(ctx, deviceID, meta)
}

// RecordActivity updates the in-memory counters for one tracked event
// and pushes the changed subset to the durable record. No-op when the
// device has no session yet.
func (m *SessionManager) RecordActivity(ctx context.Context, deviceID, eventType, page string) {
	m.mu.Lock()
	st, ok := m.sessions[deviceID]
	if !ok {
		m.mu.Unlock()
		return
	}

	sess := st.session
	sess.TotalTimeSpent = int(m.now().Sub(st.startTime) / time.Second)

	if page != "" && !contains(st.conversionPath, page) {
		st.conversionPath = append(st.conversionPath, page)
	}

	switch eventType {
	case models.EventFormStart, models.EventFormComplete, models.EventDownload:
		if !sess.HasConversionEvent(eventType) {
			sess.ConversionEvents = append(sess.ConversionEvents, eventType)
		}
		if eventType == models.EventFormComplete {
			sess.IsConverted = true
		}
	}

	if eventType == models.EventPageView {
		sess.TotalPageViews++
	}

	snapshot := *sess
	m.mu.Unlock()

	if err := m.devices.UpdateActivity(ctx, &snapshot); err != nil {
		m.log.Warn("failed to push session activity", "deviceId", deviceID, "error", err)
	}
}

// Snapshot returns a copy of the device's in-memory session and its
// conversion path, or ok=false when no session exists.
func (m *SessionManager) Snapshot(deviceID string) (models.Session, []string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[deviceID]
	if !ok {
		return models.Session{}, nil, false
	}
	path := make([]string, len(st.conversionPath))
	copy(path, st.conversionPath)
	return *st.session, path, true
}

// SecondsSinceStart reports elapsed session time; zero without a session.
func (m *SessionManager) SecondsSinceStart(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[deviceID]
	if !ok {
		return 0
	}
	return int(m.now().Sub(st.startTime) / time.Second)
}

// Correlate attaches a registered identity to the session, in memory and
// in the durable record.
func (m *SessionManager) Correlate(ctx context.Context, deviceID, email, userID string) {
	m.mu.Lock()
	if st, ok := m.sessions[deviceID]; ok {
		st.session.UserEmail = email
		st.session.UserID = userID
	}
	m.mu.Unlock()

	if err := m.devices.SetUserEmail(ctx, deviceID, email); err != nil {
		m.log.Warn("failed to correlate email into device record", "deviceId", deviceID, "error", err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
