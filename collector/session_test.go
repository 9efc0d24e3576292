package collector

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtasite/api/logger"
	"gtasite/api/models"
)

func newTestSessionManager(t *testing.T) (*SessionManager, *fakeDeviceStore, *fakeIdentity, *fakeGeo) {
	t.Helper()
	devices := newFakeDeviceStore()
	identity := newFakeIdentity()
	geoFake := newFakeGeo()
	m := NewSessionManager(devices, identity, geoFake, logger.NewNop())
	return m, devices, identity, geoFake
}

func testMeta() RequestMeta {
	return RequestMeta{
		IPHint:      "203.0.113.7",
		Referrer:    "https://search.example.com/results",
		LandingPage: "/",
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
	}
}

func TestEnsureSessionRequiresDeviceID(t *testing.T) {
	m, devices, _, _ := newTestSessionManager(t)

	_, err := m.EnsureSession(context.Background(), "", testMeta())
	require.Error(t, err)
	assert.Equal(t, 0, devices.upserts, "no durable write without a device id")
}

func TestEnsureSessionCreatesOnce(t *testing.T) {
	m, devices, _, geoFake := newTestSessionManager(t)

	first, err := m.EnsureSession(context.Background(), "device_1_abc", testMeta())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "session_"))

	second, err := m.EnsureSession(context.Background(), "device_1_abc", testMeta())
	require.NoError(t, err)
	assert.Equal(t, first, second, "same visit reuses the session")
	assert.Equal(t, 1, devices.upserts, "exactly one durable init per session")
	assert.Equal(t, 1, geoFake.calls, "geolocation resolves once per session")
}

func TestEnsureSessionCapturesContext(t *testing.T) {
	m, _, identity, _ := newTestSessionManager(t)
	identity.emails["device_1_abc"] = "known@example.com"

	_, err := m.EnsureSession(context.Background(), "device_1_abc", testMeta())
	require.NoError(t, err)

	sess, path, ok := m.Snapshot("device_1_abc")
	require.True(t, ok)
	assert.Equal(t, "203.0.113.7", sess.IPAddress)
	require.NotNil(t, sess.IPLocation)
	assert.Equal(t, "Germany", sess.IPLocation.Country)
	assert.Equal(t, "Chrome", sess.Device.Browser)
	assert.Equal(t, "Windows", sess.Device.Platform)
	assert.False(t, sess.Device.IsMobile)
	assert.Equal(t, "known@example.com", sess.UserEmail, "stored correlation hydrates the session")
	assert.Equal(t, []string{"/"}, path, "landing page opens the conversion path")
}

func TestEnsureSessionDefaultsReferrerToDirect(t *testing.T) {
	m, _, _, _ := newTestSessionManager(t)

	meta := testMeta()
	meta.Referrer = ""
	_, err := m.EnsureSession(context.Background(), "device_1_abc", meta)
	require.NoError(t, err)

	sess, _, ok := m.Snapshot("device_1_abc")
	require.True(t, ok)
	assert.Equal(t, "direct", sess.Referrer)
}

func TestBeginVisitRotatesSession(t *testing.T) {
	m, devices, _, _ := newTestSessionManager(t)
	ctx := context.Background()

	first, err := m.EnsureSession(ctx, "device_1_abc", testMeta())
	require.NoError(t, err)
	m.RecordActivity(ctx, "device_1_abc", models.EventPageView, "/features")

	second, err := m.BeginVisit(ctx, "device_1_abc", testMeta())
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "a new visit gets a new session id")

	sess, path, ok := m.Snapshot("device_1_abc")
	require.True(t, ok)
	assert.Equal(t, second, sess.SessionID)
	assert.Equal(t, 2, sess.SessionCount, "durable counter increments per visit")
	assert.Equal(t, 0, sess.TotalPageViews, "visit counters start from zero")
	assert.Equal(t, []string{"/"}, path, "conversion path restarts at the landing page")
	assert.Equal(t, 2, devices.upserts)
}

func TestBeginVisitRequiresDeviceID(t *testing.T) {
	m, devices, _, _ := newTestSessionManager(t)

	_, err := m.BeginVisit(context.Background(), "", testMeta())
	require.Error(t, err)
	assert.Equal(t, 0, devices.upserts)
}

func TestRecordActivityDeduplicatesPath(t *testing.T) {
	m, _, _, _ := newTestSessionManager(t)
	ctx := context.Background()
	_, err := m.EnsureSession(ctx, "device_1_abc", testMeta())
	require.NoError(t, err)

	m.RecordActivity(ctx, "device_1_abc", models.EventPageView, "/features")
	m.RecordActivity(ctx, "device_1_abc", models.EventPageView, "/download")
	m.RecordActivity(ctx, "device_1_abc", models.EventPageView, "/features")

	sess, path, ok := m.Snapshot("device_1_abc")
	require.True(t, ok)
	assert.Equal(t, []string{"/", "/features", "/download"}, path,
		"path keeps first-seen order with duplicates dropped")
	assert.Equal(t, 3, sess.TotalPageViews, "page view counter still counts every view")
}

func TestRecordActivityConversionIsMonotonic(t *testing.T) {
	m, _, _, _ := newTestSessionManager(t)
	ctx := context.Background()
	_, err := m.EnsureSession(ctx, "device_1_abc", testMeta())
	require.NoError(t, err)

	m.RecordActivity(ctx, "device_1_abc", models.EventFormStart, "/register")
	sess, _, _ := m.Snapshot("device_1_abc")
	assert.False(t, sess.IsConverted, "form start alone does not convert")

	m.RecordActivity(ctx, "device_1_abc", models.EventFormComplete, "/register")
	sess, _, _ = m.Snapshot("device_1_abc")
	assert.True(t, sess.IsConverted)

	m.RecordActivity(ctx, "device_1_abc", models.EventPageView, "/thanks")
	sess, _, _ = m.Snapshot("device_1_abc")
	assert.True(t, sess.IsConverted, "conversion never flips back")

	assert.Equal(t, []string{models.EventFormStart, models.EventFormComplete}, sess.ConversionEvents,
		"conversion events are a deduplicated ordered set")
}

func TestRecordActivityWithoutSessionIsNoop(t *testing.T) {
	m, devices, _, _ := newTestSessionManager(t)

	m.RecordActivity(context.Background(), "device_unseen", models.EventPageView, "/")
	assert.Equal(t, 0, devices.upserts)
	assert.Equal(t, 0, devices.activities)
}

func TestCorrelateAttachesIdentity(t *testing.T) {
	m, devices, _, _ := newTestSessionManager(t)
	ctx := context.Background()
	_, err := m.EnsureSession(ctx, "device_1_abc", testMeta())
	require.NoError(t, err)

	m.Correlate(ctx, "device_1_abc", "new@example.com", "device_1_abc_1700000000000")

	sess, _, ok := m.Snapshot("device_1_abc")
	require.True(t, ok)
	assert.Equal(t, "new@example.com", sess.UserEmail)
	assert.Equal(t, "device_1_abc_1700000000000", sess.UserID)
	assert.Equal(t, "new@example.com", devices.records["device_1_abc"].UserEmail,
		"correlation reaches the durable record")
}

func TestDurableWriteFailureDoesNotBlockSession(t *testing.T) {
	m, devices, _, _ := newTestSessionManager(t)
	devices.failUpsert = true

	sessionID, err := m.EnsureSession(context.Background(), "device_1_abc", testMeta())
	require.NoError(t, err, "storage trouble never surfaces to tracking")
	assert.NotEmpty(t, sessionID)

	_, _, ok := m.Snapshot("device_1_abc")
	assert.True(t, ok, "in-memory session exists despite the failed write")
}

func TestSecondsSinceStart(t *testing.T) {
	m, _, _, _ := newTestSessionManager(t)

	base := time.Now()
	m.now = func() time.Time { return base }
	_, err := m.EnsureSession(context.Background(), "device_1_abc", testMeta())
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(73 * time.Second) }
	assert.Equal(t, 73, m.SecondsSinceStart("device_1_abc"))
	assert.Equal(t, 0, m.SecondsSinceStart("device_unseen"))
}
