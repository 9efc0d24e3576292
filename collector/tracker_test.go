package collector

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtasite/api/logger"
	"gtasite/api/models"
)

type trackerFixture struct {
	tracker  *Tracker
	sessions *SessionManager
	devices  *fakeDeviceStore
	events   *fakeEventStore
	stats    *fakeStatsStore
	fallback *FallbackLog
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	devices := newFakeDeviceStore()
	events := &fakeEventStore{}
	stats := newFakeStatsStore()
	log := logger.NewNop()
	sessions := NewSessionManager(devices, newFakeIdentity(), newFakeGeo(), log)
	fallback := NewFallbackLog(t.TempDir()+"/fallback.log", log)
	tracker := NewTracker(sessions, events, NewAggregator(stats, log), fallback, log)
	return &trackerFixture{
		tracker:  tracker,
		sessions: sessions,
		devices:  devices,
		events:   events,
		stats:    stats,
		fallback: fallback,
	}
}

func TestTrackCreatesSessionLazily(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	assert.Equal(t, 0, f.devices.upserts, "no writes before the first tracked action")

	f.tracker.TrackButtonClick(ctx, "device_1_abc", testMeta(), "cta-download", "/", "Download now")

	assert.Equal(t, 1, f.devices.upserts, "first event initializes the session")
	require.Equal(t, 1, f.events.count())

	event := f.events.events[0]
	assert.Equal(t, models.EventButtonClick, event.EventType)
	assert.Equal(t, "cta-download", event.ElementID)
	assert.True(t, strings.HasPrefix(event.EventID, "event_"))
	require.NotNil(t, event.EventData)
	require.NotNil(t, event.EventData.ButtonText)
	assert.Equal(t, "Download now", *event.EventData.ButtonText)
}

func TestTrackWithoutDeviceIDWritesNothing(t *testing.T) {
	f := newTrackerFixture(t)

	f.tracker.TrackButtonClick(context.Background(), "", testMeta(), "cta", "/", "")

	assert.Equal(t, 0, f.devices.upserts)
	assert.Equal(t, 0, f.events.count())
	assert.Len(t, f.fallback.Entries(), 1, "unidentifiable events land in the fallback log")
}

func TestTrackSequenceNumbersAreTotallyOrdered(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.TrackButtonClick(ctx, "device_1_abc", testMeta(), "a", "/", "")
	f.tracker.TrackButtonClick(ctx, "device_2_def", testMeta(), "b", "/", "")
	f.tracker.TrackButtonClick(ctx, "device_1_abc", testMeta(), "c", "/", "")

	require.Equal(t, 3, f.events.count())
	assert.Equal(t, int64(1), f.events.events[0].SequenceNumber)
	assert.Equal(t, int64(2), f.events.events[1].SequenceNumber)
	assert.Equal(t, int64(3), f.events.events[2].SequenceNumber)
}

func TestTrackFallsBackWhenEventStoreFails(t *testing.T) {
	f := newTrackerFixture(t)
	f.events.failInsert = true
	ctx := context.Background()

	f.tracker.TrackButtonClick(ctx, "device_1_abc", testMeta(), "cta", "/", "")

	entries := f.fallback.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.EventButtonClick, entries[0].EventType)
	assert.Equal(t, "cta", entries[0].ElementID)

	sess, _, ok := f.sessions.Snapshot("device_1_abc")
	require.True(t, ok)
	assert.Equal(t, 0, sess.TotalPageViews, "a failed write feeds no rollups")
}

func TestPageNavigationIsATransitionDetector(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.TrackPageNavigation(ctx, "device_1_abc", testMeta(), "/")
	assert.Equal(t, 0, f.events.count(), "first view of a visit is not tracked here")

	f.tracker.TrackPageNavigation(ctx, "device_1_abc", testMeta(), "/")
	assert.Equal(t, 0, f.events.count(), "same page again is not a transition")

	f.tracker.TrackPageNavigation(ctx, "device_1_abc", testMeta(), "/features")
	require.Equal(t, 1, f.events.count())
	assert.Equal(t, models.EventPageView, f.events.events[0].EventType)
	assert.Equal(t, "/features", f.events.events[0].Page)
	assert.Equal(t, "/features", f.tracker.LastTrackedPage("device_1_abc"))
}

func TestInitializeAnalyticsCountsVisitorPerVisit(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.InitializeAnalytics(ctx, "device_1_abc", testMeta())
	f.tracker.InitializeAnalytics(ctx, "device_1_abc", testMeta())

	date := todayUTC()
	assert.Equal(t, int64(2), f.stats.daily(date, models.StatUniqueVisitors), "each visit counts")
	assert.Equal(t, 2, f.devices.upserts, "each visit re-merges the durable record")
}

func TestInitializeAnalyticsRotatesSession(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.InitializeAnalytics(ctx, "device_1_abc", testMeta())
	first, _, ok := f.sessions.Snapshot("device_1_abc")
	require.True(t, ok)

	f.tracker.TrackPageNavigation(ctx, "device_1_abc", testMeta(), "/")
	f.tracker.TrackPageNavigation(ctx, "device_1_abc", testMeta(), "/features")
	f.tracker.TrackDownloadAttempt(ctx, "device_1_abc", testMeta(), models.DownloadZipManual, "/download")

	f.tracker.InitializeAnalytics(ctx, "device_1_abc", testMeta())
	second, path, ok := f.sessions.Snapshot("device_1_abc")
	require.True(t, ok)

	assert.NotEqual(t, first.SessionID, second.SessionID, "returning visitor gets a fresh session")
	assert.Equal(t, 2, second.SessionCount)
	assert.Equal(t, 0, second.TotalPageViews)
	assert.Equal(t, []string{"/"}, path)
	assert.Empty(t, f.tracker.LastTrackedPage("device_1_abc"), "transition detector resets with the visit")
	assert.Zero(t, f.tracker.DownloadCount("device_1_abc"), "download counter resets with the visit")
}

func TestEventRedeliverySameIDCollapses(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	event := models.Event{
		EventID:   "event_1700000000000_a1b2c3d4e",
		EventType: models.EventPageView,
		Page:      "/",
	}
	require.NoError(t, f.events.InsertEvents(ctx, []models.Event{event}))

	event.Page = "/features"
	require.NoError(t, f.events.InsertEvents(ctx, []models.Event{event}))

	require.Equal(t, 1, f.events.count(), "same event id collapses to one logical record")
	assert.Equal(t, "/features", f.events.events[0].Page, "the overwrite wins")
}

func TestDownloadAttemptCountsPerDevice(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.TrackDownloadAttempt(ctx, "device_1_abc", testMeta(), models.DownloadFirefoxStore, "/download")
	f.tracker.TrackDownloadAttempt(ctx, "device_1_abc", testMeta(), models.DownloadZipManual, "/download")
	f.tracker.TrackDownloadAttempt(ctx, "device_2_def", testMeta(), models.DownloadZipManual, "/download")

	assert.Equal(t, 2, f.tracker.DownloadCount("device_1_abc"))
	assert.Equal(t, 1, f.tracker.DownloadCount("device_2_def"))

	require.Equal(t, 3, f.events.count())
	assert.Equal(t, "download_"+models.DownloadFirefoxStore, f.events.events[0].ElementID)

	date := todayUTC()
	assert.Equal(t, int64(1), f.stats.daily(date, models.StatFirefoxDownloads))
	assert.Equal(t, int64(2), f.stats.daily(date, models.StatZipDownloads))
}

func TestMilestoneEventsCarryTheirPayload(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.tracker.TrackScrollMilestone(ctx, "device_1_abc", testMeta(), "/features", 75)
	f.tracker.TrackTimeMilestone(ctx, "device_1_abc", testMeta(), "/features", 60)

	require.Equal(t, 2, f.events.count())

	scroll := f.events.events[0]
	assert.Equal(t, models.EventScrollMilestone, scroll.EventType)
	assert.Equal(t, "scroll_75", scroll.ElementID)
	require.NotNil(t, scroll.EventData.ScrollPercentage)
	assert.Equal(t, 75, *scroll.EventData.ScrollPercentage)

	timeEvent := f.events.events[1]
	assert.Equal(t, models.EventTimeMilestone, timeEvent.EventType)
	assert.Equal(t, "time_60", timeEvent.ElementID)
	require.NotNil(t, timeEvent.EventData.TimeOnPage)
	assert.Equal(t, 60, *timeEvent.EventData.TimeOnPage)
}

func TestFormSubmissionIsRecordedAsClick(t *testing.T) {
	f := newTrackerFixture(t)

	f.tracker.TrackFormSubmission(context.Background(), "device_1_abc", testMeta(), "registration-form", "/register")

	require.Equal(t, 1, f.events.count())
	event := f.events.events[0]
	assert.Equal(t, models.EventButtonClick, event.EventType)
	assert.Equal(t, "form_submit_registration-form", event.ElementID)
}
