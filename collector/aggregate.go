package collector

import (
	"context"
	"net/url"
	"time"

	"gtasite/api/logger"
	"gtasite/api/models"
)

// Aggregator maintains the daily and hourly denormalized counters. All
// work is best-effort: a failed update is logged and dropped, never
// surfaced, because dashboards tolerate gaps but tracking must not block.
type Aggregator struct {
	stats StatsStore
	log   *logger.Logger
	now   func() time.Time
}

func NewAggregator(stats StatsStore, log *logger.Logger) *Aggregator {
	return &Aggregator{stats: stats, log: log.With("component", "aggregator"), now: time.Now}
}

// ApplyEvent classifies one event into counter increments and applies
// them to the current UTC day and hour buckets.
func (a *Aggregator) ApplyEvent(ctx context.Context, eventType, page string, data *models.EventData, sess *models.Session) {
	a.apply(ctx, BuildDelta(eventType, page, data, sess))
}

// ApplySessionStart counts one new visitor in the current buckets.
func (a *Aggregator) ApplySessionStart(ctx context.Context) {
	a.apply(ctx, map[string]int64{models.StatUniqueVisitors: 1})
}

func (a *Aggregator) apply(ctx context.Context, delta map[string]int64) {
	now := a.now().UTC()
	date := now.Format("2006-01-02")
	hour := now.Hour()

	if err := a.stats.EnsureDocs(ctx, date, hour); err != nil {
		a.log.Warn("failed to ensure stats documents", "date", date, "hour", hour, "error", err)
		return
	}

	if err := a.stats.ApplyDelta(ctx, date, hour, delta); err != nil {
		a.log.Warn("failed to apply stats delta", "date", date, "hour", hour, "error", err)
	}
}

// BuildDelta maps one event onto the counter increments it produces.
// Every value is a relative increment so any application order converges
// to the same totals. Event types with no counters yield an empty delta,
// which only touches the documents' timestamps.
func BuildDelta(eventType, page string, data *models.EventData, sess *models.Session) map[string]int64 {
	delta := make(map[string]int64)

	switch eventType {
	case models.EventPageView:
		delta[models.StatTotalPageViews] = 1
		delta[models.StatPrefixTopPages+"."+SanitizeStatKey(page)] = 1

		if sess != nil {
			if sess.Referrer != "" && sess.Referrer != "direct" {
				if domain := referrerDomain(sess.Referrer); domain != "" {
					delta[models.StatPrefixTopReferrers+"."+SanitizeStatKey(domain)] = 1
				}
			}
			if sess.IPLocation != nil {
				delta[models.StatPrefixTopCountries+"."+SanitizeStatKey(sess.IPLocation.Country)] = 1
				delta[models.StatPrefixTopCities+"."+SanitizeStatKey(sess.IPLocation.City)] = 1
			}
			deviceType := "desktop"
			if sess.Device.IsMobile {
				deviceType = "mobile"
			}
			delta[models.StatPrefixDeviceTypes+"."+deviceType] = 1
			if sess.Device.Browser != "" {
				delta[models.StatPrefixBrowsers+"."+SanitizeStatKey(sess.Device.Browser)] = 1
			}
		}

	case models.EventFormComplete:
		delta[models.StatRegistrations] = 1

	case models.EventDownload:
		if data != nil && data.DownloadType != nil && *data.DownloadType == models.DownloadZipManual {
			delta[models.StatZipDownloads] = 1
		} else {
			delta[models.StatFirefoxDownloads] = 1
		}
	}

	return delta
}

func referrerDomain(referrer string) string {
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		// Not a URL; use the raw value so the visit is still attributed.
		return referrer
	}
	return u.Hostname()
}
