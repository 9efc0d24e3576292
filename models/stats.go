package models

import (
	"fmt"
	"time"
)

// Counter field names inside an aggregated stats document. Label-keyed
// counters (pages, referrers, countries, cities, browsers, hourly slots)
// are stored as "<prefix>.<sanitized-label>" fields next to these.
const (
	StatTotalPageViews   = "totalPageViews"
	StatRegistrations    = "registrations"
	StatFirefoxDownloads = "firefoxDownloads"
	StatZipDownloads     = "zipDownloads"
	StatUniqueVisitors   = "uniqueVisitors"

	StatPrefixTopPages       = "topPages"
	StatPrefixTopReferrers   = "topReferrers"
	StatPrefixTopCountries   = "topCountries"
	StatPrefixTopCities      = "topCities"
	StatPrefixDeviceTypes    = "deviceTypes"
	StatPrefixBrowsers       = "browsers"
	StatPrefixHourlyActivity = "hourlyActivity"
)

// AggregatedStats is a denormalized counter document for one day or one
// hour. Counters holds every counter field, flat, including the
// label-keyed ones; all mutations against it are relative increments.
type AggregatedStats struct {
	Date        string           `json:"date"` // YYYY-MM-DD
	Hour        *int             `json:"hour,omitempty"`
	Counters    map[string]int64 `json:"counters"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

// ZeroCounters is the shape a stats document is initialized with before
// any increment is applied. Label-keyed counters start absent and spring
// into existence at zero on first increment.
func ZeroCounters(hourly bool) map[string]int64 {
	c := map[string]int64{
		StatTotalPageViews:                 0,
		StatRegistrations:                  0,
		StatFirefoxDownloads:               0,
		StatZipDownloads:                   0,
		StatUniqueVisitors:                 0,
		StatPrefixDeviceTypes + ".mobile":  0,
		StatPrefixDeviceTypes + ".desktop": 0,
		StatPrefixDeviceTypes + ".tablet":  0,
	}
	if hourly {
		for h := 0; h < 24; h++ {
			c[HourlyActivityField(h)] = 0
		}
	}
	return c
}

// HourlyActivityField returns the counter field for one histogram slot.
func HourlyActivityField(hour int) string {
	return fmt.Sprintf("%s.%02d", StatPrefixHourlyActivity, hour)
}
