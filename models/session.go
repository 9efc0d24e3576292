package models

import "time"

// IPLocation is the common shape every geolocation provider response is
// mapped into. "Unknown" is the sentinel for fields no provider could fill.
type IPLocation struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// DeviceInfo carries the platform/browser metadata reported by the client.
type DeviceInfo struct {
	Platform string `json:"platform"`
	Browser  string `json:"browser"`
	IsMobile bool   `json:"isMobile"`
}

// Session is one visit's worth of accumulated state for a device. The
// durable record is keyed by DeviceID and holds the device's latest view;
// it is updated in place, never appended.
type Session struct {
	DeviceID         string      `json:"deviceId"`
	SessionID        string      `json:"sessionId"`
	UserEmail        string      `json:"userEmail,omitempty"`
	UserID           string      `json:"userId,omitempty"`
	Timestamp        time.Time   `json:"timestamp"`
	IPAddress        string      `json:"ipAddress,omitempty"`
	IPLocation       *IPLocation `json:"ipLocation,omitempty"`
	Device           DeviceInfo  `json:"device"`
	Referrer         string      `json:"referrer"`
	LandingPage      string      `json:"landingPage"`
	TotalPageViews   int         `json:"totalPageViews"`
	TotalTimeSpent   int         `json:"totalTimeSpent"` // seconds
	ConversionEvents []string    `json:"conversionEvents"`
	IsConverted      bool        `json:"isConverted"`
	SessionCount     int         `json:"sessionCount"`
	FirstVisit       time.Time   `json:"firstVisit"`
	LastVisit        time.Time   `json:"lastVisit"`
}

// HasConversionEvent reports set membership in the conversionEvents list.
func (s *Session) HasConversionEvent(eventType string) bool {
	for _, e := range s.ConversionEvents {
		if e == eventType {
			return true
		}
	}
	return false
}
