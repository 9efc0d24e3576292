package models

import "time"

// Event types recorded by the tracker.
const (
	EventPageView        = "page_view"
	EventButtonClick     = "button_click"
	EventFormStart       = "form_start"
	EventFormComplete    = "form_complete"
	EventDownload        = "download"
	EventScrollMilestone = "scroll_milestone"
	EventTimeMilestone   = "time_milestone"
)

// Download types accepted by the download tracker.
const (
	DownloadFirefoxStore = "firefox_store"
	DownloadZipManual    = "zip_manual"
)

// EventData holds the optional payload of an event. All fields are
// pointers so absent values are omitted entirely from the stored record.
type EventData struct {
	ScrollPercentage *int    `json:"scrollPercentage,omitempty"`
	TimeOnPage       *int    `json:"timeOnPage,omitempty"`
	ButtonText       *string `json:"buttonText,omitempty"`
	DownloadType     *string `json:"downloadType,omitempty"`
}

// Event is a single immutable record of a user action, keyed by EventID.
// Re-delivery under the same EventID overwrites rather than duplicates.
type Event struct {
	DeviceID       string     `json:"deviceId"`
	SessionID      string     `json:"sessionId"`
	EventID        string     `json:"eventId"`
	Timestamp      time.Time  `json:"timestamp"`
	EventType      string     `json:"eventType"`
	Page           string     `json:"page"`
	ElementID      string     `json:"elementId,omitempty"`
	EventData      *EventData `json:"eventData,omitempty"`
	UserID         string     `json:"userId,omitempty"`
	SequenceNumber int64      `json:"sequenceNumber"`
}

type TopPathResult struct {
	PagePath string `json:"pagePath"`
	Count    uint64 `json:"count"`
}

type EventTypeCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}
