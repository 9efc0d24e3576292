package models

import "time"

// RegistrationRequest is the lead-capture form payload as submitted by the
// frontend, before sanitization.
type RegistrationRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Occupation string `json:"occupation"`
	UseCase    string `json:"useCase"`
}

// Registration is a completed lead-capture submission tying an email to a
// device identity. UserID doubles as the storage key and is derived from
// deviceId + creation time, so it also acts as an idempotency hint.
type Registration struct {
	DeviceID         string      `json:"deviceId"`
	UserEmail        string      `json:"userEmail"`
	UserID           string      `json:"userId"`
	SessionID        string      `json:"sessionId"`
	Timestamp        time.Time   `json:"timestamp"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	Occupation       string      `json:"occupation"`
	UseCase          string      `json:"useCase"`
	SourcePage       string      `json:"sourcePage"`
	ConversionPath   []string    `json:"conversionPath"`
	TimeToConversion int         `json:"timeToConversion"` // seconds
	IPAddress        string      `json:"ipAddress,omitempty"`
	IPLocation       *IPLocation `json:"ipLocation,omitempty"`
}
