// Package collector implements the analytics and identity-correlation
// core: device-keyed sessions, the event tracker, aggregate counters,
// and the lead-capture registration guard. Storage collaborators are
// consumed through the narrow interfaces below so every component can be
// exercised against in-memory fakes.
package collector

import (
	"context"
	"time"

	"gtasite/api/geo"
	"gtasite/api/models"
)

// DeviceStore is the durable one-record-per-device session view.
type DeviceStore interface {
	UpsertSession(ctx context.Context, sess *models.Session) error
	UpdateActivity(ctx context.Context, sess *models.Session) error
	SetUserEmail(ctx context.Context, deviceID, email string) error
}

// EventStore receives the immutable event stream.
type EventStore interface {
	InsertEvents(ctx context.Context, events []models.Event) error
}

// StatsStore holds the daily/hourly aggregate documents. EnsureDocs must
// use set-if-absent semantics; ApplyDelta must be one atomic batch of
// relative increments.
type StatsStore interface {
	EnsureDocs(ctx context.Context, date string, hour int) error
	ApplyDelta(ctx context.Context, date string, hour int, delta map[string]int64) error
}

// RegistrationStore persists completed lead-capture submissions.
type RegistrationStore interface {
	CreateRegistration(ctx context.Context, reg *models.Registration) error
}

// Identity is the durable per-device key/value state: the identity
// itself, the correlated email, and the spam-guard markers. All methods
// are best-effort; absence and failure look the same to callers.
type Identity interface {
	GetOrCreateDeviceID(ctx context.Context, existing string) (string, bool)
	GetStoredEmail(ctx context.Context, deviceID string) (string, bool)
	StoreEmailCorrelation(ctx context.Context, deviceID, email string)
	SubmittedEmails(ctx context.Context, deviceID string) []string
	MarkEmailSubmitted(ctx context.Context, deviceID, email string)
	LastSubmission(ctx context.Context, deviceID string) (time.Time, bool)
	StampSubmission(ctx context.Context, deviceID string, at time.Time)
	ClearRateLimit(ctx context.Context, deviceID string)
	ClearSubmittedEmails(ctx context.Context, deviceID string)
}

// GeoResolver resolves a caller's IP and approximate location; results
// degrade to sentinels, never errors.
type GeoResolver interface {
	Resolve(ctx context.Context, hintIP string) geo.Result
}
