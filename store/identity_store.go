// Device identity and spam-guard state, backed by Redis. This is the
// server-side counterpart of the browser's durable key/value storage:
// identity and email correlation carry independent ~365-day expiries,
// the submitted-emails list and rate-limit marker never expire.
package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"gtasite/api/logger"
	"gtasite/api/utils"
)

type IdentityStore struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewIdentityStore(rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *IdentityStore {
	return &IdentityStore{rdb: rdb, ttl: ttl, log: log.With("store", "identity")}
}

func deviceKey(id string) string          { return "identity:device:" + id }
func emailKey(id string) string           { return "identity:email:" + id }
func submittedEmailsKey(id string) string { return "spamguard:emails:" + id }
func lastSubmissionKey(id string) string  { return "spamguard:last_signup:" + id }

// GetOrCreateDeviceID returns the caller's device id, minting and
// persisting a fresh one when none exists. The second return reports
// whether a new identity was created. Storage failures degrade to a
// freshly minted, unpersisted id; they never surface to the caller.
func (s *IdentityStore) GetOrCreateDeviceID(ctx context.Context, existing string) (string, bool) {
	if existing != "" {
		// Refresh the identity expiry on every sighting.
		if err := s.rdb.Set(ctx, deviceKey(existing), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
			s.log.Warn("failed to refresh device identity", "deviceId", existing, "error", err)
		}
		return existing, false
	}

	id := utils.NewDeviceID()
	if err := s.rdb.Set(ctx, deviceKey(id), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		s.log.Warn("failed to persist new device identity", "deviceId", id, "error", err)
	}
	return id, true
}

// GetStoredEmail returns the email correlated with a device, if any.
// Absent and unreadable both report ok=false.
func (s *IdentityStore) GetStoredEmail(ctx context.Context, deviceID string) (string, bool) {
	email, err := s.rdb.Get(ctx, emailKey(deviceID)).Result()
	if err != nil {
		if err != goredis.Nil {
			s.log.Warn("failed to read email correlation", "deviceId", deviceID, "error", err)
		}
		return "", false
	}
	return email, email != ""
}

// StoreEmailCorrelation persists the email with its own expiry clock,
// independent of the device identity's.
func (s *IdentityStore) StoreEmailCorrelation(ctx context.Context, deviceID, email string) {
	if err := s.rdb.Set(ctx, emailKey(deviceID), email, s.ttl).Err(); err != nil {
		s.log.Warn("failed to store email correlation", "deviceId", deviceID, "error", err)
	}
}

// SubmittedEmails returns the lower-cased emails previously submitted
// from this device. Stored as a JSON array; a corrupted entry is cleared
// and treated as empty so future reads do not repeatedly fail.
func (s *IdentityStore) SubmittedEmails(ctx context.Context, deviceID string) []string {
	raw, err := s.rdb.Get(ctx, submittedEmailsKey(deviceID)).Result()
	if err != nil {
		if err != goredis.Nil {
			s.log.Warn("failed to read submitted emails", "deviceId", deviceID, "error", err)
		}
		return nil
	}
	var emails []string
	if err := json.Unmarshal([]byte(raw), &emails); err != nil {
		s.log.Warn("corrupted submitted-emails entry, discarding", "deviceId", deviceID, "error", err)
		s.rdb.Del(ctx, submittedEmailsKey(deviceID))
		return nil
	}
	return emails
}

// MarkEmailSubmitted appends the email to the device's submitted list.
func (s *IdentityStore) MarkEmailSubmitted(ctx context.Context, deviceID, email string) {
	emails := append(s.SubmittedEmails(ctx, deviceID), email)
	raw, err := json.Marshal(emails)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, submittedEmailsKey(deviceID), string(raw), 0).Err(); err != nil {
		s.log.Warn("failed to persist submitted emails", "deviceId", deviceID, "error", err)
	}
}

// LastSubmission returns when this device last completed a registration.
func (s *IdentityStore) LastSubmission(ctx context.Context, deviceID string) (time.Time, bool) {
	raw, err := s.rdb.Get(ctx, lastSubmissionKey(deviceID)).Result()
	if err != nil {
		if err != goredis.Nil {
			s.log.Warn("failed to read rate-limit marker", "deviceId", deviceID, "error", err)
		}
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.log.Warn("corrupted rate-limit marker, discarding", "deviceId", deviceID, "error", err)
		s.rdb.Del(ctx, lastSubmissionKey(deviceID))
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// StampSubmission records a successful submission for rate limiting.
func (s *IdentityStore) StampSubmission(ctx context.Context, deviceID string, at time.Time) {
	if err := s.rdb.Set(ctx, lastSubmissionKey(deviceID), strconv.FormatInt(at.UnixMilli(), 10), 0).Err(); err != nil {
		s.log.Warn("failed to stamp rate limit", "deviceId", deviceID, "error", err)
	}
}

// ClearRateLimit removes the rate-limit marker (admin utility).
func (s *IdentityStore) ClearRateLimit(ctx context.Context, deviceID string) {
	s.rdb.Del(ctx, lastSubmissionKey(deviceID))
}

// ClearSubmittedEmails removes the submitted-emails list (admin utility).
func (s *IdentityStore) ClearSubmittedEmails(ctx context.Context, deviceID string) {
	s.rdb.Del(ctx, submittedEmailsKey(deviceID))
}
