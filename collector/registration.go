package collector

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gtasite/api/logger"
	"gtasite/api/models"
)

// AlreadyRegistered is the sentinel returned instead of a registration
// id when the device or email has registered before. It still grants
// download permission.
const AlreadyRegistered = "ALREADY_REGISTERED"

// The only errors that reach the end user. Everything else is masked
// behind ErrSubmitFailed so no backend detail leaks out of the form.
var (
	ErrRateLimited   = errors.New("please wait 5 minutes between submissions to prevent spam")
	ErrInvalidEmail  = errors.New("please enter a valid email address")
	ErrMissingFields = errors.New("please fill in all required fields")
	ErrSubmitFailed  = errors.New("failed to submit registration, please try again later")
)

// SpamStatus describes the device's rate-limit state for the admin
// inspection surface.
type SpamStatus struct {
	CanSubmit            bool       `json:"canSubmit"`
	LastSubmissionTime   *time.Time `json:"lastSubmissionTime,omitempty"`
	TotalSubmittedEmails int        `json:"totalSubmittedEmails"`
	RateLimitMinutes     int        `json:"rateLimitMinutes"`
}

// Guard validates, rate-limits, and deduplicates lead-capture
// submissions, then persists and correlates genuinely new ones.
type Guard struct {
	sessions *SessionManager
	identity Identity
	regs     RegistrationStore
	tracker  *Tracker
	window   time.Duration
	log      *logger.Logger
	now      func() time.Time
}

func NewGuard(sessions *SessionManager, identity Identity, regs RegistrationStore, tracker *Tracker, window time.Duration, log *logger.Logger) *Guard {
	return &Guard{
		sessions: sessions,
		identity: identity,
		regs:     regs,
		tracker:  tracker,
		window:   window,
		log:      log.With("component", "registration"),
		now:      time.Now,
	}
}

// Submit runs one submission attempt through
// validate → rate-limit → check-duplicate → persist → correlate.
// It returns the new registration id, or AlreadyRegistered for a
// returning user. Only the validation and rate-limit errors above ever
// propagate; any backend failure comes back as ErrSubmitFailed.
func (g *Guard) Submit(ctx context.Context, deviceID, sourcePage string, meta RequestMeta, form models.RegistrationRequest) (string, error) {
	if last, ok := g.identity.LastSubmission(ctx, deviceID); ok && g.now().Sub(last) < g.window {
		return "", ErrRateLimited
	}

	name := SanitizeInput(form.Name, MaxNameLen)
	email := SanitizeInput(form.Email, MaxEmailLen)
	occupation := SanitizeInput(form.Occupation, MaxOccupationLen)
	useCase := SanitizeInput(form.UseCase, MaxUseCaseLen)

	if !ValidateEmail(email) {
		return "", ErrInvalidEmail
	}

	emailLower := strings.ToLower(email)
	storedEmail, hasStored := g.identity.GetStoredEmail(ctx, deviceID)
	if hasStored || contains(g.identity.SubmittedEmails(ctx, deviceID), emailLower) {
		if !hasStored {
			g.identity.StoreEmailCorrelation(ctx, deviceID, email)
		}
		g.log.Info("returning user, skipping registration", "deviceId", deviceID, "storedEmail", storedEmail != "")
		return AlreadyRegistered, nil
	}

	if name == "" || email == "" || occupation == "" {
		return "", ErrMissingFields
	}

	sessionID, err := g.sessions.EnsureSession(ctx, deviceID, meta)
	if err != nil {
		g.log.Error("failed to ensure session for registration", "deviceId", deviceID, "error", err)
		return "", ErrSubmitFailed
	}

	now := g.now()
	userID := deviceID + "_" + strconv.FormatInt(now.UnixMilli(), 10)
	sess, path, _ := g.sessions.Snapshot(deviceID)

	reg := &models.Registration{
		DeviceID:         deviceID,
		UserEmail:        email,
		UserID:           userID,
		SessionID:        sessionID,
		Timestamp:        now,
		Name:             name,
		Email:            email,
		Occupation:       occupation,
		UseCase:          useCase,
		SourcePage:       sourcePage,
		ConversionPath:   path,
		TimeToConversion: g.sessions.SecondsSinceStart(deviceID),
		IPAddress:        sess.IPAddress,
		IPLocation:       sess.IPLocation,
	}

	if err := g.regs.CreateRegistration(ctx, reg); err != nil {
		g.log.Error("failed to persist registration", "deviceId", deviceID, "error", err)
		return "", ErrSubmitFailed
	}

	g.identity.StoreEmailCorrelation(ctx, deviceID, email)
	g.sessions.Correlate(ctx, deviceID, email, userID)
	g.tracker.TrackFormComplete(ctx, deviceID, meta, "registration-form", sourcePage)
	g.identity.MarkEmailSubmitted(ctx, deviceID, emailLower)
	g.identity.StampSubmission(ctx, deviceID, now)

	g.log.Info("registration completed", "deviceId", deviceID, "registrationId", userID)
	return userID, nil
}

// HasDownloadPermission is a pure read: true when an email correlation
// exists or any email was ever submitted from this device. Deliberately
// more permissive than "has a registration record" so a partially failed
// write on a previous visit does not force a second submission.
func (g *Guard) HasDownloadPermission(ctx context.Context, deviceID string) bool {
	if _, ok := g.identity.GetStoredEmail(ctx, deviceID); ok {
		return true
	}
	return len(g.identity.SubmittedEmails(ctx, deviceID)) > 0
}

// StoredRegistrationInfo reports the device's correlated email, if any.
func (g *Guard) StoredRegistrationInfo(ctx context.Context, deviceID string) (string, string) {
	email, _ := g.identity.GetStoredEmail(ctx, deviceID)
	return email, deviceID
}

// Status reports the spam-guard state for the admin surface.
func (g *Guard) Status(ctx context.Context, deviceID string) SpamStatus {
	status := SpamStatus{
		CanSubmit:            true,
		TotalSubmittedEmails: len(g.identity.SubmittedEmails(ctx, deviceID)),
		RateLimitMinutes:     int(g.window / time.Minute),
	}
	if last, ok := g.identity.LastSubmission(ctx, deviceID); ok {
		status.LastSubmissionTime = &last
		status.CanSubmit = g.now().Sub(last) >= g.window
	}
	return status
}

// ClearRateLimit and ClearSubmittedEmails are admin utilities.
func (g *Guard) ClearRateLimit(ctx context.Context, deviceID string)       { g.identity.ClearRateLimit(ctx, deviceID) }
func (g *Guard) ClearSubmittedEmails(ctx context.Context, deviceID string) { g.identity.ClearSubmittedEmails(ctx, deviceID) }
