package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gtasite/api/models"
)

// DeviceStore persists the one-record-per-device session view in
// Postgres. The record is merged on every session start and mutated in
// place on activity; history is carried by counters, never overwritten.
type DeviceStore struct {
	db *sql.DB
}

func NewDeviceStore(db *sql.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

// UpsertSession merge-writes the session fields for the device and
// atomically increments session_count in the same statement, so repeated
// initialization across tabs/visits never loses history. first_visit and
// is_converted survive the merge: the former keeps its original value,
// the latter only ever flips to true.
func (s *DeviceStore) UpsertSession(ctx context.Context, sess *models.Session) error {
	if sess.DeviceID == "" {
		return fmt.Errorf("device id is required for all session operations")
	}

	events, err := json.Marshal(sess.ConversionEvents)
	if err != nil {
		return fmt.Errorf("failed to encode conversion events: %w", err)
	}

	query := `
		INSERT INTO user_devices (
			device_id, session_id, user_email, ip_address, country, city,
			platform, browser, is_mobile, referrer, landing_page,
			total_page_views, total_time_spent, conversion_events, is_converted,
			session_count, first_visit, last_visit
		)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			$7, $8, $9, $10, $11, $12, $13, $14, $15, 1, NOW(), NOW())
		ON CONFLICT (device_id) DO UPDATE SET
			session_id       = EXCLUDED.session_id,
			user_email       = COALESCE(EXCLUDED.user_email, user_devices.user_email),
			ip_address       = COALESCE(EXCLUDED.ip_address, user_devices.ip_address),
			country          = COALESCE(EXCLUDED.country, user_devices.country),
			city             = COALESCE(EXCLUDED.city, user_devices.city),
			platform         = EXCLUDED.platform,
			browser          = EXCLUDED.browser,
			is_mobile        = EXCLUDED.is_mobile,
			referrer         = EXCLUDED.referrer,
			landing_page     = EXCLUDED.landing_page,
			total_page_views = EXCLUDED.total_page_views,
			total_time_spent = EXCLUDED.total_time_spent,
			conversion_events = EXCLUDED.conversion_events,
			is_converted     = user_devices.is_converted OR EXCLUDED.is_converted,
			session_count    = user_devices.session_count + 1,
			last_visit       = NOW()
		RETURNING session_count;
	`

	var country, city string
	if sess.IPLocation != nil {
		country = sess.IPLocation.Country
		city = sess.IPLocation.City
	}

	err = s.db.QueryRowContext(ctx, query,
		sess.DeviceID, sess.SessionID, sess.UserEmail, sess.IPAddress, country, city,
		sess.Device.Platform, sess.Device.Browser, sess.Device.IsMobile,
		sess.Referrer, sess.LandingPage,
		sess.TotalPageViews, sess.TotalTimeSpent, events, sess.IsConverted,
	).Scan(&sess.SessionCount)
	if err != nil {
		return fmt.Errorf("failed to upsert device record: %w", err)
	}
	return nil
}

// UpdateActivity pushes the per-event subset of session fields.
func (s *DeviceStore) UpdateActivity(ctx context.Context, sess *models.Session) error {
	events, err := json.Marshal(sess.ConversionEvents)
	if err != nil {
		return fmt.Errorf("failed to encode conversion events: %w", err)
	}

	query := `
		UPDATE user_devices SET
			total_page_views  = $2,
			total_time_spent  = $3,
			conversion_events = $4,
			is_converted      = is_converted OR $5,
			last_visit        = NOW()
		WHERE device_id = $1;
	`
	if _, err := s.db.ExecContext(ctx, query,
		sess.DeviceID, sess.TotalPageViews, sess.TotalTimeSpent, events, sess.IsConverted,
	); err != nil {
		return fmt.Errorf("failed to update device activity: %w", err)
	}
	return nil
}

// SetUserEmail correlates a registered email into the device record.
func (s *DeviceStore) SetUserEmail(ctx context.Context, deviceID, email string) error {
	query := `UPDATE user_devices SET user_email = $2, last_visit = NOW() WHERE device_id = $1;`
	if _, err := s.db.ExecContext(ctx, query, deviceID, email); err != nil {
		return fmt.Errorf("failed to set device email: %w", err)
	}
	return nil
}

// GetDevice fetches the durable per-device session view.
func (s *DeviceStore) GetDevice(ctx context.Context, deviceID string) (*models.Session, error) {
	query := `
		SELECT device_id, session_id, COALESCE(user_email, ''), COALESCE(ip_address, ''),
			COALESCE(country, ''), COALESCE(city, ''), platform, browser, is_mobile,
			referrer, landing_page, total_page_views, total_time_spent,
			conversion_events, is_converted, session_count, first_visit, last_visit
		FROM user_devices
		WHERE device_id = $1;
	`
	sess := &models.Session{}
	var country, city string
	var events []byte
	err := s.db.QueryRowContext(ctx, query, deviceID).Scan(
		&sess.DeviceID, &sess.SessionID, &sess.UserEmail, &sess.IPAddress,
		&country, &city, &sess.Device.Platform, &sess.Device.Browser, &sess.Device.IsMobile,
		&sess.Referrer, &sess.LandingPage, &sess.TotalPageViews, &sess.TotalTimeSpent,
		&events, &sess.IsConverted, &sess.SessionCount, &sess.FirstVisit, &sess.LastVisit,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device record: %w", err)
	}
	if country != "" || city != "" {
		sess.IPLocation = &models.IPLocation{Country: country, City: city}
	}
	if err := json.Unmarshal(events, &sess.ConversionEvents); err != nil {
		sess.ConversionEvents = nil
	}
	return sess, nil
}
