package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gtasite/api/models"
)

type RegistrationStore struct {
	db *sql.DB
}

func NewRegistrationStore(db *sql.DB) *RegistrationStore {
	return &RegistrationStore{db: db}
}

// CreateRegistration writes a registration keyed by its derived user id.
// The id embeds deviceId + creation time, so a retried write of the same
// submission lands on the same row instead of duplicating it.
func (s *RegistrationStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	path, err := json.Marshal(reg.ConversionPath)
	if err != nil {
		return fmt.Errorf("failed to encode conversion path: %w", err)
	}

	var country, city string
	if reg.IPLocation != nil {
		country = reg.IPLocation.Country
		city = reg.IPLocation.City
	}

	query := `
		INSERT INTO user_registrations (
			user_id, device_id, session_id, user_email, name, email, occupation,
			use_case, source_page, conversion_path, time_to_conversion,
			ip_address, country, city, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), NOW())
		ON CONFLICT (user_id) DO NOTHING;
	`
	if _, err := s.db.ExecContext(ctx, query,
		reg.UserID, reg.DeviceID, reg.SessionID, reg.UserEmail,
		reg.Name, reg.Email, reg.Occupation, reg.UseCase, reg.SourcePage,
		path, reg.TimeToConversion, reg.IPAddress, country, city,
	); err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

// GetRegistration fetches one registration by its user id.
func (s *RegistrationStore) GetRegistration(ctx context.Context, userID string) (*models.Registration, error) {
	query := `
		SELECT user_id, device_id, session_id, user_email, name, email, occupation,
			use_case, source_page, conversion_path, time_to_conversion,
			COALESCE(ip_address, ''), COALESCE(country, ''), COALESCE(city, ''), created_at
		FROM user_registrations
		WHERE user_id = $1;
	`
	reg := &models.Registration{}
	var path []byte
	var country, city string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&reg.UserID, &reg.DeviceID, &reg.SessionID, &reg.UserEmail,
		&reg.Name, &reg.Email, &reg.Occupation, &reg.UseCase, &reg.SourcePage,
		&path, &reg.TimeToConversion, &reg.IPAddress, &country, &city, &reg.Timestamp,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	if country != "" || city != "" {
		reg.IPLocation = &models.IPLocation{Country: country, City: city}
	}
	if err := json.Unmarshal(path, &reg.ConversionPath); err != nil {
		reg.ConversionPath = nil
	}
	return reg, nil
}

// GetLatestRegistrationByDevice returns the device's most recent
// registration, used by the admin journey view.
func (s *RegistrationStore) GetLatestRegistrationByDevice(ctx context.Context, deviceID string) (*models.Registration, error) {
	query := `
		SELECT user_id FROM user_registrations
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT 1;
	`
	var userID string
	if err := s.db.QueryRowContext(ctx, query, deviceID).Scan(&userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up device registration: %w", err)
	}
	return s.GetRegistration(ctx, userID)
}
