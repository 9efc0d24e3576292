package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gtasite/api/database"
	"gtasite/api/logger"
	"gtasite/api/models"
	"gtasite/api/utils"
)

// EventStore writes the immutable event stream to ClickHouse. The
// device_events table is a ReplacingMergeTree keyed by event_id, so
// re-delivery of the same event collapses to one logical row.
type EventStore struct {
	DB  *database.ClickHouseClient
	log *logger.Logger
}

func NewEventStore(chClient *database.ClickHouseClient, log *logger.Logger) *EventStore {
	return &EventStore{DB: chClient, log: log.With("store", "events")}
}

func (s *EventStore) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO device_events (
			event_id, event_type, device_id, session_id, user_id, timestamp,
			page, element_id, event_data, sequence_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		var data []byte
		if event.EventData != nil {
			data, _ = json.Marshal(event.EventData)
		}
		err := batch.Append(
			event.EventID,
			event.EventType,
			event.DeviceID,
			event.SessionID,
			event.UserID,
			event.Timestamp,
			event.Page,
			event.ElementID,
			string(data),
			event.SequenceNumber,
		)
		if err != nil {
			s.log.Warn("error appending event to batch", "eventId", event.EventID, "error", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (s *EventStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]models.EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	args := []interface{}{start, end}
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM device_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []models.EventTypeCountByTime
	for rows.Next() {
		var (
			timeBucket  time.Time
			count       uint64
			eventTypeDB string
			current     models.EventTypeCountByTime
		)
		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventTypeDB); err != nil {
				s.log.Warn("error scanning event-count row", "error", err)
				continue
			}
			current.EventType = &eventTypeDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				s.log.Warn("error scanning event-count row", "error", err)
				continue
			}
		}
		current.Time = timeBucket
		current.Count = count
		results = append(results, current)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts query: %w", err)
	}
	return results, nil
}

func (s *EventStore) GetTopNPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT page, count() as view_count
		FROM device_events
		WHERE event_type = 'page_view' AND timestamp >= ? AND timestamp <= ?
		GROUP BY page
		ORDER BY view_count DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top page paths: %w", err)
	}
	defer rows.Close()

	var results []models.TopPathResult
	for rows.Next() {
		var page string
		var count uint64
		if err := rows.Scan(&page, &count); err != nil {
			s.log.Warn("error scanning top-path row", "error", err)
			continue
		}
		results = append(results, models.TopPathResult{PagePath: page, Count: count})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top page paths: %w", err)
	}
	return results, nil
}
