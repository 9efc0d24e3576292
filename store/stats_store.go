// Aggregated stats documents live in Redis as one hash per day and one
// per hour. Every mutation is a relative HINCRBY so concurrent writers
// converge; documents are zero-initialized with HSETNX before the first
// increment, making double-initialization a no-op.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"gtasite/api/logger"
	"gtasite/api/models"
)

const statsLastUpdatedField = "lastUpdated"

type StatsStore struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewStatsStore(rdb *goredis.Client, log *logger.Logger) *StatsStore {
	return &StatsStore{rdb: rdb, log: log.With("store", "stats")}
}

func DailyStatsKey(date string) string {
	return "stats:daily:" + date
}

func HourlyStatsKey(date string, hour int) string {
	return fmt.Sprintf("stats:hourly:%s_%02d", date, hour)
}

// EnsureDocs creates the daily and hourly documents for the given bucket
// if absent, with all fixed counters at zero. Set-if-absent semantics:
// racing a concurrent creator is harmless.
func (s *StatsStore) EnsureDocs(ctx context.Context, date string, hour int) error {
	pipe := s.rdb.Pipeline()

	daily := DailyStatsKey(date)
	for field, v := range models.ZeroCounters(false) {
		pipe.HSetNX(ctx, daily, field, v)
	}
	pipe.HSetNX(ctx, daily, statsLastUpdatedField, time.Now().UTC().Format(time.RFC3339))

	hourly := HourlyStatsKey(date, hour)
	for field, v := range models.ZeroCounters(true) {
		pipe.HSetNX(ctx, hourly, field, v)
	}
	pipe.HSetNX(ctx, hourly, "hour", hour)
	pipe.HSetNX(ctx, hourly, statsLastUpdatedField, time.Now().UTC().Format(time.RFC3339))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ensure stats documents: %w", err)
	}
	return nil
}

// ApplyDelta issues one atomic batch of increments against both the
// daily and the hourly document. The hourly document additionally gets
// its histogram slot for the current hour bumped: every applied event
// counts as activity, even one that carries no counter increments of
// its own.
func (s *StatsStore) ApplyDelta(ctx context.Context, date string, hour int, delta map[string]int64) error {
	pipe := s.rdb.TxPipeline()

	now := time.Now().UTC().Format(time.RFC3339)
	daily := DailyStatsKey(date)
	hourly := HourlyStatsKey(date, hour)

	for field, n := range delta {
		pipe.HIncrBy(ctx, daily, field, n)
		pipe.HIncrBy(ctx, hourly, field, n)
	}
	pipe.HIncrBy(ctx, hourly, models.HourlyActivityField(hour), 1)
	pipe.HSet(ctx, daily, statsLastUpdatedField, now)
	pipe.HSet(ctx, hourly, statsLastUpdatedField, now)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to apply stats delta: %w", err)
	}
	return nil
}

// GetStats reads one aggregated document back for the admin surface.
func (s *StatsStore) GetStats(ctx context.Context, key string) (*models.AggregatedStats, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stats document: %w", err)
	}
	if len(fields) == 0 {
		// Absent document, not an error: nothing tracked in this bucket.
		return nil, nil
	}

	doc := &models.AggregatedStats{Counters: make(map[string]int64, len(fields))}
	for field, raw := range fields {
		switch field {
		case statsLastUpdatedField:
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				doc.LastUpdated = t
			}
		case "hour":
			if h, err := strconv.Atoi(raw); err == nil {
				doc.Hour = &h
			}
		default:
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				doc.Counters[field] = n
			}
		}
	}
	return doc, nil
}
