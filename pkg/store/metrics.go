package store

import (
	"context"
	"database/sql"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

// Outcome thresholds on the 1-5 scale (1 = worst, 5 = best): a scored turn
// at or above successThreshold counts as a successful outcome, at or below
// escalationThreshold as an escalation to a human.
const (
	successThreshold    = 4.0
	escalationThreshold = 2.0
)

// AggregateDay recomputes the performance sample for one calendar day
// (YYYY-MM-DD, UTC) from committed turns. The aggregation scans across
// clients; it is the single sanctioned cross-client read and runs outside
// the per-client turn path.
func (s *SQLiteStore) AggregateDay(ctx context.Context, date string) (core.PerformanceSample, error) {
	sample := core.PerformanceSample{Date: date}
	if err := s.ensureInitialized(); err != nil {
		return sample, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		avgLatency sql.NullFloat64
		avgSat     sql.NullFloat64
		total      int
		successes  int
		escalated  int
	)
	err := s.db.QueryRowContext(ctx, `
    SELECT
        AVG(response_latency_ms),
        AVG(satisfaction_score),
        COUNT(*),
        COALESCE(SUM(CASE WHEN satisfaction_score >= ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN satisfaction_score IS NOT NULL AND satisfaction_score <= ? THEN 1 ELSE 0 END), 0)
    FROM conversations
    WHERE date(created_at) = ?
    `, successThreshold, escalationThreshold, date).Scan(&avgLatency, &avgSat, &total, &successes, &escalated)
	if err != nil {
		return sample, errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to aggregate day"),
			errors.Fields{"date": date},
		)
	}

	sample.AvgResponseTimeMs = avgLatency.Float64
	sample.AvgSatisfaction = avgSat.Float64
	sample.TotalConversations = total
	sample.SuccessfulOutcomes = successes
	sample.Escalations = escalated
	return sample, nil
}

// UpsertPerformanceSample stores the daily rollup, one row per date.
func (s *SQLiteStore) UpsertPerformanceSample(ctx context.Context, sample core.PerformanceSample) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	if sample.Date == "" {
		return errors.New(errors.InvalidInput, "sample date is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
    INSERT INTO performance_metrics
        (date, avg_response_time_ms, avg_satisfaction, total_conversations, successful_outcomes, escalations)
    VALUES (?, ?, ?, ?, ?, ?)
    ON CONFLICT(date) DO UPDATE SET
        avg_response_time_ms = excluded.avg_response_time_ms,
        avg_satisfaction = excluded.avg_satisfaction,
        total_conversations = excluded.total_conversations,
        successful_outcomes = excluded.successful_outcomes,
        escalations = excluded.escalations
    `, sample.Date, sample.AvgResponseTimeMs, sample.AvgSatisfaction,
		sample.TotalConversations, sample.SuccessfulOutcomes, sample.Escalations)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to upsert performance sample"),
			errors.Fields{"date": sample.Date},
		)
	}
	return nil
}

// GetPerformanceSample reads one day's rollup, or NotFound.
func (s *SQLiteStore) GetPerformanceSample(ctx context.Context, date string) (*core.PerformanceSample, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sample     core.PerformanceSample
		avgLatency sql.NullFloat64
		avgSat     sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
    SELECT date, avg_response_time_ms, avg_satisfaction, total_conversations, successful_outcomes, escalations
    FROM performance_metrics
    WHERE date = ?
    `, date).Scan(&sample.Date, &avgLatency, &avgSat,
		&sample.TotalConversations, &sample.SuccessfulOutcomes, &sample.Escalations)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.WithFields(
				errors.New(errors.NotFound, "performance sample not found"),
				errors.Fields{"date": date},
			)
		}
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to read performance sample"),
			errors.Fields{"date": date},
		)
	}

	sample.AvgResponseTimeMs = avgLatency.Float64
	sample.AvgSatisfaction = avgSat.Float64
	return &sample, nil
}
