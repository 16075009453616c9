package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

// patternData is the structured description stored in the pattern_data
// column, mirroring the shape the prompt renders from.
type patternData struct {
	Description string `json:"description"`
}

// ListTrustedPatterns returns patterns with a success rate strictly above
// minRate, ordered by success rate descending. Ties order by earlier
// created_at, then pattern_type, so assembly is deterministic.
func (s *SQLiteStore) ListTrustedPatterns(ctx context.Context, minRate float64) ([]core.LearnedPattern, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
    SELECT pattern_type, pattern_data, success_rate, usage_count, created_at, last_updated
    FROM learned_patterns
    WHERE success_rate > ?
    ORDER BY success_rate DESC, created_at ASC, pattern_type ASC
    `, minRate)
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreUnavailable, "failed to list trusted patterns")
	}
	defer rows.Close()

	var patterns []core.LearnedPattern
	for rows.Next() {
		var (
			p    core.LearnedPattern
			data sql.NullString
		)
		if err := rows.Scan(&p.PatternType, &data, &p.SuccessRate, &p.UsageCount, &p.CreatedAt, &p.LastUpdated); err != nil {
			return nil, errors.Wrap(err, errors.StoreUnavailable, "failed to scan pattern row")
		}
		if data.Valid && data.String != "" {
			var pd patternData
			if err := json.Unmarshal([]byte(data.String), &pd); err != nil {
				return nil, errors.WithFields(
					errors.Wrap(err, errors.Unknown, "failed to unmarshal pattern data"),
					errors.Fields{"pattern_type": p.PatternType},
				)
			}
			p.Description = pd.Description
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.StoreUnavailable, "error iterating patterns")
	}
	return patterns, nil
}

// UpsertPatternOutcome blends a new observation into a pattern's success
// rate: rate = rate*(1-weight) + observed*weight, clamped to [0,1], with
// the usage counter incremented. An unknown pattern type is created with
// usage_count = 1 and its rate seeded from the single observation.
func (s *SQLiteStore) UpsertPatternOutcome(ctx context.Context, patternType string, observed, weight float64) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	if patternType == "" {
		return errors.New(errors.InvalidInput, "pattern type is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, rollback, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer rollback()

	if err := applyPatternOutcomeTx(ctx, tx, patternType, observed, weight, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.StoreUnavailable, "failed to commit pattern outcome")
	}
	return nil
}

// applyPatternOutcomeTx performs the blend inside an existing transaction so
// feedback can update the scored turn and its patterns atomically.
func applyPatternOutcomeTx(ctx context.Context, tx *sql.Tx, patternType string, observed, weight float64, now time.Time) error {
	var rate float64
	err := tx.QueryRowContext(ctx,
		"SELECT success_rate FROM learned_patterns WHERE pattern_type = ?", patternType,
	).Scan(&rate)

	switch {
	case isNoRows(err):
		_, err = tx.ExecContext(ctx, `
        INSERT INTO learned_patterns (pattern_type, success_rate, usage_count, created_at, last_updated)
        VALUES (?, ?, 1, ?, ?)
        `, patternType, clamp01(observed), now, now)
		if err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.StoreUnavailable, "failed to create pattern"),
				errors.Fields{"pattern_type": patternType},
			)
		}

	case err != nil:
		return errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to read pattern"),
			errors.Fields{"pattern_type": patternType},
		)

	default:
		newRate := clamp01(rate*(1-weight) + observed*weight)
		_, err = tx.ExecContext(ctx, `
        UPDATE learned_patterns
        SET success_rate = ?, usage_count = usage_count + 1, last_updated = ?
        WHERE pattern_type = ?
        `, newRate, now, patternType)
		if err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.StoreUnavailable, "failed to update pattern"),
				errors.Fields{"pattern_type": patternType},
			)
		}
	}
	return nil
}

// SeedPattern creates or replaces a named pattern with an explicit
// description and starting rate. Used to register strategies up front,
// e.g. "always offer the partner restaurant first".
func (s *SQLiteStore) SeedPattern(ctx context.Context, pattern core.LearnedPattern) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	if pattern.PatternType == "" {
		return errors.New(errors.InvalidInput, "pattern type is required")
	}

	data, err := json.Marshal(patternData{Description: pattern.Description})
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to marshal pattern data")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	createdAt := pattern.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, `
    INSERT INTO learned_patterns (pattern_type, pattern_data, success_rate, usage_count, created_at, last_updated)
    VALUES (?, ?, ?, ?, ?, ?)
    ON CONFLICT(pattern_type) DO UPDATE SET
        pattern_data = excluded.pattern_data,
        success_rate = excluded.success_rate,
        last_updated = excluded.last_updated
    `, pattern.PatternType, string(data), clamp01(pattern.SuccessRate), pattern.UsageCount, createdAt, now)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to seed pattern"),
			errors.Fields{"pattern_type": pattern.PatternType},
		)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
