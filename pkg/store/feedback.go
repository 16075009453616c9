package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/roomieai/concierge-go/pkg/errors"
)

// ApplyFeedback records a satisfaction score for a turn in one transaction:
// the turn's score is set (overwriting any earlier feedback), the owning
// client's average satisfaction is recomputed over all scored turns, and the
// observed outcome is blended into every pattern named in the turn's context
// snapshot. Pattern reinforcement fires only on the first score for a turn;
// an overwrite adjusts the score and the average but never feeds the same
// turn into the pattern statistics twice. A turn id that does not exist or
// belongs to another client yields NotFound with no mutation at all.
//
// observed is the outcome already normalized to [0,1]; weight is the blend
// factor for the pattern update. Callers that only need the score and average
// without pattern reinforcement use ScoreTurn instead.
func (s *SQLiteStore) ApplyFeedback(ctx context.Context, clientID string, turnID int64, score, observed, weight float64) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, rollback, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer rollback()

	var (
		rawSnapshot sql.NullString
		priorScore  sql.NullFloat64
	)
	err = tx.QueryRowContext(ctx, `
    SELECT context_snapshot, satisfaction_score FROM conversations
    WHERE id = ? AND client_id = ?
    `, turnID, clientID).Scan(&rawSnapshot, &priorScore)
	if err != nil {
		if isNoRows(err) {
			return errors.WithFields(
				errors.New(errors.NotFound, "turn not found"),
				errors.Fields{"client_id": clientID, "turn_id": turnID},
			)
		}
		return errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to read turn snapshot"),
			errors.Fields{"client_id": clientID, "turn_id": turnID},
		)
	}
	snapshot, err := unmarshalSnapshot(rawSnapshot)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
    UPDATE conversations
    SET satisfaction_score = ?
    WHERE id = ? AND client_id = ?
    `, score, turnID, clientID)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to score turn"),
			errors.Fields{"client_id": clientID, "turn_id": turnID},
		)
	}

	_, err = tx.ExecContext(ctx, `
    UPDATE client_profiles
    SET avg_satisfaction = (
        SELECT AVG(satisfaction_score)
        FROM conversations
        WHERE client_id = ? AND satisfaction_score IS NOT NULL
    )
    WHERE client_id = ?
    `, clientID, clientID)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to recompute average satisfaction"),
			errors.Fields{"client_id": clientID},
		)
	}

	// A turn reinforces its patterns once. Overwritten feedback already
	// counted; re-blending it would inflate usage_count and skew the rate.
	if !priorScore.Valid {
		now := time.Now().UTC()
		for _, patternType := range snapshot.Patterns {
			if err := applyPatternOutcomeTx(ctx, tx, patternType, observed, weight, now); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.StoreUnavailable, "failed to commit feedback")
	}
	return nil
}
