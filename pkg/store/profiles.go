package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

// GetProfile returns the client's durable profile, or NotFound when the
// client has never been seen. Read-only.
func (s *SQLiteStore) GetProfile(ctx context.Context, clientID string) (*core.ClientProfile, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
    SELECT client_id, display_name, language, preferences, budget_range,
           activity_style, allergies, last_interaction, total_interactions, avg_satisfaction
    FROM client_profiles
    WHERE client_id = ?
    `, clientID)

	var (
		profile       core.ClientProfile
		displayName   sql.NullString
		language      sql.NullString
		preferences   sql.NullString
		budgetRange   sql.NullString
		activityStyle sql.NullString
		allergies     sql.NullString
		lastSeen      sql.NullTime
		avgSat        sql.NullFloat64
	)
	err := row.Scan(
		&profile.ClientID, &displayName, &language, &preferences, &budgetRange,
		&activityStyle, &allergies, &lastSeen, &profile.TotalInteractions, &avgSat,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.WithFields(
				errors.New(errors.NotFound, "profile not found"),
				errors.Fields{"client_id": clientID},
			)
		}
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to read profile"),
			errors.Fields{"client_id": clientID},
		)
	}

	profile.DisplayName = displayName.String
	profile.Language = language.String
	profile.BudgetRange = budgetRange.String
	profile.ActivityStyle = activityStyle.String
	profile.Allergies = allergies.String
	if lastSeen.Valid {
		profile.LastInteractionAt = lastSeen.Time
	}
	if avgSat.Valid {
		profile.AvgSatisfaction = &avgSat.Float64
	}
	if preferences.Valid && preferences.String != "" {
		if err := json.Unmarshal([]byte(preferences.String), &profile.Preferences); err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.Unknown, "failed to unmarshal preferences"),
				errors.Fields{"client_id": clientID},
			)
		}
	}

	return &profile, nil
}

// UpsertProfile merges a partial update into the client's profile, creating
// the profile on first sight with total_interactions = 1. Supplied fields
// overwrite; the preferences mapping merges per inner key, last write wins.
// The interaction counter is never touched on update: counting happens once
// per turn through IncrementInteractions, so field inference can run any
// number of times per turn without inflating it.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, clientID string, update core.ProfileUpdate) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	if clientID == "" {
		return errors.New(errors.InvalidInput, "client id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, rollback, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer rollback()

	now := time.Now().UTC()

	var existingPrefs sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT preferences FROM client_profiles WHERE client_id = ?", clientID,
	).Scan(&existingPrefs)

	switch {
	case isNoRows(err):
		prefs, merr := marshalPreferences(update.Preferences)
		if merr != nil {
			return merr
		}
		_, err = tx.ExecContext(ctx, `
        INSERT INTO client_profiles
            (client_id, display_name, language, preferences, budget_range,
             activity_style, allergies, last_interaction, total_interactions)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
        `, clientID,
			nullable(update.DisplayName), nullable(update.Language), prefs,
			nullable(update.BudgetRange), nullable(update.ActivityStyle),
			nullable(update.Allergies), now)
		if err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.StoreUnavailable, "failed to create profile"),
				errors.Fields{"client_id": clientID},
			)
		}

	case err != nil:
		return errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to read profile for update"),
			errors.Fields{"client_id": clientID},
		)

	default:
		setClauses := "last_interaction = ?"
		args := []interface{}{now}

		if update.DisplayName != nil {
			setClauses += ", display_name = ?"
			args = append(args, *update.DisplayName)
		}
		if update.Language != nil {
			setClauses += ", language = ?"
			args = append(args, *update.Language)
		}
		if update.BudgetRange != nil {
			setClauses += ", budget_range = ?"
			args = append(args, *update.BudgetRange)
		}
		if update.ActivityStyle != nil {
			setClauses += ", activity_style = ?"
			args = append(args, *update.ActivityStyle)
		}
		if update.Allergies != nil {
			setClauses += ", allergies = ?"
			args = append(args, *update.Allergies)
		}
		if len(update.Preferences) > 0 {
			merged, merr := mergePreferences(existingPrefs, update.Preferences)
			if merr != nil {
				return merr
			}
			setClauses += ", preferences = ?"
			args = append(args, merged)
		}

		args = append(args, clientID)
		_, err = tx.ExecContext(ctx,
			"UPDATE client_profiles SET "+setClauses+" WHERE client_id = ?", args...)
		if err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.StoreUnavailable, "failed to update profile"),
				errors.Fields{"client_id": clientID},
			)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.StoreUnavailable, "failed to commit profile update")
	}
	return nil
}

// IncrementInteractions bumps the interaction counter and the last seen
// timestamp. Called exactly once per persisted turn, by the orchestrator
// only; a profile is created if field inference has not yet run.
func (s *SQLiteStore) IncrementInteractions(ctx context.Context, clientID string) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
    UPDATE client_profiles
    SET total_interactions = total_interactions + 1,
        last_interaction = ?
    WHERE client_id = ?
    `, now, clientID)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to increment interactions"),
			errors.Fields{"client_id": clientID},
		)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.StoreUnavailable, "failed to read affected rows")
	}
	if affected == 0 {
		_, err = s.db.ExecContext(ctx, `
        INSERT INTO client_profiles (client_id, last_interaction, total_interactions)
        VALUES (?, ?, 1)
        `, clientID, now)
		if err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.StoreUnavailable, "failed to create profile"),
				errors.Fields{"client_id": clientID},
			)
		}
	}
	return nil
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func marshalPreferences(prefs map[string]string) (interface{}, error) {
	if len(prefs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to marshal preferences")
	}
	return string(data), nil
}

func mergePreferences(existing sql.NullString, update map[string]string) (string, error) {
	merged := make(map[string]string, len(update))
	if existing.Valid && existing.String != "" {
		if err := json.Unmarshal([]byte(existing.String), &merged); err != nil {
			return "", errors.Wrap(err, errors.Unknown, "failed to unmarshal stored preferences")
		}
	}
	for k, v := range update {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return "", errors.Wrap(err, errors.InvalidInput, "failed to marshal merged preferences")
	}
	return string(data), nil
}
