package store

import (
	"context"
	"database/sql"
	"encoding/json"
	goerrors "errors"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
	"github.com/roomieai/concierge-go/pkg/logging"
)

// SQLiteStore is the persistent store backing the engine. It owns the four
// durable tables (conversations, client profiles, learned patterns, daily
// performance samples). Every conversation and profile query is
// parameterized by client_id; only the daily rollup reads across clients.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	initialized sync.Once
}

// New creates a new SQLite-backed store. The path parameter specifies the
// database file location. If path is ":memory:", the database will be
// created in-memory.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}

	s := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		// Enable WAL mode for better concurrency
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.StoreUnavailable, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS conversations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            client_id TEXT NOT NULL,
            message_text TEXT NOT NULL,
            response_text TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            satisfaction_score REAL,
            response_latency_ms INTEGER NOT NULL DEFAULT 0,
            context_snapshot TEXT
        );

        CREATE INDEX IF NOT EXISTS idx_conversations_client_created
        ON conversations(client_id, created_at);

        CREATE TABLE IF NOT EXISTS client_profiles (
            client_id TEXT PRIMARY KEY,
            display_name TEXT,
            language TEXT,
            preferences TEXT,
            budget_range TEXT,
            activity_style TEXT,
            allergies TEXT,
            last_interaction DATETIME,
            total_interactions INTEGER NOT NULL DEFAULT 0,
            avg_satisfaction REAL
        );

        CREATE TABLE IF NOT EXISTS learned_patterns (
            pattern_type TEXT PRIMARY KEY,
            pattern_data TEXT,
            success_rate REAL NOT NULL DEFAULT 0,
            usage_count INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            last_updated DATETIME NOT NULL
        );

        CREATE TABLE IF NOT EXISTS performance_metrics (
            date TEXT PRIMARY KEY,
            avg_response_time_ms REAL,
            avg_satisfaction REAL,
            total_conversations INTEGER,
            successful_outcomes INTEGER,
            escalations INTEGER
        );
        `

		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.StoreUnavailable, "failed to initialize database schema")
			return
		}
	})
	return initErr
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.StoreUnavailable, "failed to close database connection")
	}
	return nil
}

// beginTx starts a transaction with the standard rollback guard.
func (s *SQLiteStore) beginTx(ctx context.Context) (*sql.Tx, func(), error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.StoreUnavailable, "failed to begin transaction")
	}
	rollback := func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logging.GetLogger().Error(ctx, "failed to rollback transaction: %v", err)
		}
	}
	return tx, rollback, nil
}

func marshalSnapshot(snap core.ContextSnapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", errors.Wrap(err, errors.InvalidInput, "failed to marshal context snapshot")
	}
	return string(data), nil
}

func unmarshalSnapshot(raw sql.NullString) (core.ContextSnapshot, error) {
	var snap core.ContextSnapshot
	if !raw.Valid || raw.String == "" {
		return snap, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &snap); err != nil {
		return snap, errors.Wrap(err, errors.Unknown, "failed to unmarshal context snapshot")
	}
	return snap, nil
}

// InsertTurn persists a completed turn and returns its assigned id.
// Turns are append-only; the satisfaction score is the only field mutated
// afterwards, and only by ScoreTurn.
func (s *SQLiteStore) InsertTurn(ctx context.Context, turn *core.ConversationTurn) (int64, error) {
	if err := s.ensureInitialized(); err != nil {
		return 0, err
	}
	if turn.ClientID == "" {
		return 0, errors.New(errors.InvalidInput, "turn is missing a client id")
	}

	snapshot, err := marshalSnapshot(turn.Snapshot)
	if err != nil {
		return 0, err
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
    INSERT INTO conversations
        (client_id, message_text, response_text, created_at, response_latency_ms, context_snapshot)
    VALUES (?, ?, ?, ?, ?, ?)
    `, turn.ClientID, turn.MessageText, turn.ResponseText, createdAt, turn.ResponseLatencyMs, snapshot)
	if err != nil {
		return 0, errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to insert turn"),
			errors.Fields{"client_id": turn.ClientID},
		)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, errors.StoreUnavailable, "failed to read inserted turn id")
	}
	turn.ID = id
	turn.CreatedAt = createdAt
	return id, nil
}

// RecentTurns returns up to limit most recent turns for the client in
// chronological order, oldest first. Fewer turns than limit is not an
// error; zero turns yields an empty slice.
func (s *SQLiteStore) RecentTurns(ctx context.Context, clientID string, limit int) ([]core.ConversationTurn, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []core.ConversationTurn{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
    SELECT id, client_id, message_text, response_text, created_at,
           satisfaction_score, response_latency_ms, context_snapshot
    FROM conversations
    WHERE client_id = ?
    ORDER BY created_at DESC, id DESC
    LIMIT ?
    `, clientID, limit)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreUnavailable, "failed to query recent turns"),
			errors.Fields{"client_id": clientID},
		)
	}
	defer rows.Close()

	var turns []core.ConversationTurn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.StoreUnavailable, "error iterating turns")
	}

	// Rows arrive newest first; reverse to chronological order so the
	// window interleaves into the prompt in causal order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if turns == nil {
		turns = []core.ConversationTurn{}
	}
	return turns, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTurn(row rowScanner) (core.ConversationTurn, error) {
	var (
		turn     core.ConversationTurn
		score    sql.NullFloat64
		snapshot sql.NullString
	)
	if err := row.Scan(
		&turn.ID, &turn.ClientID, &turn.MessageText, &turn.ResponseText,
		&turn.CreatedAt, &score, &turn.ResponseLatencyMs, &snapshot,
	); err != nil {
		return turn, errors.Wrap(err, errors.StoreUnavailable, "failed to scan turn row")
	}
	if score.Valid {
		turn.SatisfactionScore = &score.Float64
	}
	snap, err := unmarshalSnapshot(snapshot)
	if err != nil {
		return turn, err
	}
	turn.Snapshot = snap
	return turn, nil
}

// GetTurn returns a single turn owned by the client, or NotFound.
func (s *SQLiteStore) GetTurn(ctx context.Context, clientID string, turnID int64) (*core.ConversationTurn, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
    SELECT id, client_id, message_text, response_text, created_at,
           satisfaction_score, response_latency_ms, context_snapshot
    FROM conversations
    WHERE client_id = ? AND id = ?
    `, clientID, turnID)

	turn, err := scanTurn(row)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.WithFields(
				errors.New(errors.NotFound, "turn not found"),
				errors.Fields{"client_id": clientID, "turn_id": turnID},
			)
		}
		return nil, err
	}
	return &turn, nil
}

func isNoRows(err error) bool {
	return goerrors.Is(err, sql.ErrNoRows)
}

// ScoreTurn sets a turn's satisfaction score and recomputes the owning
// client's average as the mean of all non-null scores, in one transaction.
// Repeated feedback overwrites the score; the average follows. A turn id
// that does not exist or belongs to another client yields NotFound with no
// mutation.
func (s *SQLiteStore) ScoreTurn(ctx context.Context, clientID string, turnID int64, score float64) error {
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

	res, err := tx.ExecContext(ctx, `
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
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.StoreUnavailable, "failed to read affected rows")
	}
	if affected == 0 {
		return errors.WithFields(
			errors.New(errors.NotFound, "turn not found"),
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

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.StoreUnavailable, "failed to commit score update")
	}
	return nil
}
