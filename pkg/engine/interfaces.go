package engine

import (
	"context"

	"github.com/roomieai/concierge-go/pkg/core"
)

// Store is the persistence surface the engine depends on. The SQLite
// implementation in pkg/store satisfies it; tests substitute fakes.
// Implementations must scope every read and write to the given client_id;
// the engine never asks for cross-client data.
type Store interface {
	// Profiles
	GetProfile(ctx context.Context, clientID string) (*core.ClientProfile, error)
	UpsertProfile(ctx context.Context, clientID string, update core.ProfileUpdate) error
	IncrementInteractions(ctx context.Context, clientID string) error

	// Turns
	InsertTurn(ctx context.Context, turn *core.ConversationTurn) (int64, error)
	RecentTurns(ctx context.Context, clientID string, limit int) ([]core.ConversationTurn, error)

	// Feedback
	ApplyFeedback(ctx context.Context, clientID string, turnID int64, score, observed, weight float64) error

	// Patterns
	ListTrustedPatterns(ctx context.Context, minRate float64) ([]core.LearnedPattern, error)
	UpsertPatternOutcome(ctx context.Context, patternType string, observed, weight float64) error
}

// Recommender is the read-only catalog collaborator. It is optional; when
// wired, recommendation-intent turns surface its suggestions in the
// assembled context and mark the snapshot accordingly.
type Recommender interface {
	Suggest(ctx context.Context, profile *core.ClientProfile, message string) ([]string, error)
}
