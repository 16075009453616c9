package engine

import (
	"context"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

// DefaultHistoryLimit is the window size used when none is configured.
const DefaultHistoryLimit = 10

// HistoryWindow serves the bounded recency view over a client's turns. It is
// a thin read layer: ordering and truncation live in the store query, so two
// concurrent readers always agree on the same committed window.
type HistoryWindow struct {
	store Store
	limit int
}

// NewHistoryWindow creates a window over the given store. A non-positive
// limit falls back to DefaultHistoryLimit.
func NewHistoryWindow(store Store, limit int) *HistoryWindow {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryWindow{store: store, limit: limit}
}

// Limit returns the configured window size.
func (h *HistoryWindow) Limit() int { return h.limit }

// Window returns up to limit of the client's most recent turns, oldest
// first. A non-positive limit, or one above the configured size, is clamped
// to the configured size so callers cannot widen the context beyond what the
// engine is tuned for. A client with no history yields an empty window.
func (h *HistoryWindow) Window(ctx context.Context, clientID string, limit int) ([]core.ConversationTurn, error) {
	if clientID == "" {
		return nil, errors.New(errors.InvalidInput, "client id is required")
	}
	if limit <= 0 || limit > h.limit {
		limit = h.limit
	}
	return h.store.RecentTurns(ctx, clientID, limit)
}
