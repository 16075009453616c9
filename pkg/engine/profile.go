package engine

import (
	"context"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
	"github.com/roomieai/concierge-go/pkg/logging"
)

// ProfileManager mediates reads and partial updates of durable client
// profiles. An absent profile is a normal state for a first-contact client,
// not an error, so Get maps the store's NotFound to a nil profile.
type ProfileManager struct {
	store Store
}

func NewProfileManager(store Store) *ProfileManager {
	return &ProfileManager{store: store}
}

// Get returns the client's profile, or nil when the client has never been
// seen before.
func (m *ProfileManager) Get(ctx context.Context, clientID string) (*core.ClientProfile, error) {
	if clientID == "" {
		return nil, errors.New(errors.InvalidInput, "client id is required")
	}
	profile, err := m.store.GetProfile(ctx, clientID)
	if err != nil {
		if errors.IsCode(err, errors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return profile, nil
}

// ApplyUpdate merges a partial update into the client's profile, creating it
// on first sight. An empty update is a no-op so inference passes that found
// nothing cost nothing.
func (m *ProfileManager) ApplyUpdate(ctx context.Context, clientID string, update core.ProfileUpdate) error {
	if clientID == "" {
		return errors.New(errors.InvalidInput, "client id is required")
	}
	if update.Empty() {
		return nil
	}
	if err := m.store.UpsertProfile(ctx, clientID, update); err != nil {
		return err
	}
	logging.GetLogger().Debug(ctx, "applied profile update for client %s", clientID)
	return nil
}

// Touch records that a turn completed: the interaction counter increments and
// the last-interaction timestamp refreshes. Called once per persisted turn.
func (m *ProfileManager) Touch(ctx context.Context, clientID string) error {
	if clientID == "" {
		return errors.New(errors.InvalidInput, "client id is required")
	}
	return m.store.IncrementInteractions(ctx, clientID)
}
