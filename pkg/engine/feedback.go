package engine

import (
	"context"

	"github.com/roomieai/concierge-go/pkg/errors"
	"github.com/roomieai/concierge-go/pkg/logging"
)

// FeedbackLoop routes explicit satisfaction scores back into storage and
// learning. One call updates the scored turn, the client's rolling average,
// and every pattern the turn's snapshot names; the store applies all three
// atomically so a bad turn id mutates nothing.
type FeedbackLoop struct {
	store  Store
	scale  Scale
	weight float64
}

// NewFeedbackLoop creates the loop. A non-positive weight falls back to
// DefaultReinforcementWeight.
func NewFeedbackLoop(store Store, scale Scale, weight float64) *FeedbackLoop {
	if weight <= 0 {
		weight = DefaultReinforcementWeight
	}
	return &FeedbackLoop{store: store, scale: scale.orDefault(), weight: weight}
}

// RecordFeedback applies one satisfaction score to a turn the client owns.
// Scores outside the scale fail validation before any store access; an
// unknown or foreign turn id returns NotFound untouched. Repeated feedback
// for the same turn overwrites the previous score.
func (f *FeedbackLoop) RecordFeedback(ctx context.Context, clientID string, turnID int64, score float64) error {
	if clientID == "" {
		return errors.New(errors.InvalidInput, "client id is required")
	}
	if turnID <= 0 {
		return errors.New(errors.InvalidInput, "turn id is required")
	}
	if err := f.scale.Validate(score); err != nil {
		return err
	}

	ctx = logging.WithTurnID(ctx, turnID)
	if err := f.store.ApplyFeedback(ctx, clientID, turnID, score, f.scale.Normalize(score), f.weight); err != nil {
		return err
	}
	logging.GetLogger().Info(ctx, "recorded feedback score %.1f for client %s", score, clientID)
	return nil
}
