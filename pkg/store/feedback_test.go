package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

func insertTurnWithPatterns(t *testing.T, s *SQLiteStore, clientID string, patterns []string) int64 {
	t.Helper()
	id, err := s.InsertTurn(context.Background(), &core.ConversationTurn{
		ClientID:     clientID,
		MessageText:  "message",
		ResponseText: "response",
		Snapshot:     core.ContextSnapshot{Patterns: patterns},
	})
	require.NoError(t, err)
	return id
}

func TestApplyFeedback(t *testing.T) {
	ctx := context.Background()

	t.Run("score, average and patterns update together", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SeedPattern(ctx, core.LearnedPattern{
			PatternType: "offer_partner_first",
			SuccessRate: 0.75,
		}))
		id := insertTurnWithPatterns(t, s, "P1", []string{"offer_partner_first", "confirm_allergies"})
		require.NoError(t, s.IncrementInteractions(ctx, "P1"))

		// score 5 on the 1-5 scale: observed = 1.0, weight 0.1.
		require.NoError(t, s.ApplyFeedback(ctx, "P1", id, 5, 1.0, 0.1))

		turn, err := s.GetTurn(ctx, "P1", id)
		require.NoError(t, err)
		require.NotNil(t, turn.SatisfactionScore)
		assert.Equal(t, 5.0, *turn.SatisfactionScore)

		profile, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		require.NotNil(t, profile.AvgSatisfaction)
		assert.Equal(t, 5.0, *profile.AvgSatisfaction)

		trusted, err := s.ListTrustedPatterns(ctx, 0.7)
		require.NoError(t, err)
		require.Len(t, trusted, 2)

		// Unknown pattern named in the snapshot seeds from the observation
		// and now ranks first.
		assert.Equal(t, "confirm_allergies", trusted[0].PatternType)
		assert.Equal(t, 1.0, trusted[0].SuccessRate)
		assert.Equal(t, 1, trusted[0].UsageCount)

		// Known pattern blends: 0.75*0.9 + 1.0*0.1 = 0.775.
		assert.Equal(t, "offer_partner_first", trusted[1].PatternType)
		assert.InDelta(t, 0.775, trusted[1].SuccessRate, 1e-9)
		assert.Equal(t, 1, trusted[1].UsageCount)
	})

	t.Run("repeated feedback overwrites and keeps the mean consistent", func(t *testing.T) {
		s := newTestStore(t)
		id := insertTurnWithPatterns(t, s, "P1", nil)
		require.NoError(t, s.IncrementInteractions(ctx, "P1"))

		require.NoError(t, s.ApplyFeedback(ctx, "P1", id, 2, 0.25, 0.1))
		require.NoError(t, s.ApplyFeedback(ctx, "P1", id, 4, 0.75, 0.1))

		profile, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		require.NotNil(t, profile.AvgSatisfaction)
		assert.Equal(t, 4.0, *profile.AvgSatisfaction)
	})

	t.Run("overwriting a score reinforces patterns only once", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SeedPattern(ctx, core.LearnedPattern{
			PatternType: "offer_partner_first",
			SuccessRate: 0.75,
		}))
		id := insertTurnWithPatterns(t, s, "P1", []string{"offer_partner_first"})
		require.NoError(t, s.IncrementInteractions(ctx, "P1"))

		require.NoError(t, s.ApplyFeedback(ctx, "P1", id, 5, 1.0, 0.1))
		require.NoError(t, s.ApplyFeedback(ctx, "P1", id, 5, 1.0, 0.1))

		// The second identical feedback event overwrites the score but must
		// not blend a duplicate observation: one turn, one reinforcement.
		trusted, err := s.ListTrustedPatterns(ctx, 0.7)
		require.NoError(t, err)
		require.Len(t, trusted, 1)
		assert.InDelta(t, 0.775, trusted[0].SuccessRate, 1e-9)
		assert.Equal(t, 1, trusted[0].UsageCount)

		// The score and average still follow the overwrite.
		require.NoError(t, s.ApplyFeedback(ctx, "P1", id, 3, 0.5, 0.1))
		turn, err := s.GetTurn(ctx, "P1", id)
		require.NoError(t, err)
		assert.Equal(t, 3.0, *turn.SatisfactionScore)

		trusted, err = s.ListTrustedPatterns(ctx, 0.7)
		require.NoError(t, err)
		require.Len(t, trusted, 1)
		assert.InDelta(t, 0.775, trusted[0].SuccessRate, 1e-9)
		assert.Equal(t, 1, trusted[0].UsageCount)
	})

	t.Run("unknown turn mutates nothing", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SeedPattern(ctx, core.LearnedPattern{
			PatternType: "offer_partner_first",
			SuccessRate: 0.75,
		}))

		err := s.ApplyFeedback(ctx, "P1", 999, 5, 1.0, 0.1)
		assert.True(t, errors.IsCode(err, errors.NotFound))

		trusted, err := s.ListTrustedPatterns(ctx, 0.7)
		require.NoError(t, err)
		require.Len(t, trusted, 1)
		assert.Equal(t, 0.75, trusted[0].SuccessRate)
		assert.Equal(t, 0, trusted[0].UsageCount)
	})

	t.Run("another client's turn is not reachable", func(t *testing.T) {
		s := newTestStore(t)
		p1Turn := insertTurnWithPatterns(t, s, "P1", nil)
		insertTurnWithPatterns(t, s, "P2", nil)

		err := s.ApplyFeedback(ctx, "P2", p1Turn, 5, 1.0, 0.1)
		assert.True(t, errors.IsCode(err, errors.NotFound))

		// P1's turn and profile are untouched by P2's attempt.
		turn, err := s.GetTurn(ctx, "P1", p1Turn)
		require.NoError(t, err)
		assert.Nil(t, turn.SatisfactionScore)
		_, err = s.GetProfile(ctx, "P1")
		assert.True(t, errors.IsCode(err, errors.NotFound))
	})
}
