package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertTurn(t *testing.T, s *SQLiteStore, clientID, message, response string) int64 {
	t.Helper()
	id, err := s.InsertTurn(context.Background(), &core.ConversationTurn{
		ClientID:     clientID,
		MessageText:  message,
		ResponseText: response,
	})
	require.NoError(t, err)
	return id
}

func TestTurnOrderingAndWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("Empty history is not an error", func(t *testing.T) {
		turns, err := s.RecentTurns(ctx, "P1", 10)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("Fewer turns than limit returns all, oldest first", func(t *testing.T) {
		for i, msg := range []string{"first", "second", "third"} {
			id := insertTurn(t, s, "P1", msg, "ok")
			assert.Equal(t, int64(i+1), id)
		}

		turns, err := s.RecentTurns(ctx, "P1", 10)
		require.NoError(t, err)
		require.Len(t, turns, 3)
		assert.Equal(t, "first", turns[0].MessageText)
		assert.Equal(t, "second", turns[1].MessageText)
		assert.Equal(t, "third", turns[2].MessageText)
	})

	t.Run("Window keeps only the most recent turns", func(t *testing.T) {
		s := newTestStore(t)
		for i := 0; i < 12; i++ {
			insertTurn(t, s, "P1", "msg"+string(rune('a'+i)), "ok")
		}

		turns, err := s.RecentTurns(ctx, "P1", 10)
		require.NoError(t, err)
		require.Len(t, turns, 10)
		// Oldest two (msga, msgb) fell out of the window
		assert.Equal(t, "msgc", turns[0].MessageText)
		assert.Equal(t, "msgl", turns[9].MessageText)
		for i := 1; i < len(turns); i++ {
			assert.Greater(t, turns[i].ID, turns[i-1].ID, "turns must be in causal order")
		}
	})

	t.Run("Zero limit yields empty window", func(t *testing.T) {
		turns, err := s.RecentTurns(ctx, "P1", 0)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})
}

func TestClientIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Interleave turns from two clients
	insertTurn(t, s, "P1", "p1 one", "r")
	insertTurn(t, s, "P2", "p2 one", "r")
	insertTurn(t, s, "P1", "p1 two", "r")
	insertTurn(t, s, "P2", "p2 two", "r")

	p1, err := s.RecentTurns(ctx, "P1", 10)
	require.NoError(t, err)
	p2, err := s.RecentTurns(ctx, "P2", 10)
	require.NoError(t, err)

	require.Len(t, p1, 2)
	require.Len(t, p2, 2)
	for _, turn := range p1 {
		assert.Equal(t, "P1", turn.ClientID)
		assert.Contains(t, turn.MessageText, "p1")
	}
	for _, turn := range p2 {
		assert.Equal(t, "P2", turn.ClientID)
		assert.Contains(t, turn.MessageText, "p2")
	}
}

func TestProfileLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("Missing profile reports NotFound", func(t *testing.T) {
		_, err := s.GetProfile(ctx, "unseen")
		require.Error(t, err)
		assert.Equal(t, errors.NotFound, errors.Code(err))
	})

	t.Run("First update creates the profile", func(t *testing.T) {
		err := s.UpsertProfile(ctx, "P1", core.ProfileUpdate{
			Language:    core.String("fr"),
			Preferences: map[string]string{"cuisine": "italian"},
		})
		require.NoError(t, err)

		profile, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, "fr", profile.Language)
		assert.Equal(t, "italian", profile.Preferences["cuisine"])
		assert.Equal(t, 1, profile.TotalInteractions)
		assert.False(t, profile.LastInteractionAt.IsZero())
	})

	t.Run("Preferences merge per key, last write wins", func(t *testing.T) {
		err := s.UpsertProfile(ctx, "P1", core.ProfileUpdate{
			Preferences: map[string]string{"cuisine": "japanese", "ambiance": "quiet"},
		})
		require.NoError(t, err)

		profile, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, "japanese", profile.Preferences["cuisine"])
		assert.Equal(t, "quiet", profile.Preferences["ambiance"])
	})

	t.Run("Update does not inflate the interaction counter", func(t *testing.T) {
		err := s.UpsertProfile(ctx, "P1", core.ProfileUpdate{Language: core.String("en")})
		require.NoError(t, err)

		profile, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, 1, profile.TotalInteractions)
		assert.Equal(t, "en", profile.Language)
	})

	t.Run("Identical updates are idempotent", func(t *testing.T) {
		update := core.ProfileUpdate{
			BudgetRange: core.String("100"),
			Preferences: map[string]string{"style": "relaxed"},
		}
		require.NoError(t, s.UpsertProfile(ctx, "P1", update))
		first, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)

		require.NoError(t, s.UpsertProfile(ctx, "P1", update))
		second, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)

		assert.Equal(t, first.BudgetRange, second.BudgetRange)
		assert.Equal(t, first.Preferences, second.Preferences)
		assert.Equal(t, first.TotalInteractions, second.TotalInteractions)
	})

	t.Run("Distinct clients keep distinct budgets", func(t *testing.T) {
		require.NoError(t, s.UpsertProfile(ctx, "P1", core.ProfileUpdate{BudgetRange: core.String("100")}))
		require.NoError(t, s.UpsertProfile(ctx, "P2", core.ProfileUpdate{BudgetRange: core.String("35")}))

		p1, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		p2, err := s.GetProfile(ctx, "P2")
		require.NoError(t, err)

		assert.Equal(t, "100", p1.BudgetRange)
		assert.Equal(t, "35", p2.BudgetRange)
	})
}

func TestIncrementInteractions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("Creates profile on first interaction", func(t *testing.T) {
		require.NoError(t, s.IncrementInteractions(ctx, "fresh"))

		profile, err := s.GetProfile(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, 1, profile.TotalInteractions)
	})

	t.Run("Counter only increases", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, s.IncrementInteractions(ctx, "fresh"))
		}

		profile, err := s.GetProfile(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, 4, profile.TotalInteractions)
	})
}

func TestScoreTurn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProfile(ctx, "P1", core.ProfileUpdate{Language: core.String("fr")}))
	id1 := insertTurn(t, s, "P1", "hello", "hi")
	id2 := insertTurn(t, s, "P1", "dinner?", "partner restaurant first")

	t.Run("Round trip sets score and recomputes average", func(t *testing.T) {
		require.NoError(t, s.ScoreTurn(ctx, "P1", id1, 5))

		turn, err := s.GetTurn(ctx, "P1", id1)
		require.NoError(t, err)
		require.NotNil(t, turn.SatisfactionScore)
		assert.Equal(t, 5.0, *turn.SatisfactionScore)

		profile, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		require.NotNil(t, profile.AvgSatisfaction)
		assert.Equal(t, 5.0, *profile.AvgSatisfaction)
	})

	t.Run("Average is the mean of all scored turns", func(t *testing.T) {
		require.NoError(t, s.ScoreTurn(ctx, "P1", id2, 3))

		profile, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		require.NotNil(t, profile.AvgSatisfaction)
		assert.InDelta(t, 4.0, *profile.AvgSatisfaction, 1e-9)
	})

	t.Run("Repeated feedback overwrites, last value wins", func(t *testing.T) {
		require.NoError(t, s.ScoreTurn(ctx, "P1", id2, 5))

		turn, err := s.GetTurn(ctx, "P1", id2)
		require.NoError(t, err)
		assert.Equal(t, 5.0, *turn.SatisfactionScore)

		profile, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		assert.InDelta(t, 5.0, *profile.AvgSatisfaction, 1e-9)
	})

	t.Run("Unknown turn leaves all state unchanged", func(t *testing.T) {
		before, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)

		err = s.ScoreTurn(ctx, "P1", 9999, 1)
		require.Error(t, err)
		assert.Equal(t, errors.NotFound, errors.Code(err))

		after, err := s.GetProfile(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, before.AvgSatisfaction, after.AvgSatisfaction)
	})

	t.Run("Turn owned by another client is NotFound", func(t *testing.T) {
		err := s.ScoreTurn(ctx, "P2", id1, 4)
		require.Error(t, err)
		assert.Equal(t, errors.NotFound, errors.Code(err))

		// P1's turn is untouched
		turn, err := s.GetTurn(ctx, "P1", id1)
		require.NoError(t, err)
		assert.Equal(t, 5.0, *turn.SatisfactionScore)
	})
}

func TestContextSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertTurn(ctx, &core.ConversationTurn{
		ClientID:     "P1",
		MessageText:  "a restaurant tonight",
		ResponseText: "the partner table first",
		Snapshot: core.ContextSnapshot{
			ProfileUsed:   true,
			ProfileFields: []string{"language", "budget_range"},
			Patterns:      []string{"partner_restaurant_first"},
			HistoryTurns:  4,
			Intent:        "recommendation",
		},
	})
	require.NoError(t, err)

	turn, err := s.GetTurn(ctx, "P1", id)
	require.NoError(t, err)
	assert.True(t, turn.Snapshot.ProfileUsed)
	assert.Equal(t, []string{"language", "budget_range"}, turn.Snapshot.ProfileFields)
	assert.Equal(t, []string{"partner_restaurant_first"}, turn.Snapshot.Patterns)
	assert.Equal(t, 4, turn.Snapshot.HistoryTurns)
	assert.Equal(t, "recommendation", turn.Snapshot.Intent)
}

func TestPatterns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("Unknown pattern is seeded from the single observation", func(t *testing.T) {
		require.NoError(t, s.UpsertPatternOutcome(ctx, "funnel_questions", 0.75, 0.1))

		patterns, err := s.ListTrustedPatterns(ctx, 0.7)
		require.NoError(t, err)
		require.Len(t, patterns, 1)
		assert.Equal(t, "funnel_questions", patterns[0].PatternType)
		assert.Equal(t, 0.75, patterns[0].SuccessRate)
		assert.Equal(t, 1, patterns[0].UsageCount)
	})

	t.Run("Blend is the documented fixed-weight moving average", func(t *testing.T) {
		// 0.75*0.9 + 1.0*0.1 = 0.775
		require.NoError(t, s.UpsertPatternOutcome(ctx, "funnel_questions", 1.0, 0.1))

		patterns, err := s.ListTrustedPatterns(ctx, 0.7)
		require.NoError(t, err)
		require.Len(t, patterns, 1)
		assert.InDelta(t, 0.775, patterns[0].SuccessRate, 1e-9)
		assert.Equal(t, 2, patterns[0].UsageCount)
	})

	t.Run("Threshold is strict and ordering is rate desc", func(t *testing.T) {
		require.NoError(t, s.SeedPattern(ctx, core.LearnedPattern{
			PatternType: "partner_restaurant_first",
			Description: "present the partner restaurant before alternatives",
			SuccessRate: 0.9,
		}))
		require.NoError(t, s.SeedPattern(ctx, core.LearnedPattern{
			PatternType: "exactly_at_threshold",
			SuccessRate: 0.7,
		}))

		patterns, err := s.ListTrustedPatterns(ctx, 0.7)
		require.NoError(t, err)
		require.Len(t, patterns, 2)
		assert.Equal(t, "partner_restaurant_first", patterns[0].PatternType)
		assert.Equal(t, "present the partner restaurant before alternatives", patterns[0].Description)
		assert.Equal(t, "funnel_questions", patterns[1].PatternType)
	})

	t.Run("Rate is clamped to the unit interval", func(t *testing.T) {
		require.NoError(t, s.SeedPattern(ctx, core.LearnedPattern{
			PatternType: "overflow",
			SuccessRate: 1.7,
		}))

		patterns, err := s.ListTrustedPatterns(ctx, 0.0)
		require.NoError(t, err)
		for _, p := range patterns {
			assert.LessOrEqual(t, p.SuccessRate, 1.0)
			assert.GreaterOrEqual(t, p.SuccessRate, 0.0)
		}
	})
}

func TestPerformanceSamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	day := time.Now().UTC().Format("2006-01-02")

	// Three turns today: scores 5, 2 and unscored
	mk := func(latency int64) int64 {
		id, err := s.InsertTurn(ctx, &core.ConversationTurn{
			ClientID:          "P1",
			MessageText:       "m",
			ResponseText:      "r",
			ResponseLatencyMs: latency,
		})
		require.NoError(t, err)
		return id
	}
	id1 := mk(100)
	id2 := mk(300)
	mk(200)
	require.NoError(t, s.ScoreTurn(ctx, "P1", id1, 5))
	require.NoError(t, s.ScoreTurn(ctx, "P1", id2, 2))

	t.Run("AggregateDay computes the rollup", func(t *testing.T) {
		sample, err := s.AggregateDay(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 3, sample.TotalConversations)
		assert.InDelta(t, 200, sample.AvgResponseTimeMs, 1e-9)
		assert.InDelta(t, 3.5, sample.AvgSatisfaction, 1e-9)
		assert.Equal(t, 1, sample.SuccessfulOutcomes)
		assert.Equal(t, 1, sample.Escalations)
	})

	t.Run("Upsert keeps one row per date", func(t *testing.T) {
		sample, err := s.AggregateDay(ctx, day)
		require.NoError(t, err)
		require.NoError(t, s.UpsertPerformanceSample(ctx, sample))

		// A second rollup of the same day overwrites, not duplicates
		sample.TotalConversations = 4
		require.NoError(t, s.UpsertPerformanceSample(ctx, sample))

		stored, err := s.GetPerformanceSample(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 4, stored.TotalConversations)
	})

	t.Run("Missing date is NotFound", func(t *testing.T) {
		_, err := s.GetPerformanceSample(ctx, "1999-01-01")
		require.Error(t, err)
		assert.Equal(t, errors.NotFound, errors.Code(err))
	})

	t.Run("Empty day aggregates to zeros", func(t *testing.T) {
		sample, err := s.AggregateDay(ctx, "1999-01-01")
		require.NoError(t, err)
		assert.Zero(t, sample.TotalConversations)
		assert.Zero(t, sample.AvgSatisfaction)
	})
}
