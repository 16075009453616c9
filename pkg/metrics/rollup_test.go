package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

type fakeStore struct {
	samples    map[string]core.PerformanceSample
	aggregated []string
	upserted   []string
	failDate   string
}

func newFakeStore() *fakeStore {
	return &fakeStore{samples: make(map[string]core.PerformanceSample)}
}

func (f *fakeStore) AggregateDay(_ context.Context, date string) (core.PerformanceSample, error) {
	if date == f.failDate {
		return core.PerformanceSample{}, errors.New(errors.StoreUnavailable, "aggregation failed")
	}
	f.aggregated = append(f.aggregated, date)
	if s, ok := f.samples[date]; ok {
		return s, nil
	}
	return core.PerformanceSample{Date: date}, nil
}

func (f *fakeStore) UpsertPerformanceSample(_ context.Context, sample core.PerformanceSample) error {
	f.upserted = append(f.upserted, sample.Date)
	return nil
}

func TestRollupRun(t *testing.T) {
	store := newFakeStore()
	store.samples["2026-08-30"] = core.PerformanceSample{
		Date:               "2026-08-30",
		TotalConversations: 7,
		AvgSatisfaction:    4.1,
	}
	rollup := NewRollup(store)

	sample, err := rollup.Run(context.Background(), "2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, 7, sample.TotalConversations)
	assert.Equal(t, []string{"2026-08-30"}, store.upserted)

	t.Run("malformed date is rejected before the store", func(t *testing.T) {
		_, err := rollup.Run(context.Background(), "30/08/2026")
		assert.True(t, errors.IsCode(err, errors.InvalidInput))
		assert.Len(t, store.aggregated, 1)
	})

	t.Run("aggregation failure does not upsert", func(t *testing.T) {
		store.failDate = "2026-08-31"
		_, err := rollup.Run(context.Background(), "2026-08-31")
		assert.True(t, errors.IsCode(err, errors.StoreUnavailable))
		assert.Equal(t, []string{"2026-08-30"}, store.upserted)
	})
}

func TestRollupRunYesterday(t *testing.T) {
	store := newFakeStore()
	rollup := NewRollup(store)

	now := time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)
	_, err := rollup.RunYesterday(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08-31"}, store.upserted)
}

func TestRollupBackfill(t *testing.T) {
	t.Run("inclusive range, oldest first", func(t *testing.T) {
		store := newFakeStore()
		rollup := NewRollup(store)

		from := time.Date(2026, 8, 28, 13, 0, 0, 0, time.UTC)
		to := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
		require.NoError(t, rollup.Backfill(context.Background(), from, to))
		assert.Equal(t, []string{"2026-08-28", "2026-08-29", "2026-08-30"}, store.upserted)
	})

	t.Run("stops at the first failing day", func(t *testing.T) {
		store := newFakeStore()
		store.failDate = "2026-08-29"
		rollup := NewRollup(store)

		from := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
		err := rollup.Backfill(context.Background(), from, to)
		require.Error(t, err)
		assert.Equal(t, []string{"2026-08-28"}, store.upserted)
	})

	t.Run("reversed range is rejected", func(t *testing.T) {
		rollup := NewRollup(newFakeStore())
		err := rollup.Backfill(context.Background(), time.Now(), time.Now().AddDate(0, 0, -2))
		assert.True(t, errors.IsCode(err, errors.InvalidInput))
	})
}

func TestNewScheduler(t *testing.T) {
	rollup := NewRollup(newFakeStore())

	t.Run("default schedule", func(t *testing.T) {
		s, err := NewScheduler(rollup, "")
		require.NoError(t, err)
		require.NotNil(t, s)
		s.Start()
		<-s.Stop().Done()
	})

	t.Run("invalid spec", func(t *testing.T) {
		_, err := NewScheduler(rollup, "not a cron spec")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.InvalidInput))
	})
}
