package metrics

import (
	"context"
	"time"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
	"github.com/roomieai/concierge-go/pkg/logging"
)

// DateFormat is the calendar-day key used by the performance table.
const DateFormat = "2006-01-02"

// Store is the persistence surface the rollup needs.
type Store interface {
	AggregateDay(ctx context.Context, date string) (core.PerformanceSample, error)
	UpsertPerformanceSample(ctx context.Context, sample core.PerformanceSample) error
}

// Rollup recomputes daily performance samples from committed turns. Running
// a day twice is safe: the aggregate is recomputed from scratch and the
// sample row replaced, so late feedback simply lands on the next run.
type Rollup struct {
	store Store
}

func NewRollup(store Store) *Rollup {
	return &Rollup{store: store}
}

// Run aggregates one calendar day (YYYY-MM-DD, UTC) and stores the sample.
func (r *Rollup) Run(ctx context.Context, date string) (core.PerformanceSample, error) {
	if _, err := time.Parse(DateFormat, date); err != nil {
		return core.PerformanceSample{}, errors.WithFields(
			errors.New(errors.InvalidInput, "date must be YYYY-MM-DD"),
			errors.Fields{"date": date},
		)
	}

	sample, err := r.store.AggregateDay(ctx, date)
	if err != nil {
		return core.PerformanceSample{}, err
	}
	if err := r.store.UpsertPerformanceSample(ctx, sample); err != nil {
		return core.PerformanceSample{}, err
	}

	logging.GetLogger().Info(ctx, "rolled up %s: %d conversations, avg satisfaction %.2f",
		date, sample.TotalConversations, sample.AvgSatisfaction)
	return sample, nil
}

// RunYesterday rolls up the day before the given instant, the job the
// scheduler runs shortly after midnight.
func (r *Rollup) RunYesterday(ctx context.Context, now time.Time) (core.PerformanceSample, error) {
	return r.Run(ctx, now.UTC().AddDate(0, 0, -1).Format(DateFormat))
}

// Backfill recomputes every day from `from` through `to` inclusive, oldest
// first. It stops at the first failure so a retry resumes from a clean
// prefix.
func (r *Rollup) Backfill(ctx context.Context, from, to time.Time) error {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if to.Before(from) {
		return errors.New(errors.InvalidInput, "backfill range is reversed")
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if _, err := r.Run(ctx, day.Format(DateFormat)); err != nil {
			return err
		}
	}
	return nil
}
