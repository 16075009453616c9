package metrics

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roomieai/concierge-go/pkg/errors"
	"github.com/roomieai/concierge-go/pkg/logging"
)

// DefaultSchedule runs the rollup shortly after midnight UTC so the whole
// previous day is committed before it is aggregated.
const DefaultSchedule = "5 0 * * *"

// Scheduler drives the daily rollup on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	rollup *Rollup
}

// NewScheduler registers the rollup job on the given cron spec; an empty
// spec means DefaultSchedule.
func NewScheduler(rollup *Rollup, spec string) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}

	c := cron.New(cron.WithLocation(time.UTC))
	s := &Scheduler{cron: c, rollup: rollup}
	if _, err := c.AddFunc(spec, s.runJob); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "invalid rollup schedule"),
			errors.Fields{"spec": spec},
		)
	}
	return s, nil
}

func (s *Scheduler) runJob() {
	ctx := context.Background()
	if _, err := s.rollup.RunYesterday(ctx, time.Now()); err != nil {
		logging.GetLogger().Error(ctx, "daily rollup failed: %v", err)
	}
}

// Start begins running scheduled rollups in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling; the returned context is done once any in-flight
// job has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
