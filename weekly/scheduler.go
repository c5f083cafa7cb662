// weekly/scheduler.go
package weekly

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/wfunc/boardserver/logger"
)

// Scheduler drives the rollover: a cron job at the Monday 00:00 UTC
// boundary settles the week that just ended, and a periodic retry job
// resumes any rollover that crashed or failed.
type Scheduler struct {
	store *Store
	sched gocron.Scheduler
}

func NewScheduler(store *Store, rolloverCron string, retryInterval time.Duration) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	s := &Scheduler{store: store, sched: sched}

	_, err = sched.NewJob(
		gocron.CronJob(rolloverCron, false),
		gocron.NewTask(s.rollover),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(retryInterval),
		gocron.NewTask(func() {
			s.store.RetryFailed(context.Background())
		}),
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	logger.Log.Info("weekly rollover scheduler started")
}

func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// rollover settles the week that just ended. Running it for the previous
// week keeps a job firing slightly after midnight from settling the new,
// empty week.
func (s *Scheduler) rollover() {
	week, year := WeekOf(time.Now())
	week, year = Previous(week, year)

	if _, err := s.store.DistributeRewards(context.Background(), week, year); err != nil {
		logger.Log.Errorf("scheduled rollover for %d/%d failed: %v", week, year, err)
	}
}
