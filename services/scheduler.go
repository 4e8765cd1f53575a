package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Job is a periodic background task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// QueueSweepJob expires stale queue entries and refreshes the queue gauge.
func (ps *PairingService) QueueSweepJob(interval time.Duration) Job {
	return Job{
		Name:     "queue-sweep",
		Interval: interval,
		Run: func(ctx context.Context) {
			if _, err := ps.SweepExpired(ctx); err != nil {
				logrus.WithError(err).Error("[Scheduler] queue sweep failed")
				return
			}
			if _, err := ps.ListQueue(ctx); err != nil {
				logrus.WithError(err).Warn("[Scheduler] queue size refresh failed")
			}
		},
	}
}

// StartScheduler runs every job on its interval until ctx is done. The jobs
// never overlap with themselves.
func StartScheduler(ctx context.Context, jobs ...Job) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		j := j
		_, err := sched.NewJob(
			gocron.DurationJob(j.Interval),
			gocron.NewTask(func() {
				j.Run(ctx)
			}),
			gocron.WithName(j.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
		logrus.WithFields(logrus.Fields{"job": j.Name, "interval": j.Interval.String()}).Info("scheduled job")
	}
	sched.Start()

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			logrus.WithError(err).Warn("[Scheduler] shutdown failed")
		}
	}()
	return sched, nil
}
