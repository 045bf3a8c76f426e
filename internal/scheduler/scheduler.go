// Package scheduler runs the daily batch jobs: anniversary rewards and
// reminders, birthday rewards, the guest points expiry sweep, and the
// retention sweep over aged audit rows. Each job
// commits per member, so a crash mid-run leaves already-processed members
// correct and the rest untouched; the next run picks them up.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/perkmill/perkmill/internal/config"
	"github.com/perkmill/perkmill/internal/loyalty"
)

// Scheduler owns the cron runner and the batch entry points.
type Scheduler struct {
	cron        *cron.Cron
	cfg         config.SchedulerConfig
	anniversary *loyalty.AnniversaryService
	birthday    *loyalty.BirthdayService
	guestPoints *loyalty.GuestPointsService
	retention   *loyalty.RetentionService
}

// New constructs a Scheduler.
func New(cfg config.SchedulerConfig, anniversary *loyalty.AnniversaryService, birthday *loyalty.BirthdayService, guestPoints *loyalty.GuestPointsService, retention *loyalty.RetentionService) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		cfg:         cfg,
		anniversary: anniversary,
		birthday:    birthday,
		guestPoints: guestPoints,
		retention:   retention,
	}
}

// Start registers the daily job and starts the cron loop. ctx bounds each
// job run; cancelling it stops the scheduler via Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		log.Info("scheduler disabled")
		return nil
	}

	_, errAdd := s.cron.AddFunc(s.cfg.Daily, func() {
		s.RunDaily(ctx, s.cfg.DryRun)
	})
	if errAdd != nil {
		return fmt.Errorf("scheduler: register daily job %q: %w", s.cfg.Daily, errAdd)
	}

	s.cron.Start()
	log.WithField("spec", s.cfg.Daily).Info("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunDaily executes every daily batch job in sequence. Job failures are
// logged and do not stop the remaining jobs.
func (s *Scheduler) RunDaily(ctx context.Context, dryRun bool) {
	if expired, errExpire := s.guestPoints.ExpireOldPoints(ctx); errExpire != nil {
		log.WithError(errExpire).Error("guest points expiry sweep failed")
	} else if expired > 0 {
		log.WithField("expired", expired).Info("guest points expiry sweep done")
	}

	s.logRun("anniversary rewards", dryRun, func() (*loyalty.BatchSummary, error) {
		return s.anniversary.RunAnniversaryRewards(ctx, dryRun)
	})
	s.logRun("anniversary reminders", dryRun, func() (*loyalty.BatchSummary, error) {
		return s.anniversary.RunAnniversaryReminders(ctx, dryRun)
	})
	s.logRun("birthday rewards", dryRun, func() (*loyalty.BatchSummary, error) {
		return s.birthday.RunBirthdayRewards(ctx, dryRun)
	})

	if !dryRun {
		if _, _, errSweep := s.retention.Sweep(ctx); errSweep != nil {
			log.WithError(errSweep).Error("retention sweep failed")
		}
	}
}

func (s *Scheduler) logRun(name string, dryRun bool, run func() (*loyalty.BatchSummary, error)) {
	summary, errRun := run()
	if errRun != nil {
		log.WithError(errRun).Errorf("%s run failed", name)
		return
	}
	log.WithFields(log.Fields{
		"processed": summary.Processed,
		"rewarded":  summary.Rewarded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"dry_run":   dryRun,
	}).Infof("%s run done", name)
}
