package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"tournament-ledger/utils"
)

const scheduledJobTimeout = 30 * time.Second

// StartScheduler starts the background jobs: auto-locking matches whose
// start time has passed, and expiring top-up orders that were never paid.
// Callers stop it with Shutdown.
func StartScheduler(matches *MatchService, wallet *WalletService, topupTTL time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	metrics := matches.Store.Metrics

	// Every minute: lock matches that have started
	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), scheduledJobTimeout)
			defer cancel()
			_, err := matches.LockDueMatches(ctx, time.Now())
			metrics.SchedulerRun("lock_due_matches", err)
			if err != nil {
				utils.Errorf("[SCHED] ❌ lock_due_matches: %v", err)
			}
		}),
		gocron.WithName("lock_due_matches"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	// Every 10 minutes: reject top-up orders older than the TTL
	if _, err := sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), scheduledJobTimeout)
			defer cancel()
			_, err := wallet.ExpireStaleTopups(ctx, time.Now().Add(-topupTTL))
			metrics.SchedulerRun("expire_topups", err)
			if err != nil {
				utils.Errorf("[SCHED] ❌ expire_topups: %v", err)
			}
		}),
		gocron.WithName("expire_topups"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	sched.Start()
	utils.Infof("[SCHED] ✅ Scheduler started (match auto-lock every 1m, top-up expiry every 10m, ttl %s)", topupTTL)
	return sched, nil
}
