package scheduler

import (
	"context"
	"log"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/tasks"
)

// Job names registered by RegisterCirculationJobs.
const (
	JobFineSweep    = "fine_sweep"
	JobReconcile    = "reconcile_inventory"
	JobAuditCleanup = "audit_cleanup"
)

// Enqueuer saves background tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
}

// Jobs holds the inline implementations used when no task queue is running.
type Jobs struct {
	Sweeper       tasks.FineSweeper
	Reconciler    tasks.AvailabilityReconciler
	Cleaner       tasks.AuditEventCleaner
	RetentionDays int
}

// RegisterCirculationJobs adds the fine sweep, inventory reconciliation and
// audit cleanup jobs. With a queue each tick enqueues a task; without one the
// task processor runs inline.
func RegisterCirculationJobs(s *Scheduler, cfg config.Schedules, queue Enqueuer, jobs Jobs) error {
	sweep := tasks.AccrueOverdueFinesTask{Trigger: "schedule"}
	if err := s.Add(JobFineSweep, cfg.FineSweep, dispatch(queue, sweep, func(ctx context.Context) error {
		return tasks.AccrueOverdueFinesProcessor(jobs.Sweeper)(ctx, sweep)
	})); err != nil {
		return err
	}

	reconcile := tasks.ReconcileInventoryTask{Trigger: "schedule"}
	if err := s.Add(JobReconcile, cfg.Reconcile, dispatch(queue, reconcile, func(ctx context.Context) error {
		return tasks.ReconcileInventoryProcessor(jobs.Reconciler)(ctx, reconcile)
	})); err != nil {
		return err
	}

	if jobs.Cleaner == nil {
		return nil
	}
	cleanup := tasks.CleanupAuditEventsTask{RetentionDays: jobs.RetentionDays, Trigger: "schedule"}
	return s.Add(JobAuditCleanup, cfg.AuditCleanup, dispatch(queue, cleanup, func(ctx context.Context) error {
		return tasks.CleanupAuditEventsProcessor(jobs.Cleaner)(ctx, cleanup)
	}))
}

func dispatch(queue Enqueuer, task backlite.Task, inline JobFunc) JobFunc {
	if queue == nil {
		return inline
	}
	return func(ctx context.Context) error {
		id, err := queue.Enqueue(ctx, task)
		if err != nil {
			return err
		}
		log.Printf("[SCHEDULER] enqueued %s as task %s", task.Config().Name, id)
		return nil
	}
}
