package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// FineSweeper accrues fines for every overdue loan in the library.
type FineSweeper interface {
	ReconcileAllOverdueFines(ctx context.Context) (int, error)
}

// AccrueOverdueFinesTask runs the library-wide fine sweep.
type AccrueOverdueFinesTask struct {
	Trigger string `json:"trigger"` // "schedule" or "manual"
}

// Config returns the queue configuration for fine sweeps. A failed sweep is
// safe to repeat because accrual is idempotent.
func (t AccrueOverdueFinesTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "accrue_overdue_fines",
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// AccrueOverdueFinesProcessor creates a processor function for AccrueOverdueFinesTask.
func AccrueOverdueFinesProcessor(sweeper FineSweeper) backlite.QueueProcessor[AccrueOverdueFinesTask] {
	return func(ctx context.Context, task AccrueOverdueFinesTask) error {
		if sweeper == nil {
			return fmt.Errorf("fine sweeper not configured")
		}

		created, err := sweeper.ReconcileAllOverdueFines(ctx)
		if err != nil {
			return fmt.Errorf("accrue overdue fines: %w", err)
		}

		log.Printf("[TASK] Fine sweep (%s) accrued %d fines", triggerName(task.Trigger), created)
		return nil
	}
}

// NewAccrueOverdueFinesQueue creates a backlite queue for fine sweeps.
func NewAccrueOverdueFinesQueue(sweeper FineSweeper) backlite.Queue {
	return backlite.NewQueue(AccrueOverdueFinesProcessor(sweeper))
}

func triggerName(trigger string) string {
	if trigger == "" {
		return "manual"
	}
	return trigger
}
