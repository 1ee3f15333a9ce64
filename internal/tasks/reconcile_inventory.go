package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/circulation"
)

// AvailabilityReconciler repairs drifted availability counters.
type AvailabilityReconciler interface {
	ReconcileAvailability(ctx context.Context, actor circulation.AuthContext) ([]circulation.CounterFix, error)
}

// ReconcileInventoryTask recounts available copies for every book.
type ReconcileInventoryTask struct {
	Trigger string `json:"trigger"`
}

// Config returns the queue configuration for inventory reconciliation.
func (t ReconcileInventoryTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "reconcile_inventory",
		MaxAttempts: 2,
		Backoff:     5 * time.Minute,
		Timeout:     15 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ReconcileInventoryProcessor creates a processor function for ReconcileInventoryTask.
func ReconcileInventoryProcessor(reconciler AvailabilityReconciler) backlite.QueueProcessor[ReconcileInventoryTask] {
	return func(ctx context.Context, task ReconcileInventoryTask) error {
		if reconciler == nil {
			return fmt.Errorf("availability reconciler not configured")
		}

		fixes, err := reconciler.ReconcileAvailability(ctx, circulation.SystemActor)
		if err != nil {
			return fmt.Errorf("reconcile inventory: %w", err)
		}

		for _, fix := range fixes {
			log.Printf("[TASK] Book %d availability corrected %d -> %d", fix.BookID, fix.Before, fix.After)
		}
		log.Printf("[TASK] Inventory reconciliation (%s) fixed %d books", triggerName(task.Trigger), len(fixes))
		return nil
	}
}

// NewReconcileInventoryQueue creates a backlite queue for inventory reconciliation.
func NewReconcileInventoryQueue(reconciler AvailabilityReconciler) backlite.Queue {
	return backlite.NewQueue(ReconcileInventoryProcessor(reconciler))
}
