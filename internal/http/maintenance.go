package http

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database/reports"
	"github.com/mrlokans/librarian/internal/tasks"
)

// MaintenanceService exposes the repair and reporting operations.
type MaintenanceService interface {
	ReconcileAvailability(ctx context.Context, actor circulation.AuthContext) ([]circulation.CounterFix, error)
	ReconcileAllOverdueFines(ctx context.Context) (int, error)
	Summary(ctx context.Context, actor circulation.AuthContext) (*reports.Summary, error)
}

// TaskEnqueuer hands work to the background queue.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
}

type MaintenanceController struct {
	service MaintenanceService
	queue   TaskEnqueuer
}

// NewMaintenanceController creates the admin maintenance endpoints. queue may
// be nil, in which case work runs within the request.
func NewMaintenanceController(service MaintenanceService, queue TaskEnqueuer) *MaintenanceController {
	return &MaintenanceController{service: service, queue: queue}
}

// Reconcile handles POST /api/admin/reconcile
// Recounts availability from copy statuses and returns the corrections.
func (mc *MaintenanceController) Reconcile(c *gin.Context) {
	fixes, err := mc.service.ReconcileAvailability(c.Request.Context(), auth.Actor(c))
	if err != nil {
		respondDomainError(c, err, "reconcile availability")
		return
	}
	if fixes == nil {
		fixes = []circulation.CounterFix{}
	}
	c.JSON(http.StatusOK, gin.H{"fixes": fixes, "count": len(fixes)})
}

// SweepFines handles POST /api/admin/fines/sweep
// Enqueues the overdue fine sweep when a queue is configured; otherwise
// runs it inline.
func (mc *MaintenanceController) SweepFines(c *gin.Context) {
	if mc.queue != nil {
		id, err := mc.queue.Enqueue(c.Request.Context(), tasks.AccrueOverdueFinesTask{Trigger: "api"})
		if err == nil {
			c.JSON(http.StatusAccepted, gin.H{"task_id": id, "message": "task enqueued"})
			return
		}
		log.Printf("Failed to enqueue fine sweep, running inline: %v", err)
	}

	accrued, err := mc.service.ReconcileAllOverdueFines(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "sweep fines")
		return
	}
	c.JSON(http.StatusOK, gin.H{"accrued": accrued})
}

// Summary handles GET /api/admin/summary
func (mc *MaintenanceController) Summary(c *gin.Context) {
	summary, err := mc.service.Summary(c.Request.Context(), auth.Actor(c))
	if err != nil {
		respondDomainError(c, err, "summary")
		return
	}
	c.JSON(http.StatusOK, summary)
}
