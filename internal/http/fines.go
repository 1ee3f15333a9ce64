package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database/fines"
	"github.com/mrlokans/librarian/internal/entities"
)

type FineService interface {
	ListFines(ctx context.Context, actor circulation.AuthContext, f fines.Filter, limit, offset int) ([]fines.Row, int64, error)
	SettleFine(ctx context.Context, actor circulation.AuthContext, fineID uint, status entities.FineStatus) (*entities.Fine, error)
}

type FinesController struct {
	service FineService
}

func NewFinesController(service FineService) *FinesController {
	return &FinesController{service: service}
}

type settleFineRequest struct {
	Status entities.FineStatus `json:"status" binding:"required"`
}

// List handles GET /api/fines
// Filters: user_id, status. Readers without a user_id see their own fines.
func (fc *FinesController) List(c *gin.Context) {
	actor := auth.Actor(c)
	userID, ok := parseOptionalQueryID(c, "user_id")
	if !ok {
		return
	}
	if userID == 0 && !actor.IsStaff() {
		userID = actor.UserID
	}
	limit, offset := parsePagination(c)

	f := fines.Filter{UserID: userID, Status: entities.FineStatus(c.Query("status"))}
	rows, total, err := fc.service.ListFines(c.Request.Context(), actor, f, limit, offset)
	if err != nil {
		respondDomainError(c, err, "list fines")
		return
	}
	if rows == nil {
		rows = []fines.Row{}
	}
	respondPage(c, rows, total, limit, offset)
}

// Settle handles POST /api/fines/:id/settle
// Body: {"status": "paid"} or {"status": "cancelled"}.
func (fc *FinesController) Settle(c *gin.Context) {
	fineID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req settleFineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "status is required")
		return
	}

	fine, err := fc.service.SettleFine(c.Request.Context(), auth.Actor(c), fineID, req.Status)
	if err != nil {
		respondDomainError(c, err, "settle fine")
		return
	}
	c.JSON(http.StatusOK, fine)
}
