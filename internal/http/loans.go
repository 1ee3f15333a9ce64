package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database/reports"
)

// LoanService drives the loan lifecycle.
type LoanService interface {
	CreateLoan(ctx context.Context, actor circulation.AuthContext, req circulation.LoanRequest) (*circulation.LoanReceipt, error)
	CloseLoan(ctx context.Context, actor circulation.AuthContext, loanID uint) (*circulation.ReturnReceipt, error)
	SelfReturn(ctx context.Context, actor circulation.AuthContext, bookID uint) (*circulation.ReturnReceipt, error)
	ExtendLoan(ctx context.Context, actor circulation.AuthContext, loanID uint) (*circulation.ExtensionReceipt, error)
	ListLoansWithAccrual(ctx context.Context, actor circulation.AuthContext, userID uint) ([]circulation.LoanView, error)
	OverdueLoans(ctx context.Context, actor circulation.AuthContext, limit uint) ([]reports.OverdueLoan, error)
}

type LoansController struct {
	service LoanService
}

func NewLoansController(service LoanService) *LoansController {
	return &LoansController{service: service}
}

// CreateLoanRequest is the body of POST /api/loans. Exactly one of BookID
// and CopyID must be set. UserID and LoanPeriodDays are for staff.
type CreateLoanRequest struct {
	BookID         uint `json:"book_id"`
	CopyID         uint `json:"copy_id"`
	UserID         uint `json:"user_id"`
	LoanPeriodDays int  `json:"loan_period_days"`
}

// Create handles POST /api/loans
func (lc *LoansController) Create(c *gin.Context) {
	var req CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	receipt, err := lc.service.CreateLoan(c.Request.Context(), auth.Actor(c), circulation.LoanRequest{
		UserID:         req.UserID,
		BookID:         req.BookID,
		CopyID:         req.CopyID,
		LoanPeriodDays: req.LoanPeriodDays,
	})
	if err != nil {
		respondDomainError(c, err, "create loan")
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// Mine handles GET /api/loans
func (lc *LoansController) Mine(c *gin.Context) {
	actor := auth.Actor(c)
	lc.list(c, actor, actor.UserID)
}

// ForUser handles GET /api/users/:id/loans
// Staff may list anyone's loans; readers only their own.
func (lc *LoansController) ForUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	lc.list(c, auth.Actor(c), userID)
}

func (lc *LoansController) list(c *gin.Context, actor circulation.AuthContext, userID uint) {
	views, err := lc.service.ListLoansWithAccrual(c.Request.Context(), actor, userID)
	if err != nil {
		respondDomainError(c, err, "list loans")
		return
	}
	if views == nil {
		views = []circulation.LoanView{}
	}
	c.JSON(http.StatusOK, gin.H{"loans": views, "count": len(views)})
}

// Overdue handles GET /api/loans/overdue
func (lc *LoansController) Overdue(c *gin.Context) {
	limit, err := strconv.ParseUint(c.DefaultQuery("limit", "50"), 10, 32)
	if err != nil {
		respondBadRequest(c, "invalid limit")
		return
	}

	list, err := lc.service.OverdueLoans(c.Request.Context(), auth.Actor(c), uint(limit))
	if err != nil {
		respondDomainError(c, err, "overdue loans")
		return
	}
	if list == nil {
		list = []reports.OverdueLoan{}
	}
	c.JSON(http.StatusOK, gin.H{"loans": list, "count": len(list)})
}

// Return handles POST /api/loans/:id/return
func (lc *LoansController) Return(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	receipt, err := lc.service.CloseLoan(c.Request.Context(), auth.Actor(c), loanID)
	if err != nil {
		respondDomainError(c, err, "return loan")
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ReturnBook handles POST /api/books/:id/return
// Closes the caller's own active loan of the book.
func (lc *LoansController) ReturnBook(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	receipt, err := lc.service.SelfReturn(c.Request.Context(), auth.Actor(c), bookID)
	if err != nil {
		respondDomainError(c, err, "return book")
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// Extend handles POST /api/loans/:id/extend
func (lc *LoansController) Extend(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	receipt, err := lc.service.ExtendLoan(c.Request.Context(), auth.Actor(c), loanID)
	if err != nil {
		respondDomainError(c, err, "extend loan")
		return
	}
	c.JSON(http.StatusOK, receipt)
}
