package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/entities"
)

// InventoryService manages the physical copies of books.
type InventoryService interface {
	AddCopies(ctx context.Context, actor circulation.AuthContext, bookID uint, count int) ([]uint, error)
	RemoveCopies(ctx context.Context, actor circulation.AuthContext, bookID uint, count int) (int, error)
	MarkCopyStatus(ctx context.Context, actor circulation.AuthContext, copyID uint, status entities.CopyStatus) (*entities.Copy, error)
	ForceReturnAll(ctx context.Context, actor circulation.AuthContext, bookID uint) (int, error)
}

type CopiesController struct {
	service InventoryService
}

func NewCopiesController(service InventoryService) *CopiesController {
	return &CopiesController{service: service}
}

type countRequest struct {
	Count int `json:"count"`
}

type copyStatusRequest struct {
	Status entities.CopyStatus `json:"status" binding:"required"`
}

// Add handles POST /api/books/:id/copies
func (cc *CopiesController) Add(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req countRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "count is required")
		return
	}

	ids, err := cc.service.AddCopies(c.Request.Context(), auth.Actor(c), bookID, req.Count)
	if err != nil {
		respondDomainError(c, err, "add copies")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"book_id": bookID, "copy_ids": ids, "added": len(ids)})
}

// Remove handles DELETE /api/books/:id/copies
// Only available copies are removed; the request fails without changes when
// fewer than count are available.
func (cc *CopiesController) Remove(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req countRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "count is required")
		return
	}

	removed, err := cc.service.RemoveCopies(c.Request.Context(), auth.Actor(c), bookID, req.Count)
	if err != nil {
		respondDomainError(c, err, "remove copies")
		return
	}
	c.JSON(http.StatusOK, gin.H{"book_id": bookID, "removed": removed})
}

// SetStatus handles PATCH /api/copies/:id/status
func (cc *CopiesController) SetStatus(c *gin.Context) {
	copyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req copyStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "status is required")
		return
	}

	cp, err := cc.service.MarkCopyStatus(c.Request.Context(), auth.Actor(c), copyID, req.Status)
	if err != nil {
		respondDomainError(c, err, "set copy status")
		return
	}
	c.JSON(http.StatusOK, cp)
}

// ForceReturn handles POST /api/books/:id/force-return
func (cc *CopiesController) ForceReturn(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	closed, err := cc.service.ForceReturnAll(c.Request.Context(), auth.Actor(c), bookID)
	if err != nil {
		respondDomainError(c, err, "force return")
		return
	}
	c.JSON(http.StatusOK, gin.H{"book_id": bookID, "closed_loans": closed})
}
