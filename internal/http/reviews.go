package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database/reviews"
	"github.com/mrlokans/librarian/internal/entities"
)

// ReviewReader lists reviews of a book.
type ReviewReader interface {
	ListForBook(bookID uint, limit, offset int) ([]reviews.Row, int64, error)
	SummaryForBook(bookID uint) (reviews.Summary, error)
}

type ReviewService interface {
	WriteReview(ctx context.Context, actor circulation.AuthContext, bookID uint, rating int, body string) (*entities.Review, error)
	DeleteReview(ctx context.Context, actor circulation.AuthContext, reviewID uint) error
}

type ReviewsController struct {
	reader  ReviewReader
	service ReviewService
}

func NewReviewsController(reader ReviewReader, service ReviewService) *ReviewsController {
	return &ReviewsController{
		reader:  reader,
		service: service,
	}
}

type writeReviewRequest struct {
	Rating int    `json:"rating"`
	Body   string `json:"body"`
}

// List handles GET /api/books/:id/reviews
func (rc *ReviewsController) List(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	limit, offset := parsePagination(c)

	rows, total, err := rc.reader.ListForBook(bookID, limit, offset)
	if err != nil {
		respondInternalError(c, err, "list reviews")
		return
	}
	summary, err := rc.reader.SummaryForBook(bookID)
	if err != nil {
		respondInternalError(c, err, "review summary")
		return
	}
	if rows == nil {
		rows = []reviews.Row{}
	}

	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
		"reviews": PaginatedResponse{
			Data:    rows,
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: int64(offset+limit) < total,
		},
	})
}

// Write handles PUT /api/books/:id/reviews
// Creates or replaces the caller's review.
func (rc *ReviewsController) Write(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req writeReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	review, err := rc.service.WriteReview(c.Request.Context(), auth.Actor(c), bookID, req.Rating, req.Body)
	if err != nil {
		respondDomainError(c, err, "write review")
		return
	}
	c.JSON(http.StatusOK, review)
}

// Delete handles DELETE /api/books/:id/reviews/:reviewId
func (rc *ReviewsController) Delete(c *gin.Context) {
	reviewID, ok := parseIDParam(c, "reviewId")
	if !ok {
		return
	}

	if err := rc.service.DeleteReview(c.Request.Context(), auth.Actor(c), reviewID); err != nil {
		respondDomainError(c, err, "delete review")
		return
	}
	respondSuccess(c, "review deleted")
}
