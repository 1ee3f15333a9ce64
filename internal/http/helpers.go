package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/circulation"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data    any   `json:"data"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// domainErrors maps circulation sentinels to HTTP status and stable codes.
// Order matters only where one error wraps another.
var domainErrors = []errorMapping{
	{circulation.ErrBookNotFound, http.StatusNotFound, "BOOK_NOT_FOUND"},
	{circulation.ErrCopyNotFound, http.StatusNotFound, "COPY_NOT_FOUND"},
	{circulation.ErrNoCopyAvailable, http.StatusConflict, "NO_COPY_AVAILABLE"},
	{circulation.ErrCopyNotAvailable, http.StatusConflict, "COPY_NOT_AVAILABLE"},
	{circulation.ErrInsufficientAvailableCopies, http.StatusConflict, "INSUFFICIENT_AVAILABLE_COPIES"},
	{circulation.ErrInvalidCopyStatus, http.StatusBadRequest, "INVALID_COPY_STATUS"},
	{circulation.ErrInvalidCount, http.StatusBadRequest, "INVALID_COUNT"},
	{circulation.ErrBookHasActiveLoans, http.StatusConflict, "BOOK_HAS_ACTIVE_LOANS"},
	{circulation.ErrLoanNotFound, http.StatusNotFound, "LOAN_NOT_FOUND"},
	{circulation.ErrLoanAlreadyReturned, http.StatusConflict, "LOAN_ALREADY_RETURNED"},
	{circulation.ErrNoActiveLoanForBook, http.StatusNotFound, "NO_ACTIVE_LOAN"},
	{circulation.ErrExtensionLimitReached, http.StatusConflict, "EXTENSION_LIMIT_REACHED"},
	{circulation.ErrUnpaidFineBlocksExtension, http.StatusConflict, "UNPAID_FINE_BLOCKS_EXTENSION"},
	{circulation.ErrLoanChanged, http.StatusConflict, "LOAN_CHANGED"},
	{circulation.ErrInvalidLoanTarget, http.StatusBadRequest, "INVALID_LOAN_TARGET"},
	{circulation.ErrInvalidLoanPeriod, http.StatusBadRequest, "INVALID_LOAN_PERIOD"},
	{circulation.ErrUnpaidFinesBlock, http.StatusConflict, "UNPAID_FINES"},
	{circulation.ErrFineNotFound, http.StatusNotFound, "FINE_NOT_FOUND"},
	{circulation.ErrFineAlreadySettled, http.StatusConflict, "FINE_ALREADY_SETTLED"},
	{circulation.ErrInvalidFineStatus, http.StatusBadRequest, "INVALID_FINE_STATUS"},
	{circulation.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{circulation.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{circulation.ErrUserInactive, http.StatusForbidden, "USER_INACTIVE"},
	{circulation.ErrBorrowerNotReader, http.StatusBadRequest, "BORROWER_NOT_READER"},
	{circulation.ErrReviewNotAllowed, http.StatusForbidden, "REVIEW_NOT_ALLOWED"},
	{circulation.ErrInvalidRating, http.StatusBadRequest, "INVALID_RATING"},
	{circulation.ErrReviewNotFound, http.StatusNotFound, "REVIEW_NOT_FOUND"},
}

// respondDomainError translates a circulation error. Store failures and
// unknown errors become a generic 500 with the cause only in the log.
func respondDomainError(c *gin.Context, err error, context string) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			c.JSON(m.status, ErrorResponse{Error: m.err.Error(), Code: m.code})
			return
		}
	}
	if errors.Is(err, circulation.ErrCounterDrift) {
		log.Printf("Availability counter drift (%s): %v", context, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "availability counters need reconciliation", Code: "COUNTER_DRIFT"})
		return
	}
	if errors.Is(err, circulation.ErrStoreUnavailable) {
		log.Printf("Store unavailable (%s): %v", context, err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service temporarily unavailable", Code: "STORE_UNAVAILABLE"})
		return
	}
	respondInternalError(c, err, context)
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: "INVALID_REQUEST"})
}

func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found", Code: "NOT_FOUND"})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "INTERNAL"})
}

func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

func respondPage(c *gin.Context, data any, total int64, limit, offset int) {
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+limit) < total,
	})
}

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(paramName), 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseOptionalQueryID returns 0 when the parameter is absent.
func parseOptionalQueryID(c *gin.Context, paramName string) (uint, bool) {
	raw := c.Query(paramName)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parsePagination reads limit and offset, clamping limit to maxPageSize.
func parsePagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
