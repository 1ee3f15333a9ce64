package circulation

import (
	"errors"
	"fmt"
	"log"

	"github.com/mrlokans/librarian/internal/database/inventory"
)

// Inventory errors.
var (
	ErrBookNotFound                = errors.New("book not found")
	ErrCopyNotFound                = errors.New("copy not found")
	ErrNoCopyAvailable             = errors.New("no copy of this book is available")
	ErrCopyNotAvailable            = errors.New("copy is not available")
	ErrInsufficientAvailableCopies = errors.New("not enough available copies to remove")
	ErrInvalidCopyStatus           = errors.New("invalid copy status")
	ErrInvalidCount                = errors.New("count must be positive")
	ErrBookHasActiveLoans          = errors.New("book has active loans")
)

// Loan errors.
var (
	ErrLoanNotFound              = errors.New("loan not found")
	ErrLoanAlreadyReturned       = errors.New("loan already returned")
	ErrNoActiveLoanForBook       = errors.New("no active loan for this book")
	ErrExtensionLimitReached     = errors.New("extension limit reached")
	ErrUnpaidFineBlocksExtension = errors.New("loan has an unpaid fine")
	ErrLoanChanged               = errors.New("loan was modified concurrently")
	ErrInvalidLoanTarget         = errors.New("exactly one of book_id or copy_id is required")
	ErrInvalidLoanPeriod         = errors.New("loan period out of range")
)

// Fine errors.
var (
	ErrUnpaidFinesBlock   = errors.New("user has unpaid fines")
	ErrFineNotFound       = errors.New("fine not found")
	ErrFineAlreadySettled = errors.New("fine already settled")
	ErrInvalidFineStatus  = errors.New("invalid fine status")
)

// Access errors.
var (
	ErrForbidden         = errors.New("forbidden")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserInactive      = errors.New("user is inactive")
	ErrBorrowerNotReader = errors.New("loans can only be created for readers")
	ErrReviewNotAllowed  = errors.New("only borrowers may review a book")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrReviewNotFound    = errors.New("review not found")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// ErrCounterDrift means a book's available_copies no longer matches its
// copies. The operation was rolled back; ReconcileAvailability repairs it.
var ErrCounterDrift = errors.New("availability counter drifted from copies")

var domainErrors = []error{
	ErrBookNotFound, ErrCopyNotFound, ErrNoCopyAvailable, ErrCopyNotAvailable,
	ErrInsufficientAvailableCopies, ErrInvalidCopyStatus, ErrInvalidCount, ErrBookHasActiveLoans,
	ErrLoanNotFound, ErrLoanAlreadyReturned, ErrNoActiveLoanForBook, ErrExtensionLimitReached,
	ErrUnpaidFineBlocksExtension, ErrLoanChanged, ErrInvalidLoanTarget, ErrInvalidLoanPeriod,
	ErrUnpaidFinesBlock, ErrFineNotFound, ErrFineAlreadySettled, ErrInvalidFineStatus,
	ErrForbidden, ErrUserNotFound, ErrUserInactive, ErrBorrowerNotReader,
	ErrReviewNotAllowed, ErrInvalidRating, ErrReviewNotFound, ErrStoreUnavailable,
	ErrCounterDrift,
}

// IsDomainError reports whether err carries one of the package's sentinels.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// storeError passes domain errors through and marks everything else as a
// store failure, keeping the cause in the chain. A counter underflow is
// reported as drift instead.
func storeError(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	if errors.Is(err, inventory.ErrCounterUnderflow) {
		log.Printf("WARNING: %v; run reconcile to repair availability counters", err)
		return fmt.Errorf("%w: %w", ErrCounterDrift, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
