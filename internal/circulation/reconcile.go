package circulation

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/reports"
)

// CounterFix records one corrected availability counter.
type CounterFix struct {
	BookID uint   `json:"book_id"`
	Title  string `json:"title"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// ReconcileAvailability finds books whose availability counter drifted from
// their copies and rewrites those counters in one transaction. It is the only
// place counters are recomputed instead of incremented.
func (s *Service) ReconcileAvailability(ctx context.Context, actor AuthContext) ([]CounterFix, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	drifted, err := readWithRetry(func() ([]reports.AvailabilityDrift, error) {
		return s.reports.AvailabilityDrift(ctx)
	})
	if err != nil {
		return nil, err
	}
	if len(drifted) == 0 {
		return nil, nil
	}

	fixes := make([]CounterFix, 0, len(drifted))
	err = s.tx(ctx, func(tx *gorm.DB) error {
		inv := s.inventory(tx)
		for _, d := range drifted {
			before, after, err := inv.Recount(d.BookID)
			if err != nil {
				return err
			}
			if before != after {
				fixes = append(fixes, CounterFix{BookID: d.BookID, Title: d.Title, Before: before, After: after})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, f := range fixes {
		log.Printf("Reconciled availability of book %d (%q): %d -> %d", f.BookID, f.Title, f.Before, f.After)
		s.audit.Record(actor.UserID, "availability_reconcile", "book", f.BookID,
			map[string]any{"available_copies": f.Before}, map[string]any{"available_copies": f.After})
	}
	return fixes, nil
}

// OverdueLoans lists active loans past due, most overdue first.
func (s *Service) OverdueLoans(ctx context.Context, actor AuthContext, limit uint) ([]reports.OverdueLoan, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	now := s.clock()
	return readWithRetry(func() ([]reports.OverdueLoan, error) {
		return s.reports.OverdueLoans(ctx, now, limit)
	})
}

// Summary returns circulation totals for the back office.
func (s *Service) Summary(ctx context.Context, actor AuthContext) (*reports.Summary, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	return readWithRetry(func() (*reports.Summary, error) {
		return s.reports.Summary(ctx)
	})
}

// Now exposes the service clock to callers that stamp related records.
func (s *Service) Now() time.Time {
	return s.clock()
}
