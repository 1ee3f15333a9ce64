package circulation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/fines"
	"github.com/mrlokans/librarian/internal/database/loans"
	"github.com/mrlokans/librarian/internal/entities"
)

const day = 24 * time.Hour

// OverdueDays returns the number of started days between due and now, or 0
// when the loan is not overdue.
func OverdueDays(due, now time.Time) int64 {
	late := now.Sub(due)
	if late <= 0 {
		return 0
	}
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

// FineFor returns the fine for a loan that is overdue as of now.
func (s *Service) FineFor(due, now time.Time) int64 {
	return OverdueDays(due, now) * s.policy.DailyFineRate
}

// ReconcileOverdueFines accrues a fine for every overdue active loan of the
// user that has no accrued fine, and returns how many fines were written.
// Running it again never changes an existing fine. A loan still out after its
// fine was settled is fined again for all of its overdue days.
func (s *Service) ReconcileOverdueFines(ctx context.Context, userID uint) (int, error) {
	return s.accrue(ctx, userID)
}

// ReconcileAllOverdueFines runs the accrual sweep for every user.
func (s *Service) ReconcileAllOverdueFines(ctx context.Context) (int, error) {
	n, err := s.accrue(ctx, 0)
	if err == nil && n > 0 {
		log.Printf("Accrued %d overdue fines", n)
	}
	return n, err
}

func (s *Service) accrue(ctx context.Context, userID uint) (int, error) {
	now := s.clock()
	overdue, err := readWithRetry(func() ([]entities.Loan, error) {
		return s.loans(ctx).OverdueWithoutFine(userID, now)
	})
	if err != nil {
		return 0, err
	}

	repo := s.fines(ctx)
	created := 0
	for _, loan := range overdue {
		amount := s.FineFor(loan.DueDate, now)
		fine, ok, err := repo.InsertAccrued(loan.ID, amount, now)
		if err != nil {
			return created, storeError(err)
		}
		if !ok {
			continue
		}
		created++
		s.audit.Record(SystemActor.UserID, "fine_accrue", "fine", fine.ID, nil, fine)
		s.notifier.Notify(loan.UserID, "Overdue fine",
			fmt.Sprintf("A fine of %d was charged for a loan that is %d days overdue.", amount, OverdueDays(loan.DueDate, now)))
	}
	return created, nil
}

// SettleFine marks an accrued fine as paid or cancelled.
func (s *Service) SettleFine(ctx context.Context, actor AuthContext, fineID uint, status entities.FineStatus) (*entities.Fine, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if !status.IsSettlement() {
		return nil, ErrInvalidFineStatus
	}

	repo := s.fines(ctx)
	ok, err := repo.Settle(fineID, status, s.clock())
	if err != nil {
		return nil, storeError(err)
	}

	fine, err := repo.GetByID(fineID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFineNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		return nil, ErrFineAlreadySettled
	}

	s.audit.Record(actor.UserID, "fine_settle", "fine", fineID,
		map[string]any{"status": entities.FineStatusAccrued}, map[string]any{"status": status, "amount": fine.Amount})
	s.notifier.Notify(fine.Loan.UserID, "Fine settled",
		fmt.Sprintf("Your fine of %d was marked as %s.", fine.Amount, status))
	return fine, nil
}

// ListFines returns fines for the back office.
func (s *Service) ListFines(ctx context.Context, actor AuthContext, f fines.Filter, limit, offset int) ([]fines.Row, int64, error) {
	if !actor.IsStaff() && f.UserID != actor.UserID {
		return nil, 0, ErrForbidden
	}
	type page struct {
		rows  []fines.Row
		total int64
	}
	p, err := readWithRetry(func() (page, error) {
		rows, total, err := s.fines(ctx).List(f, limit, offset)
		return page{rows, total}, err
	})
	return p.rows, p.total, err
}

// LoanView is a loan as shown to its borrower.
type LoanView struct {
	ID             uint                `json:"id"`
	UserID         uint                `json:"user_id"`
	BookID         uint                `json:"book_id"`
	BookTitle      string              `json:"book_title"`
	CopyID         uint                `json:"copy_id"`
	CopyLabel      string              `json:"copy_label"`
	BorrowDate     time.Time           `json:"borrow_date"`
	DueDate        time.Time           `json:"due_date"`
	ReturnDate     *time.Time          `json:"return_date,omitempty"`
	Status         entities.LoanStatus `json:"status"`
	Extensions     int                 `json:"extensions"`
	ExtensionsLeft int                 `json:"extensions_left"`
	Overdue        bool                `json:"overdue"`
	OverdueDays    int64               `json:"overdue_days,omitempty"`
	Fine           *FineView           `json:"fine,omitempty"`
}

type FineView struct {
	ID     uint  `json:"id"`
	Amount int64 `json:"amount"`
}

// ListLoansWithAccrual accrues any due fines for the user and then returns
// all of the user's loans, newest first.
func (s *Service) ListLoansWithAccrual(ctx context.Context, actor AuthContext, userID uint) ([]LoanView, error) {
	if userID != actor.UserID && !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if _, err := s.ReconcileOverdueFines(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := readWithRetry(func() ([]loans.Row, error) {
		rows, _, err := s.loans(ctx).List(loans.Filter{UserID: userID}, 0, 0)
		return rows, err
	})
	if err != nil {
		return nil, err
	}

	now := s.clock()
	views := make([]LoanView, len(rows))
	for i, r := range rows {
		v := LoanView{
			ID:         r.ID,
			UserID:     r.UserID,
			BookID:     r.BookID,
			BookTitle:  r.BookTitle,
			CopyID:     r.CopyID,
			CopyLabel:  r.CopyLabel,
			BorrowDate: r.BorrowDate,
			DueDate:    r.DueDate,
			ReturnDate: r.ReturnDate,
			Status:     r.Status,
			Extensions: r.Extensions,
		}
		if r.Status == entities.LoanStatusActive {
			v.ExtensionsLeft = max(s.policy.MaxExtensions-r.Extensions, 0)
			v.OverdueDays = OverdueDays(r.DueDate, now)
			v.Overdue = v.OverdueDays > 0
		}
		if r.FineID != nil && r.FineAmount != nil {
			v.Fine = &FineView{ID: *r.FineID, Amount: *r.FineAmount}
		}
		views[i] = v
	}
	return views, nil
}
