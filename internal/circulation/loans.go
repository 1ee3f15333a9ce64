package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/fines"
	"github.com/mrlokans/librarian/internal/database/loans"
	"github.com/mrlokans/librarian/internal/entities"
)

// LoanRequest describes a borrow. Exactly one of BookID and CopyID is set.
// A zero UserID borrows for the actor. LoanPeriodDays is honoured for staff
// only; readers always get the default period.
type LoanRequest struct {
	UserID         uint
	BookID         uint
	CopyID         uint
	LoanPeriodDays int
}

type LoanReceipt struct {
	LoanID    uint      `json:"loan_id"`
	UserID    uint      `json:"user_id"`
	BookID    uint      `json:"book_id"`
	BookTitle string    `json:"book_title"`
	CopyID    uint      `json:"copy_id"`
	DueDate   time.Time `json:"due_date"`
}

type ReturnReceipt struct {
	LoanID     uint   `json:"loan_id"`
	UserID     uint   `json:"user_id"`
	CopyID     uint   `json:"copy_id"`
	BookID     uint   `json:"book_id"`
	BookTitle  string `json:"book_title"`
	HadFine    bool   `json:"had_fine"`
	FineAmount int64  `json:"fine_amount"`
}

type ExtensionReceipt struct {
	LoanID         uint      `json:"loan_id"`
	NewDueDate     time.Time `json:"new_due_date"`
	ExtensionsLeft int       `json:"extensions_left"`
}

// CreateLoan lends one copy to a reader.
func (s *Service) CreateLoan(ctx context.Context, actor AuthContext, req LoanRequest) (*LoanReceipt, error) {
	if (req.BookID == 0) == (req.CopyID == 0) {
		return nil, ErrInvalidLoanTarget
	}
	userID := req.UserID
	if userID == 0 {
		userID = actor.UserID
	}
	onBehalf := userID != actor.UserID
	if onBehalf && !actor.IsStaff() {
		return nil, ErrForbidden
	}

	period := s.policy.LoanPeriodDays
	if actor.IsStaff() && req.LoanPeriodDays != 0 {
		if req.LoanPeriodDays < 1 || req.LoanPeriodDays > maxLoanPeriodDays {
			return nil, ErrInvalidLoanPeriod
		}
		period = req.LoanPeriodDays
	}

	borrower, err := s.users(ctx).GetUserByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}
	if !borrower.Active {
		return nil, ErrUserInactive
	}
	if onBehalf && borrower.Role != entities.UserRoleReader {
		return nil, ErrBorrowerNotReader
	}

	if _, err := s.ReconcileOverdueFines(ctx, userID); err != nil {
		return nil, err
	}

	now := s.clock()
	receipt := &LoanReceipt{UserID: userID}
	err = s.tx(ctx, func(tx *gorm.DB) error {
		count, _, err := fines.NewRepository(tx).OutstandingForUser(userID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrUnpaidFinesBlock
		}

		inv := s.inventory(tx)
		var c *entities.Copy
		if req.BookID != 0 {
			if _, err := activeBook(inv.ActiveBook(req.BookID)); err != nil {
				return err
			}
			copyID, err := inv.ReserveOneCopy(req.BookID)
			if err != nil {
				return err
			}
			if copyID == 0 {
				return ErrNoCopyAvailable
			}
			if c, err = inv.GetCopy(copyID); err != nil {
				return err
			}
		} else {
			c, err = inv.GetCopy(req.CopyID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCopyNotFound
			}
			if err != nil {
				return err
			}
			won, err := inv.ReserveCopy(c)
			if err != nil {
				return err
			}
			if !won {
				return ErrCopyNotAvailable
			}
		}

		book, err := activeBook(inv.ActiveBook(c.BookID))
		if err != nil {
			return err
		}

		loan := &entities.Loan{
			UserID:     userID,
			CopyID:     c.ID,
			BorrowDate: now,
			DueDate:    now.AddDate(0, 0, period),
			Status:     entities.LoanStatusActive,
		}
		if err := loans.NewRepository(tx).Create(loan); err != nil {
			return err
		}

		receipt.LoanID = loan.ID
		receipt.CopyID = c.ID
		receipt.BookID = book.ID
		receipt.BookTitle = book.Title
		receipt.DueDate = loan.DueDate
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor.UserID, "loan_create", "loan", receipt.LoanID, nil, receipt)
	s.notifier.Notify(userID, "Book borrowed",
		fmt.Sprintf("You borrowed %q. Please return it by %s.", receipt.BookTitle, receipt.DueDate.Format("2006-01-02")))
	return receipt, nil
}

// CloseLoan returns a loan and releases its copy.
func (s *Service) CloseLoan(ctx context.Context, actor AuthContext, loanID uint) (*ReturnReceipt, error) {
	loan, err := s.loans(ctx).GetByID(loanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}
	if loan.UserID != actor.UserID && !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if loan.Status != entities.LoanStatusActive {
		return nil, ErrLoanAlreadyReturned
	}

	if _, err := s.ReconcileOverdueFines(ctx, loan.UserID); err != nil {
		return nil, err
	}

	now := s.clock()
	var receipt *ReturnReceipt
	err = s.tx(ctx, func(tx *gorm.DB) error {
		var err error
		receipt, err = s.closeLoanTx(tx, loanID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor.UserID, "loan_close", "loan", loanID,
		map[string]any{"status": entities.LoanStatusActive}, receipt)
	msg := fmt.Sprintf("You returned %q.", receipt.BookTitle)
	if receipt.HadFine {
		msg += fmt.Sprintf(" An overdue fine of %d is outstanding.", receipt.FineAmount)
	}
	s.notifier.Notify(receipt.UserID, "Book returned", msg)
	return receipt, nil
}

// SelfReturn closes the actor's active loan of a copy of the book.
func (s *Service) SelfReturn(ctx context.Context, actor AuthContext, bookID uint) (*ReturnReceipt, error) {
	loan, err := s.loans(ctx).FindActiveForUserAndBook(actor.UserID, bookID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveLoanForBook
	}
	if err != nil {
		return nil, storeError(err)
	}
	return s.CloseLoan(ctx, actor, loan.ID)
}

// closeLoanTx closes an active loan, releases its copy and reports any
// accrued fine. It must run inside a transaction.
func (s *Service) closeLoanTx(tx *gorm.DB, loanID uint, now time.Time) (*ReturnReceipt, error) {
	lr := loans.NewRepository(tx)
	closed, err := lr.MarkReturned(loanID, now)
	if err != nil {
		return nil, err
	}
	if !closed {
		if _, err := lr.GetByID(loanID); errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, ErrLoanAlreadyReturned
	}

	loan, err := lr.GetByID(loanID)
	if err != nil {
		return nil, err
	}

	inv := s.inventory(tx)
	if _, err := inv.ReleaseCopy(loan.CopyID); err != nil {
		return nil, err
	}
	c, err := inv.GetCopy(loan.CopyID)
	if err != nil {
		return nil, err
	}
	var book entities.Book
	if err := tx.Unscoped().First(&book, c.BookID).Error; err != nil {
		return nil, err
	}

	receipt := &ReturnReceipt{
		LoanID:    loan.ID,
		UserID:    loan.UserID,
		CopyID:    loan.CopyID,
		BookID:    book.ID,
		BookTitle: book.Title,
	}
	fine, err := fines.NewRepository(tx).AccruedForLoan(loanID)
	if err != nil {
		return nil, err
	}
	if fine != nil {
		receipt.HadFine = true
		receipt.FineAmount = fine.Amount
	}
	return receipt, nil
}

// ExtendLoan pushes the due date of the actor's own loan.
func (s *Service) ExtendLoan(ctx context.Context, actor AuthContext, loanID uint) (*ExtensionReceipt, error) {
	loan, err := s.loans(ctx).GetByID(loanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}
	if loan.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	if loan.Status != entities.LoanStatusActive || loan.ReturnDate != nil {
		return nil, ErrLoanAlreadyReturned
	}
	if loan.Extensions >= s.policy.MaxExtensions {
		return nil, ErrExtensionLimitReached
	}

	if _, err := s.ReconcileOverdueFines(ctx, loan.UserID); err != nil {
		return nil, err
	}

	now := s.clock()
	base := loan.DueDate
	if now.After(base) {
		base = now
	}
	receipt := &ExtensionReceipt{
		LoanID:         loanID,
		NewDueDate:     base.AddDate(0, 0, s.policy.ExtensionDays),
		ExtensionsLeft: s.policy.MaxExtensions - loan.Extensions - 1,
	}

	err = s.tx(ctx, func(tx *gorm.DB) error {
		fine, err := fines.NewRepository(tx).AccruedForLoan(loanID)
		if err != nil {
			return err
		}
		if fine != nil {
			return ErrUnpaidFineBlocksExtension
		}

		lr := loans.NewRepository(tx)
		ok, err := lr.Extend(loanID, loan.Extensions, receipt.NewDueDate)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		current, err := lr.GetByID(loanID)
		if err != nil {
			return err
		}
		switch {
		case current.Status != entities.LoanStatusActive:
			return ErrLoanAlreadyReturned
		case current.Extensions >= s.policy.MaxExtensions:
			return ErrExtensionLimitReached
		default:
			return ErrLoanChanged
		}
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor.UserID, "loan_extend", "loan", loanID,
		map[string]any{"due_date": loan.DueDate, "extensions": loan.Extensions},
		map[string]any{"due_date": receipt.NewDueDate, "extensions": loan.Extensions + 1})
	return receipt, nil
}
