package circulation

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/loans"
	"github.com/mrlokans/librarian/internal/entities"
)

// CopyChange summarises an inventory write for the audit log.
type CopyChange struct {
	BookID          uint   `json:"book_id"`
	CopyIDs         []uint `json:"copy_ids,omitempty"`
	Count           int    `json:"count"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

// AddCopies adds count new available copies to a book and returns their IDs.
func (s *Service) AddCopies(ctx context.Context, actor AuthContext, bookID uint, count int) ([]uint, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if count <= 0 {
		return nil, ErrInvalidCount
	}

	var before, after CopyChange
	var ids []uint
	err := s.tx(ctx, func(tx *gorm.DB) error {
		inv := s.inventory(tx)
		book, err := activeBook(inv.ActiveBook(bookID))
		if err != nil {
			return err
		}
		before = CopyChange{BookID: bookID, TotalCopies: book.TotalCopies, AvailableCopies: book.AvailableCopies}

		ids, err = inv.AddCopies(book, count)
		if err != nil {
			return err
		}
		after = CopyChange{
			BookID:          bookID,
			CopyIDs:         ids,
			Count:           count,
			TotalCopies:     book.TotalCopies + count,
			AvailableCopies: book.AvailableCopies + count,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor.UserID, "copies_add", "book", bookID, before, after)
	return ids, nil
}

// RemoveCopies withdraws count available copies of a book. Either exactly
// count copies are removed or nothing changes.
func (s *Service) RemoveCopies(ctx context.Context, actor AuthContext, bookID uint, count int) (int, error) {
	if !actor.IsStaff() {
		return 0, ErrForbidden
	}
	if count <= 0 {
		return 0, ErrInvalidCount
	}

	var before CopyChange
	err := s.tx(ctx, func(tx *gorm.DB) error {
		inv := s.inventory(tx)
		book, err := activeBook(inv.ActiveBook(bookID))
		if err != nil {
			return err
		}
		before = CopyChange{BookID: bookID, TotalCopies: book.TotalCopies, AvailableCopies: book.AvailableCopies}

		removed, err := inv.RemoveCopies(bookID, count)
		if err != nil {
			return err
		}
		if removed != count {
			return ErrInsufficientAvailableCopies
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	after := CopyChange{
		BookID:          bookID,
		Count:           count,
		TotalCopies:     before.TotalCopies - count,
		AvailableCopies: before.AvailableCopies - count,
	}
	s.audit.Record(actor.UserID, "copies_remove", "book", bookID, before, after)
	return count, nil
}

// MarkCopyStatus moves a copy that is not on loan to another status.
func (s *Service) MarkCopyStatus(ctx context.Context, actor AuthContext, copyID uint, status entities.CopyStatus) (*entities.Copy, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if !status.Valid() || status == entities.CopyStatusBorrowed {
		return nil, ErrInvalidCopyStatus
	}

	var c *entities.Copy
	var from entities.CopyStatus
	err := s.tx(ctx, func(tx *gorm.DB) error {
		inv := s.inventory(tx)
		var err error
		c, err = inv.GetCopy(copyID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCopyNotFound
		}
		if err != nil {
			return err
		}
		from = c.Status

		ok, err := inv.SetCopyStatus(c, status)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCopyNotAvailable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor.UserID, "copy_status", "copy", copyID,
		map[string]any{"status": from}, map[string]any{"status": status})
	return c, nil
}

// ForceReturnAll closes every active loan on the book's copies in one
// transaction and returns how many were closed.
func (s *Service) ForceReturnAll(ctx context.Context, actor AuthContext, bookID uint) (int, error) {
	if !actor.IsAdmin() {
		return 0, ErrForbidden
	}

	now := s.clock()
	var receipts []*ReturnReceipt
	err := s.tx(ctx, func(tx *gorm.DB) error {
		if _, err := activeBook(s.inventory(tx).ActiveBook(bookID)); err != nil {
			return err
		}
		ids, err := loans.NewRepository(tx).ActiveIDsForBook(bookID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			r, err := s.closeLoanTx(tx, id, now)
			if err != nil {
				return fmt.Errorf("close loan %d: %w", id, err)
			}
			receipts = append(receipts, r)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.audit.Record(actor.UserID, "loans_force_return", "book", bookID, nil, map[string]any{"closed": len(receipts)})
	for _, r := range receipts {
		s.notifier.Notify(r.UserID, "Loan closed by the library",
			fmt.Sprintf("Your loan of %q was closed by library staff.", r.BookTitle))
	}
	return len(receipts), nil
}

func activeBook(book *entities.Book, err error) (*entities.Book, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	return book, err
}
