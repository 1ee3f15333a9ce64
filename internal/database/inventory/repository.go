// Package inventory provides the storage primitives of the inventory ledger:
// copy status transitions and the per-book availability counters.
//
// Every status change is a compare-and-swap UPDATE guarded by the expected
// current status, and every counter change is an atomic "col = col ± n"
// UPDATE. Callers are expected to run these inside one transaction (see
// WithTx) so that a copy transition and its counter adjustment commit
// together.
package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/entities"
)

// ErrCounterUnderflow is returned when a decrement would drive
// books.available_copies below zero. It means the counter has drifted from
// the copies table and the enclosing transaction must be rolled back.
var ErrCounterUnderflow = errors.New("available copies counter would become negative")

const (
	// reserveBatch is how many candidate copies are fetched per reservation
	// pass when rows are not locked.
	reserveBatch = 5
	// reservePasses bounds how often the candidate set is refreshed after
	// every candidate was taken by a concurrent reservation.
	reservePasses = 3
)

// Repository handles copy and availability-counter writes.
type Repository struct {
	db       *gorm.DB
	lockRows bool

	// pinned is called with every candidate set before the CAS runs.
	pinned func(ids []uint)
}

// NewRepository creates a new inventory repository. lockRows enables
// SELECT ... FOR UPDATE SKIP LOCKED when pinning candidate copies, which is
// only supported by PostgreSQL.
func NewRepository(db *gorm.DB, lockRows bool) *Repository {
	return &Repository{db: db, lockRows: lockRows}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx, lockRows: r.lockRows, pinned: r.pinned}
}

// ActiveBook loads a book that has not been soft-deleted.
func (r *Repository) ActiveBook(bookID uint) (*entities.Book, error) {
	var book entities.Book
	if err := r.db.First(&book, bookID).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// GetCopy loads a copy that has not been soft-deleted.
func (r *Repository) GetCopy(copyID uint) (*entities.Copy, error) {
	var c entities.Copy
	if err := r.db.First(&c, copyID).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCopies returns all live copies of a book ordered by ID.
func (r *Repository) ListCopies(bookID uint) ([]entities.Copy, error) {
	var copies []entities.Copy
	err := r.db.Where("book_id = ?", bookID).Order("id ASC").Find(&copies).Error
	return copies, err
}

// AddCopies inserts count available copies and raises both counters.
func (r *Repository) AddCopies(book *entities.Book, count int) ([]uint, error) {
	prefix := book.ISBN
	if prefix == "" {
		prefix = fmt.Sprintf("BK%d", book.ID)
	}

	copies := make([]entities.Copy, count)
	for i := range copies {
		copies[i] = entities.Copy{
			BookID:         book.ID,
			InventoryLabel: newLabel(prefix),
			Status:         entities.CopyStatusAvailable,
		}
	}
	if err := r.db.Create(&copies).Error; err != nil {
		return nil, fmt.Errorf("insert copies: %w", err)
	}

	err := r.db.Model(&entities.Book{}).Unscoped().
		Where("id = ?", book.ID).
		Updates(map[string]any{
			"total_copies":     gorm.Expr("total_copies + ?", count),
			"available_copies": gorm.Expr("available_copies + ?", count),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("increment counters: %w", err)
	}

	ids := make([]uint, len(copies))
	for i, c := range copies {
		ids[i] = c.ID
	}
	return ids, nil
}

// RemoveCopies soft-deletes count available copies of a book and lowers both
// counters. It returns 0 without error when the book does not have count
// available copies; the caller must then roll back, since the counter
// decrement may already have been applied.
func (r *Repository) RemoveCopies(bookID uint, count int) (int, error) {
	res := r.db.Model(&entities.Book{}).
		Where("id = ? AND available_copies >= ?", bookID, count).
		Updates(map[string]any{
			"total_copies":     gorm.Expr("total_copies - ?", count),
			"available_copies": gorm.Expr("available_copies - ?", count),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("decrement counters: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}

	ids, err := r.pinAvailable(bookID, count)
	if err != nil {
		return 0, err
	}
	if len(ids) < count {
		return 0, nil
	}

	res = r.db.Where("id IN ? AND status = ?", ids, entities.CopyStatusAvailable).Delete(&entities.Copy{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete copies: %w", res.Error)
	}
	if int(res.RowsAffected) != count {
		return 0, nil
	}
	return count, nil
}

// ReserveOneCopy flips one available copy of the book to borrowed and
// decrements the availability counter. It returns 0 when no copy could be
// reserved. A copy is only won when the guarded UPDATE affected exactly one
// row, so two callers can never receive the same copy.
//
// With row locking each pass pins a single copy. Locks are held until
// commit, so pinning a batch would hide the unused copies from concurrent
// reservations that skip locked rows.
func (r *Repository) ReserveOneCopy(bookID uint) (uint, error) {
	batch := reserveBatch
	if r.lockRows {
		batch = 1
	}
	for pass := 0; pass < reservePasses; pass++ {
		candidates, err := r.pinAvailable(bookID, batch)
		if err != nil {
			return 0, err
		}
		if len(candidates) == 0 {
			return 0, nil
		}
		if r.pinned != nil {
			r.pinned(candidates)
		}

		for _, id := range candidates {
			won, err := r.transition(id, entities.CopyStatusAvailable, entities.CopyStatusBorrowed)
			if err != nil {
				return 0, err
			}
			if !won {
				continue
			}
			if err := r.adjustAvailable(bookID, -1); err != nil {
				return 0, err
			}
			return id, nil
		}
	}
	return 0, nil
}

// ReserveCopy flips a specific copy from available to borrowed. It returns
// false when the copy was not available.
func (r *Repository) ReserveCopy(c *entities.Copy) (bool, error) {
	won, err := r.transition(c.ID, entities.CopyStatusAvailable, entities.CopyStatusBorrowed)
	if err != nil || !won {
		return false, err
	}
	if err := r.adjustAvailable(c.BookID, -1); err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseCopy flips a borrowed copy back to available and increments the
// counter. Releasing a copy that is not borrowed is a no-op that reports
// false, so repeated calls never double-increment.
func (r *Repository) ReleaseCopy(copyID uint) (bool, error) {
	c, err := r.GetCopy(copyID)
	if err != nil {
		return false, err
	}
	won, err := r.transition(copyID, entities.CopyStatusBorrowed, entities.CopyStatusAvailable)
	if err != nil || !won {
		return false, err
	}
	if err := r.adjustAvailable(c.BookID, 1); err != nil {
		return false, err
	}
	return true, nil
}

// SetCopyStatus moves a non-borrowed copy to another non-borrowed status and
// keeps the availability counter in step. It returns false when the copy is
// currently borrowed or changed concurrently.
func (r *Repository) SetCopyStatus(c *entities.Copy, to entities.CopyStatus) (bool, error) {
	from := c.Status
	if from == entities.CopyStatusBorrowed || to == entities.CopyStatusBorrowed {
		return false, nil
	}
	if from == to {
		return true, nil
	}

	won, err := r.transition(c.ID, from, to)
	if err != nil || !won {
		return false, err
	}

	switch {
	case from == entities.CopyStatusAvailable:
		err = r.adjustAvailable(c.BookID, -1)
	case to == entities.CopyStatusAvailable:
		err = r.adjustAvailable(c.BookID, 1)
	}
	if err != nil {
		return false, err
	}
	c.Status = to
	return true, nil
}

// Recount recomputes both counters of a book from the copies table and
// returns the previous and new available counts.
func (r *Repository) Recount(bookID uint) (before, after int, err error) {
	var book entities.Book
	if err := r.db.Unscoped().First(&book, bookID).Error; err != nil {
		return 0, 0, err
	}

	var available, total int64
	if err := r.db.Model(&entities.Copy{}).
		Where("book_id = ? AND status = ?", bookID, entities.CopyStatusAvailable).
		Count(&available).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.Model(&entities.Copy{}).Where("book_id = ?", bookID).Count(&total).Error; err != nil {
		return 0, 0, err
	}

	err = r.db.Model(&entities.Book{}).Unscoped().
		Where("id = ?", bookID).
		Updates(map[string]any{
			"available_copies": available,
			"total_copies":     total,
		}).Error
	if err != nil {
		return 0, 0, err
	}
	return book.AvailableCopies, int(available), nil
}

// CountAvailable returns the number of live available copies of a book.
func (r *Repository) CountAvailable(bookID uint) (int64, error) {
	var n int64
	err := r.db.Model(&entities.Copy{}).
		Where("book_id = ? AND status = ?", bookID, entities.CopyStatusAvailable).
		Count(&n).Error
	return n, err
}

// SoftDeleteBook soft-deletes a book together with all its live copies.
func (r *Repository) SoftDeleteBook(bookID uint) error {
	if err := r.db.Where("book_id = ?", bookID).Delete(&entities.Copy{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&entities.Book{}, bookID).Error
}

func (r *Repository) pinAvailable(bookID uint, limit int) ([]uint, error) {
	var ids []uint
	q := r.db.Model(&entities.Copy{}).
		Where("book_id = ? AND status = ?", bookID, entities.CopyStatusAvailable).
		Order("id ASC").
		Limit(limit)
	if r.lockRows {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("select available copies: %w", err)
	}
	return ids, nil
}

func (r *Repository) transition(copyID uint, from, to entities.CopyStatus) (bool, error) {
	res := r.db.Model(&entities.Copy{}).
		Where("id = ? AND status = ?", copyID, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("update copy status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) adjustAvailable(bookID uint, delta int) error {
	q := r.db.Model(&entities.Book{}).Unscoped().Where("id = ?", bookID)
	if delta < 0 {
		q = q.Where("available_copies >= ?", -delta)
	}
	res := q.Update("available_copies", gorm.Expr("available_copies + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("adjust available copies: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCounterUnderflow
	}
	return nil
}

func newLabel(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(prefix + "-" + id[:8])
}
