// Package loans provides database operations for loan records.
//
// Closing and extending a loan are compare-and-swap updates keyed on the
// loan's current status (and extension count), so a loan can be closed at
// most once and never extended past a concurrent change.
package loans

import (
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
)

// Row is a denormalized loan listing entry with its book, copy and any
// outstanding fine.
type Row struct {
	ID         uint                `json:"id"`
	UserID     uint                `json:"user_id"`
	CopyID     uint                `json:"copy_id"`
	CopyLabel  string              `json:"copy_label"`
	BookID     uint                `json:"book_id"`
	BookTitle  string              `json:"book_title"`
	BorrowDate time.Time           `json:"borrow_date"`
	DueDate    time.Time           `json:"due_date"`
	ReturnDate *time.Time          `json:"return_date,omitempty"`
	Status     entities.LoanStatus `json:"status"`
	Extensions int                 `json:"extensions"`
	FineID     *uint               `json:"fine_id,omitempty"`
	FineAmount *int64              `json:"fine_amount,omitempty"`
}

// Filter narrows List.
type Filter struct {
	UserID      uint
	BookID      uint
	Status      entities.LoanStatus
	OverdueAsOf *time.Time
}

// Repository handles loan persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new loans repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new loan.
func (r *Repository) Create(loan *entities.Loan) error {
	return r.db.Create(loan).Error
}

// GetByID retrieves a loan by ID.
func (r *Repository) GetByID(id uint) (*entities.Loan, error) {
	var loan entities.Loan
	if err := r.db.First(&loan, id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// FindActiveForUserAndBook returns the oldest active loan the user holds on
// any copy of the book.
func (r *Repository) FindActiveForUserAndBook(userID, bookID uint) (*entities.Loan, error) {
	var loan entities.Loan
	err := r.db.
		Joins("JOIN copies ON copies.id = loans.copy_id").
		Where("loans.user_id = ? AND copies.book_id = ? AND loans.status = ?", userID, bookID, entities.LoanStatusActive).
		Order("loans.borrow_date ASC, loans.id ASC").
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// MarkReturned closes an active loan. It returns false when the loan was
// not active.
func (r *Repository) MarkReturned(id uint, at time.Time) (bool, error) {
	res := r.db.Model(&entities.Loan{}).
		Where("id = ? AND status = ?", id, entities.LoanStatusActive).
		Updates(map[string]any{
			"status":      entities.LoanStatusReturned,
			"return_date": at,
		})
	return res.RowsAffected == 1, res.Error
}

// Extend moves the due date of an active loan and bumps its extension
// counter, provided the counter still equals expected.
func (r *Repository) Extend(id uint, expected int, due time.Time) (bool, error) {
	res := r.db.Model(&entities.Loan{}).
		Where("id = ? AND status = ? AND extensions = ?", id, entities.LoanStatusActive, expected).
		Updates(map[string]any{
			"due_date":   due,
			"extensions": gorm.Expr("extensions + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

// ActiveIDsForBook lists the IDs of active loans on any copy of the book.
func (r *Repository) ActiveIDsForBook(bookID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&entities.Loan{}).
		Joins("JOIN copies ON copies.id = loans.copy_id").
		Where("copies.book_id = ? AND loans.status = ?", bookID, entities.LoanStatusActive).
		Order("loans.id ASC").
		Pluck("loans.id", &ids).Error
	return ids, err
}

// CountActiveForBook counts active loans on any copy of the book.
func (r *Repository) CountActiveForBook(bookID uint) (int64, error) {
	var n int64
	err := r.db.Model(&entities.Loan{}).
		Joins("JOIN copies ON copies.id = loans.copy_id").
		Where("copies.book_id = ? AND loans.status = ?", bookID, entities.LoanStatusActive).
		Count(&n).Error
	return n, err
}

// OverdueWithoutFine returns active loans past due as of now that carry no
// accrued fine. Loans whose earlier fine was paid or cancelled are included
// again. A zero userID selects loans of every user.
func (r *Repository) OverdueWithoutFine(userID uint, now time.Time) ([]entities.Loan, error) {
	var list []entities.Loan
	query := r.db.
		Where("status = ? AND due_date < ?", entities.LoanStatusActive, now).
		Where("NOT EXISTS (SELECT 1 FROM fines WHERE fines.loan_id = loans.id AND fines.status = ?)", entities.FineStatusAccrued)
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	err := query.Order("id ASC").Find(&list).Error
	return list, err
}

// HasBorrowed reports whether the user ever held a loan on the book.
func (r *Repository) HasBorrowed(userID, bookID uint) (bool, error) {
	var n int64
	err := r.db.Model(&entities.Loan{}).
		Joins("JOIN copies ON copies.id = loans.copy_id").
		Where("loans.user_id = ? AND copies.book_id = ?", userID, bookID).
		Count(&n).Error
	return n > 0, err
}

// List returns denormalized loan rows, newest first, with the total count.
func (r *Repository) List(f Filter, limit, offset int) ([]Row, int64, error) {
	query := r.db.Table("loans").
		Joins("JOIN copies ON copies.id = loans.copy_id").
		Joins("JOIN books ON books.id = copies.book_id").
		Joins("LEFT JOIN fines ON fines.loan_id = loans.id AND fines.status = ?", entities.FineStatusAccrued)
	if f.UserID > 0 {
		query = query.Where("loans.user_id = ?", f.UserID)
	}
	if f.BookID > 0 {
		query = query.Where("copies.book_id = ?", f.BookID)
	}
	if f.Status != "" {
		query = query.Where("loans.status = ?", f.Status)
	}
	if f.OverdueAsOf != nil {
		query = query.Where("loans.status = ? AND loans.due_date < ?", entities.LoanStatusActive, *f.OverdueAsOf)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Select(`loans.id, loans.user_id, loans.copy_id,
		copies.inventory_label AS copy_label, books.id AS book_id, books.title AS book_title,
		loans.borrow_date, loans.due_date, loans.return_date, loans.status, loans.extensions,
		fines.id AS fine_id, fines.amount AS fine_amount`).
		Order("loans.borrow_date DESC, loans.id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []Row
	err := query.Scan(&rows).Error
	return rows, total, err
}
