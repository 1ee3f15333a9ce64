// Package fines provides database operations for overdue fines.
//
// At most one accrued fine exists per loan. The partial unique index
// idx_fines_accrued_loan enforces this in storage and InsertAccrued relies
// on it with ON CONFLICT DO NOTHING.
package fines

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/entities"
)

// Row is a fine listing entry joined with its loan and book.
type Row struct {
	ID        uint                `json:"id"`
	LoanID    uint                `json:"loan_id"`
	UserID    uint                `json:"user_id"`
	Username  string              `json:"username"`
	BookID    uint                `json:"book_id"`
	BookTitle string              `json:"book_title"`
	Amount    int64               `json:"amount"`
	Status    entities.FineStatus `json:"status"`
	AccruedAt time.Time           `json:"accrued_at"`
	SettledAt *time.Time          `json:"settled_at,omitempty"`
}

// Filter narrows List.
type Filter struct {
	UserID uint
	Status entities.FineStatus
}

// Repository handles fine persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new fines repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InsertAccrued records an accrued fine for the loan. It returns false when
// the loan already carries an accrued fine.
func (r *Repository) InsertAccrued(loanID uint, amount int64, at time.Time) (*entities.Fine, bool, error) {
	fine := &entities.Fine{
		LoanID:    loanID,
		Amount:    amount,
		Status:    entities.FineStatusAccrued,
		AccruedAt: at,
	}
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(fine)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return fine, res.RowsAffected == 1, nil
}

// GetByID retrieves a fine by ID.
func (r *Repository) GetByID(id uint) (*entities.Fine, error) {
	var fine entities.Fine
	if err := r.db.Preload("Loan").First(&fine, id).Error; err != nil {
		return nil, err
	}
	return &fine, nil
}

// AccruedForLoan returns the loan's accrued fine, or nil if there is none.
func (r *Repository) AccruedForLoan(loanID uint) (*entities.Fine, error) {
	var fine entities.Fine
	err := r.db.Where("loan_id = ? AND status = ?", loanID, entities.FineStatusAccrued).First(&fine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

// OutstandingForUser returns the number and total amount of accrued fines
// on the user's loans.
func (r *Repository) OutstandingForUser(userID uint) (int64, int64, error) {
	var out struct {
		Count int64
		Total int64
	}
	err := r.db.Model(&entities.Fine{}).
		Select("COUNT(fines.id) AS count, COALESCE(SUM(fines.amount), 0) AS total").
		Joins("JOIN loans ON loans.id = fines.loan_id").
		Where("loans.user_id = ? AND fines.status = ?", userID, entities.FineStatusAccrued).
		Scan(&out).Error
	return out.Count, out.Total, err
}

// Settle moves an accrued fine to a terminal status. It returns false when
// the fine was not accrued.
func (r *Repository) Settle(id uint, status entities.FineStatus, at time.Time) (bool, error) {
	res := r.db.Model(&entities.Fine{}).
		Where("id = ? AND status = ?", id, entities.FineStatusAccrued).
		Updates(map[string]any{
			"status":     status,
			"settled_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

// List returns fines matching the filter, newest first, with the total count.
func (r *Repository) List(f Filter, limit, offset int) ([]Row, int64, error) {
	query := r.db.Table("fines").
		Joins("JOIN loans ON loans.id = fines.loan_id").
		Joins("JOIN users ON users.id = loans.user_id").
		Joins("JOIN copies ON copies.id = loans.copy_id").
		Joins("JOIN books ON books.id = copies.book_id")
	if f.UserID > 0 {
		query = query.Where("loans.user_id = ?", f.UserID)
	}
	if f.Status != "" {
		query = query.Where("fines.status = ?", f.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Select(`fines.id, fines.loan_id, loans.user_id, users.username,
		books.id AS book_id, books.title AS book_title,
		fines.amount, fines.status, fines.accrued_at, fines.settled_at`).
		Order("fines.accrued_at DESC, fines.id DESC")
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
