// Package reviews provides database operations for book reviews.
// A user holds at most one review per book; writing again replaces it.
package reviews

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/entities"
)

// Row is a review listing entry with the reviewer's username.
type Row struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	BookID    uint      `json:"book_id"`
	Rating    int       `json:"rating"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary aggregates the ratings of a book.
type Summary struct {
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert creates the user's review of the book or replaces its rating and body.
func (r *Repository) Upsert(review *entities.Review) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "body", "updated_at"}),
	}).Create(review).Error
}

// GetByID retrieves a review by ID.
func (r *Repository) GetByID(id uint) (*entities.Review, error) {
	var review entities.Review
	if err := r.db.First(&review, id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// GetForUserAndBook retrieves the user's review of the book.
func (r *Repository) GetForUserAndBook(userID, bookID uint) (*entities.Review, error) {
	var review entities.Review
	err := r.db.Where("user_id = ? AND book_id = ?", userID, bookID).First(&review).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// ListForBook returns a book's reviews, newest first.
func (r *Repository) ListForBook(bookID uint, limit, offset int) ([]Row, int64, error) {
	query := r.db.Table("reviews").
		Joins("JOIN users ON users.id = reviews.user_id").
		Where("reviews.book_id = ?", bookID)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Select("reviews.id, reviews.user_id, users.username, reviews.book_id, reviews.rating, reviews.body, reviews.created_at, reviews.updated_at").
		Order("reviews.updated_at DESC, reviews.id DESC")
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

// SummaryForBook returns the number of reviews and the average rating.
func (r *Repository) SummaryForBook(bookID uint) (Summary, error) {
	var s Summary
	err := r.db.Model(&entities.Review{}).
		Select("COUNT(id) AS count, COALESCE(AVG(rating), 0) AS average").
		Where("book_id = ?", bookID).
		Scan(&s).Error
	return s, err
}

// Delete removes a review.
func (r *Repository) Delete(id uint) error {
	res := r.db.Delete(&entities.Review{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
