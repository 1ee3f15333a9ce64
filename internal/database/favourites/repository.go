// Package favourites provides database operations for a reader's favourite books.
//
// This package implements the FavouritesStore interface defined in internal/http/favourites.go.
//
// # Interface Implementation
//
//	var _ http.FavouritesStore = (*Repository)(nil)
//
// # Usage
//
//	repo := favourites.NewRepository(db)
//	books, total, err := repo.GetFavouriteBooks(userID, 20, 0)
package favourites

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/entities"
)

// Repository handles all favourites database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new favourites repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SetBookFavourite marks or unmarks a book as the user's favourite.
// Marking twice or unmarking a non-favourite is a no-op.
func (r *Repository) SetBookFavourite(userID, bookID uint, isFavourite bool) error {
	if !isFavourite {
		return r.db.Where("user_id = ? AND book_id = ?", userID, bookID).
			Delete(&entities.Favourite{}).Error
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entities.Favourite{UserID: userID, BookID: bookID}).Error
}

// GetFavouriteBooks returns the user's favourite books with pagination.
func (r *Repository) GetFavouriteBooks(userID uint, limit, offset int) ([]entities.Book, int64, error) {
	var total int64
	err := r.db.Model(&entities.Favourite{}).
		Joins("JOIN books ON books.id = favourites.book_id AND books.deleted_at IS NULL").
		Where("favourites.user_id = ?", userID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	query := r.db.Preload("Book").
		Joins("JOIN books ON books.id = favourites.book_id AND books.deleted_at IS NULL").
		Where("favourites.user_id = ?", userID).
		Order("favourites.created_at DESC, favourites.id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var favs []entities.Favourite
	if err := query.Find(&favs).Error; err != nil {
		return nil, 0, err
	}

	books := make([]entities.Book, len(favs))
	for i, f := range favs {
		books[i] = f.Book
	}
	return books, total, nil
}

// IsFavourite reports whether the user marked the book as favourite.
func (r *Repository) IsFavourite(userID, bookID uint) (bool, error) {
	var count int64
	err := r.db.Model(&entities.Favourite{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Count(&count).Error
	return count > 0, err
}

// GetFavouriteCount returns how many users marked the book as favourite.
func (r *Repository) GetFavouriteCount(bookID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entities.Favourite{}).Where("book_id = ?", bookID).Count(&count).Error
	return count, err
}
