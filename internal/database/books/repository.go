// Package books provides database operations for the catalog.
//
// Books are created and deleted through the circulation service so that
// copies and counters stay consistent; this package covers catalog reads,
// search and metadata edits.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	list, total, err := repo.Search(books.Query{Text: "tolkien", OnlyAvailable: true}, 20, 0)
package books

import (
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
)

// Query describes a catalog search.
type Query struct {
	Text          string
	Author        string
	ISBN          string
	OnlyAvailable bool
	Sort          string // "title", "newest" or "available"
}

// Update carries the editable metadata of a book. Nil fields are left as is.
type Update struct {
	Title           *string
	Authors         *string
	ISBN            *string
	Publisher       *string
	PublicationYear *int
	Description     *string
	CoverURL        *string
}

// Repository handles catalog reads and metadata updates.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a book by ID.
func (r *Repository) GetByID(id uint) (*entities.Book, error) {
	var book entities.Book
	if err := r.db.First(&book, id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// GetByIDWithCopies retrieves a book together with its live copies.
func (r *Repository) GetByIDWithCopies(id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Preload("Copies", func(db *gorm.DB) *gorm.DB {
		return db.Order("copies.id ASC")
	}).First(&book, id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// Search returns books matching q with the total count.
func (r *Repository) Search(q Query, limit, offset int) ([]entities.Book, int64, error) {
	query := r.db.Model(&entities.Book{})
	if text := strings.TrimSpace(q.Text); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(authors) LIKE ? OR isbn = ?", like, like, text)
	}
	if q.Author != "" {
		query = query.Where("LOWER(authors) LIKE ?", "%"+strings.ToLower(q.Author)+"%")
	}
	if q.ISBN != "" {
		query = query.Where("isbn = ?", q.ISBN)
	}
	if q.OnlyAvailable {
		query = query.Where("available_copies > 0")
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch q.Sort {
	case "newest":
		query = query.Order("created_at DESC, id DESC")
	case "available":
		query = query.Order("available_copies DESC, title ASC")
	default:
		query = query.Order("title ASC, id ASC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var list []entities.Book
	err := query.Find(&list).Error
	return list, total, err
}

// UpdateMetadata applies the non-nil fields of u. Counters are never touched.
func (r *Repository) UpdateMetadata(id uint, u Update) (*entities.Book, error) {
	fields := map[string]any{}
	if u.Title != nil {
		fields["title"] = *u.Title
	}
	if u.Authors != nil {
		fields["authors"] = *u.Authors
	}
	if u.ISBN != nil {
		fields["isbn"] = *u.ISBN
	}
	if u.Publisher != nil {
		fields["publisher"] = *u.Publisher
	}
	if u.PublicationYear != nil {
		fields["publication_year"] = *u.PublicationYear
	}
	if u.Description != nil {
		fields["description"] = *u.Description
	}
	if u.CoverURL != nil {
		fields["cover_url"] = *u.CoverURL
	}

	if len(fields) > 0 {
		res := r.db.Model(&entities.Book{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return r.GetByID(id)
}

// Count returns the number of live books.
func (r *Repository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&entities.Book{}).Count(&n).Error
	return n, err
}
