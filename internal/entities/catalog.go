package entities

import (
	"time"

	"gorm.io/gorm"
)

type CopyStatus string

const (
	CopyStatusAvailable CopyStatus = "available"
	CopyStatusBorrowed  CopyStatus = "borrowed"
	CopyStatusDamaged   CopyStatus = "damaged"
	CopyStatusLost      CopyStatus = "lost"
	CopyStatusReserved  CopyStatus = "reserved"
)

// Valid reports whether s is one of the known copy statuses.
func (s CopyStatus) Valid() bool {
	switch s {
	case CopyStatusAvailable, CopyStatusBorrowed, CopyStatusDamaged, CopyStatusLost, CopyStatusReserved:
		return true
	}
	return false
}

// Book is a catalog entry. AvailableCopies is a projection of the copies
// table and is only ever changed by atomic increments in the same
// transaction as the copy status change it reflects.
type Book struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Title           string         `gorm:"index;size:512" json:"title"`
	Authors         string         `gorm:"index;size:512" json:"authors"`
	ISBN            string         `gorm:"index;size:20" json:"isbn,omitempty"`
	Publisher       string         `gorm:"size:256" json:"publisher,omitempty"`
	PublicationYear int            `json:"publication_year,omitempty"`
	Description     string         `gorm:"type:text" json:"description,omitempty"`
	CoverURL        string         `gorm:"size:2048" json:"cover_url,omitempty"`
	TotalCopies     int            `gorm:"not null;default:0" json:"total_copies"`
	AvailableCopies int            `gorm:"not null;default:0" json:"available_copies"`
	Copies          []Copy         `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE" json:"copies,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

type Copy struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	BookID         uint           `gorm:"index;not null" json:"book_id"`
	InventoryLabel string         `gorm:"uniqueIndex;size:64" json:"inventory_label"`
	Status         CopyStatus     `gorm:"index;size:20;default:'available'" json:"status"`
	Book           Book           `gorm:"foreignKey:BookID" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_reviews_user_book;not null" json:"user_id"`
	BookID    uint      `gorm:"uniqueIndex:idx_reviews_user_book;index;not null" json:"book_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Body      string    `gorm:"type:text" json:"body,omitempty"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Book      Book      `gorm:"foreignKey:BookID" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Favourite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_favourites_user_book;not null" json:"user_id"`
	BookID    uint      `gorm:"uniqueIndex:idx_favourites_user_book;not null" json:"book_id"`
	Book      Book      `gorm:"foreignKey:BookID" json:"book,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Book) TableName() string {
	return "books"
}

func (Copy) TableName() string {
	return "copies"
}

func (Review) TableName() string {
	return "reviews"
}

func (Favourite) TableName() string {
	return "favourites"
}
