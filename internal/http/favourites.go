package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/entities"
)

// FavouritesStore defines database operations for a reader's favourite books.
type FavouritesStore interface {
	SetBookFavourite(userID, bookID uint, isFavourite bool) error
	GetFavouriteBooks(userID uint, limit, offset int) ([]entities.Book, int64, error)
	IsFavourite(userID, bookID uint) (bool, error)
	GetFavouriteCount(bookID uint) (int64, error)
}

// BookLookup resolves a live book.
type BookLookup interface {
	GetByID(id uint) (*entities.Book, error)
}

type FavouritesController struct {
	store FavouritesStore
	books BookLookup
}

func NewFavouritesController(store FavouritesStore, books BookLookup) *FavouritesController {
	return &FavouritesController{store: store, books: books}
}

// List handles GET /api/favourites
func (fc *FavouritesController) List(c *gin.Context) {
	limit, offset := parsePagination(c)

	list, total, err := fc.store.GetFavouriteBooks(auth.GetUserID(c), limit, offset)
	if err != nil {
		respondInternalError(c, err, "list favourites")
		return
	}
	if list == nil {
		list = []entities.Book{}
	}
	respondPage(c, list, total, limit, offset)
}

// Add handles POST /api/books/:id/favourite
func (fc *FavouritesController) Add(c *gin.Context) {
	fc.set(c, true)
}

// Remove handles DELETE /api/books/:id/favourite
func (fc *FavouritesController) Remove(c *gin.Context) {
	fc.set(c, false)
}

func (fc *FavouritesController) set(c *gin.Context, favourite bool) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := fc.books.GetByID(bookID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondDomainError(c, circulation.ErrBookNotFound, "favourite")
			return
		}
		respondInternalError(c, err, "favourite")
		return
	}

	if err := fc.store.SetBookFavourite(auth.GetUserID(c), bookID, favourite); err != nil {
		respondInternalError(c, err, "favourite")
		return
	}
	count, err := fc.store.GetFavouriteCount(bookID)
	if err != nil {
		respondInternalError(c, err, "favourite count")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"book_id":         bookID,
		"is_favourite":    favourite,
		"favourite_count": count,
	})
}
