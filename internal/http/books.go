package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database/books"
	"github.com/mrlokans/librarian/internal/entities"
)

// BookCatalog is the read side of the catalog.
type BookCatalog interface {
	GetByID(id uint) (*entities.Book, error)
	GetByIDWithCopies(id uint) (*entities.Book, error)
	Search(q books.Query, limit, offset int) ([]entities.Book, int64, error)
}

// BookService creates, edits and removes catalog entries.
type BookService interface {
	CreateBook(ctx context.Context, actor circulation.AuthContext, nb circulation.NewBook) (*entities.Book, error)
	UpdateBook(ctx context.Context, actor circulation.AuthContext, bookID uint, u books.Update) (*entities.Book, error)
	DeleteBook(ctx context.Context, actor circulation.AuthContext, bookID uint) error
}

type BooksController struct {
	catalog BookCatalog
	service BookService
}

func NewBooksController(catalog BookCatalog, service BookService) *BooksController {
	return &BooksController{
		catalog: catalog,
		service: service,
	}
}

// CreateBookRequest is the body of POST /api/books.
type CreateBookRequest struct {
	Title           string `json:"title" binding:"required"`
	Authors         string `json:"authors"`
	ISBN            string `json:"isbn"`
	Publisher       string `json:"publisher"`
	PublicationYear int    `json:"publication_year"`
	Description     string `json:"description"`
	CoverURL        string `json:"cover_url"`
	Copies          int    `json:"copies"`
}

// UpdateBookRequest is the body of PATCH /api/books/:id. Omitted fields are
// left unchanged.
type UpdateBookRequest struct {
	Title           *string `json:"title"`
	Authors         *string `json:"authors"`
	ISBN            *string `json:"isbn"`
	Publisher       *string `json:"publisher"`
	PublicationYear *int    `json:"publication_year"`
	Description     *string `json:"description"`
	CoverURL        *string `json:"cover_url"`
}

// List handles GET /api/books
// Supports q, author, isbn, available=true and sort=title|newest|available.
func (bc *BooksController) List(c *gin.Context) {
	limit, offset := parsePagination(c)
	available, _ := strconv.ParseBool(c.Query("available"))
	q := books.Query{
		Text:          c.Query("q"),
		Author:        c.Query("author"),
		ISBN:          c.Query("isbn"),
		OnlyAvailable: available,
		Sort:          c.Query("sort"),
	}

	list, total, err := bc.catalog.Search(q, limit, offset)
	if err != nil {
		respondInternalError(c, err, "search books")
		return
	}
	respondPage(c, list, total, limit, offset)
}

// Get handles GET /api/books/:id
func (bc *BooksController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := bc.catalog.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondDomainError(c, circulation.ErrBookNotFound, "get book")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// Copies handles GET /api/books/:id/copies
func (bc *BooksController) Copies(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := bc.catalog.GetByIDWithCopies(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondDomainError(c, circulation.ErrBookNotFound, "list copies")
		return
	}
	if err != nil {
		respondInternalError(c, err, "list copies")
		return
	}

	copies := book.Copies
	if copies == nil {
		copies = []entities.Copy{}
	}
	c.JSON(http.StatusOK, gin.H{
		"book_id":          book.ID,
		"total_copies":     book.TotalCopies,
		"available_copies": book.AvailableCopies,
		"copies":           copies,
	})
}

// Create handles POST /api/books
func (bc *BooksController) Create(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "title is required")
		return
	}

	book, err := bc.service.CreateBook(c.Request.Context(), auth.Actor(c), circulation.NewBook{
		Title:           req.Title,
		Authors:         req.Authors,
		ISBN:            req.ISBN,
		Publisher:       req.Publisher,
		PublicationYear: req.PublicationYear,
		Description:     req.Description,
		CoverURL:        req.CoverURL,
		Copies:          req.Copies,
	})
	if err != nil {
		respondDomainError(c, err, "create book")
		return
	}
	c.JSON(http.StatusCreated, book)
}

// Update handles PATCH /api/books/:id
func (bc *BooksController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.Title != nil && *req.Title == "" {
		respondBadRequest(c, "title cannot be empty")
		return
	}

	book, err := bc.service.UpdateBook(c.Request.Context(), auth.Actor(c), id, books.Update{
		Title:           req.Title,
		Authors:         req.Authors,
		ISBN:            req.ISBN,
		Publisher:       req.Publisher,
		PublicationYear: req.PublicationYear,
		Description:     req.Description,
		CoverURL:        req.CoverURL,
	})
	if err != nil {
		respondDomainError(c, err, "update book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// Delete handles DELETE /api/books/:id
func (bc *BooksController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := bc.service.DeleteBook(c.Request.Context(), auth.Actor(c), id); err != nil {
		respondDomainError(c, err, "delete book")
		return
	}
	respondSuccess(c, "book deleted")
}
