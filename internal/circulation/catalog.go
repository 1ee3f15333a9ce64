package circulation

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/books"
	"github.com/mrlokans/librarian/internal/database/loans"
	"github.com/mrlokans/librarian/internal/database/reviews"
	"github.com/mrlokans/librarian/internal/entities"
)

// NewBook is the catalog data for CreateBook.
type NewBook struct {
	Title           string
	Authors         string
	ISBN            string
	Publisher       string
	PublicationYear int
	Description     string
	CoverURL        string
	Copies          int
}

// CreateBook adds a catalog entry together with its initial copies.
func (s *Service) CreateBook(ctx context.Context, actor AuthContext, nb NewBook) (*entities.Book, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if nb.Copies < 0 {
		return nil, ErrInvalidCount
	}

	book := &entities.Book{
		Title:           strings.TrimSpace(nb.Title),
		Authors:         strings.TrimSpace(nb.Authors),
		ISBN:            strings.TrimSpace(nb.ISBN),
		Publisher:       nb.Publisher,
		PublicationYear: nb.PublicationYear,
		Description:     nb.Description,
		CoverURL:        nb.CoverURL,
	}
	err := s.tx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(book).Error; err != nil {
			return err
		}
		if nb.Copies == 0 {
			return nil
		}
		if _, err := s.inventory(tx).AddCopies(book, nb.Copies); err != nil {
			return err
		}
		book.TotalCopies = nb.Copies
		book.AvailableCopies = nb.Copies
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor.UserID, "book_create", "book", book.ID, nil, book)
	return book, nil
}

// UpdateBook edits catalog metadata. Copy counters are not editable here.
func (s *Service) UpdateBook(ctx context.Context, actor AuthContext, bookID uint, u books.Update) (*entities.Book, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	repo := books.NewRepository(s.session(ctx))
	before, err := repo.GetByID(bookID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}

	after, err := repo.UpdateMetadata(bookID, u)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}

	s.audit.Record(actor.UserID, "book_update", "book", bookID, before, after)
	return after, nil
}

// DeleteBook soft-deletes a book and its copies. Books with active loans
// cannot be deleted.
func (s *Service) DeleteBook(ctx context.Context, actor AuthContext, bookID uint) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	var snapshot *entities.Book
	err := s.tx(ctx, func(tx *gorm.DB) error {
		inv := s.inventory(tx)
		book, err := activeBook(inv.ActiveBook(bookID))
		if err != nil {
			return err
		}
		snapshot = book

		active, err := loans.NewRepository(tx).CountActiveForBook(bookID)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrBookHasActiveLoans
		}
		return inv.SoftDeleteBook(bookID)
	})
	if err != nil {
		return err
	}

	s.audit.Record(actor.UserID, "book_delete", "book", bookID, snapshot, nil)
	return nil
}

// WriteReview stores the actor's review of a book they have borrowed before.
func (s *Service) WriteReview(ctx context.Context, actor AuthContext, bookID uint, rating int, body string) (*entities.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	if _, err := activeBook(s.inventory(s.session(ctx)).ActiveBook(bookID)); err != nil {
		return nil, storeError(err)
	}

	borrowed, err := s.loans(ctx).HasBorrowed(actor.UserID, bookID)
	if err != nil {
		return nil, storeError(err)
	}
	if !borrowed {
		return nil, ErrReviewNotAllowed
	}

	repo := reviews.NewRepository(s.session(ctx))
	review := &entities.Review{
		UserID: actor.UserID,
		BookID: bookID,
		Rating: rating,
		Body:   strings.TrimSpace(body),
	}
	if err := repo.Upsert(review); err != nil {
		return nil, storeError(err)
	}
	saved, err := repo.GetForUserAndBook(actor.UserID, bookID)
	if err != nil {
		return nil, storeError(err)
	}
	return saved, nil
}

// DeleteReview removes a review. Readers may only remove their own.
func (s *Service) DeleteReview(ctx context.Context, actor AuthContext, reviewID uint) error {
	repo := reviews.NewRepository(s.session(ctx))
	review, err := repo.GetByID(reviewID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrReviewNotFound
	}
	if err != nil {
		return storeError(err)
	}
	if review.UserID != actor.UserID && !actor.IsStaff() {
		return ErrForbidden
	}
	if err := repo.Delete(reviewID); err != nil {
		return storeError(err)
	}
	s.audit.Record(actor.UserID, "review_delete", "review", reviewID, review, nil)
	return nil
}
