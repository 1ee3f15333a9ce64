// Package dbtest holds fixtures shared by the repository and service tests.
// Each test gets its own SQLite file under t.TempDir.
package dbtest

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

// New opens a fresh migrated database that is closed when the test ends.
func New(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// CreateUser inserts an active user with the given role.
func CreateUser(t *testing.T, db *database.Database, username string, role entities.UserRole) *entities.User {
	t.Helper()
	user := &entities.User{
		Username:     username,
		Email:        username + "@example.com",
		Role:         role,
		Active:       true,
		PasswordHash: "unused",
	}
	require.NoError(t, db.DB.Create(user).Error)
	return user
}

// CreateBook inserts a book with the given number of available copies and
// consistent counters.
func CreateBook(t *testing.T, db *database.Database, title string, copies int) *entities.Book {
	t.Helper()
	book := &entities.Book{
		Title:           title,
		Authors:         "Test Author",
		TotalCopies:     copies,
		AvailableCopies: copies,
	}
	require.NoError(t, db.DB.Create(book).Error)

	for i := 0; i < copies; i++ {
		c := &entities.Copy{
			BookID:         book.ID,
			InventoryLabel: fmt.Sprintf("BK%d-%03d", book.ID, i+1),
			Status:         entities.CopyStatusAvailable,
		}
		require.NoError(t, db.DB.Create(c).Error)
	}
	return book
}

// Copies returns the live copies of a book ordered by ID.
func Copies(t *testing.T, db *database.Database, bookID uint) []entities.Copy {
	t.Helper()
	var copies []entities.Copy
	require.NoError(t, db.DB.Where("book_id = ?", bookID).Order("id ASC").Find(&copies).Error)
	return copies
}

// Book reloads a book, including soft-deleted ones.
func Book(t *testing.T, db *database.Database, bookID uint) *entities.Book {
	t.Helper()
	var book entities.Book
	require.NoError(t, db.DB.Unscoped().First(&book, bookID).Error)
	return &book
}

// CreateLoan inserts an active loan on the copy and marks the copy borrowed,
// keeping the book counter consistent.
func CreateLoan(t *testing.T, db *database.Database, userID uint, c entities.Copy, borrowed, due time.Time) *entities.Loan {
	t.Helper()
	loan := &entities.Loan{
		UserID:     userID,
		CopyID:     c.ID,
		BorrowDate: borrowed,
		DueDate:    due,
		Status:     entities.LoanStatusActive,
	}
	require.NoError(t, db.DB.Create(loan).Error)
	require.NoError(t, db.DB.Model(&entities.Copy{}).Where("id = ?", c.ID).Update("status", entities.CopyStatusBorrowed).Error)
	require.NoError(t, db.DB.Exec("UPDATE books SET available_copies = available_copies - 1 WHERE id = ?", c.BookID).Error)
	return loan
}

// AvailableCount counts live available copies of a book directly.
func AvailableCount(t *testing.T, db *database.Database, bookID uint) int {
	t.Helper()
	var n int64
	require.NoError(t, db.DB.Model(&entities.Copy{}).
		Where("book_id = ? AND status = ?", bookID, entities.CopyStatusAvailable).
		Count(&n).Error)
	return int(n)
}
