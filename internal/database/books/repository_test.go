package books

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/dbtest"
	"github.com/mrlokans/librarian/internal/entities"
)

func setupTestDB(t *testing.T) (*database.Database, *Repository) {
	db := dbtest.New(t)
	return db, NewRepository(db.DB)
}

func strPtr(s string) *string { return &s }

func TestRepository_GetByIDWithCopies(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "The Hobbit", 3)

	found, err := repo.GetByIDWithCopies(book.ID)

	require.NoError(t, err)
	assert.Equal(t, "The Hobbit", found.Title)
	assert.Len(t, found.Copies, 3)

	_, err = repo.GetByID(9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_Search(t *testing.T) {
	db, repo := setupTestDB(t)
	dbtest.CreateBook(t, db, "The Hobbit", 2)
	dbtest.CreateBook(t, db, "The Silmarillion", 0)
	emma := dbtest.CreateBook(t, db, "Emma", 1)
	require.NoError(t, db.DB.Model(&entities.Book{}).Where("id = ?", emma.ID).
		Updates(map[string]any{"authors": "Jane Austen", "isbn": "9780141439587"}).Error)

	tests := []struct {
		name   string
		query  Query
		titles []string
	}{
		{"all sorted by title", Query{}, []string{"Emma", "The Hobbit", "The Silmarillion"}},
		{"title substring is case insensitive", Query{Text: "hobBIT"}, []string{"The Hobbit"}},
		{"author", Query{Author: "austen"}, []string{"Emma"}},
		{"isbn", Query{ISBN: "9780141439587"}, []string{"Emma"}},
		{"text matches isbn exactly", Query{Text: "9780141439587"}, []string{"Emma"}},
		{"only available", Query{Text: "the", OnlyAvailable: true}, []string{"The Hobbit"}},
		{"sorted by availability", Query{Sort: "available"}, []string{"The Hobbit", "Emma", "The Silmarillion"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := repo.Search(tt.query, 0, 0)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.titles)), total)

			titles := make([]string, len(list))
			for i, b := range list {
				titles[i] = b.Title
			}
			assert.Equal(t, tt.titles, titles)
		})
	}

	t.Run("pagination", func(t *testing.T) {
		list, total, err := repo.Search(Query{}, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, list, 1)
		assert.Equal(t, "The Silmarillion", list[0].Title)
	})
}

func TestRepository_UpdateMetadata(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "Draft Title", 2)

	updated, err := repo.UpdateMetadata(book.ID, Update{
		Title:   strPtr("Final Title"),
		Authors: strPtr("New Author"),
	})

	require.NoError(t, err)
	assert.Equal(t, "Final Title", updated.Title)
	assert.Equal(t, "New Author", updated.Authors)
	assert.Equal(t, 2, updated.AvailableCopies, "counters are untouched")

	_, err = repo.UpdateMetadata(9999, Update{Title: strPtr("x")})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_Count(t *testing.T) {
	db, repo := setupTestDB(t)
	dbtest.CreateBook(t, db, "One", 1)
	gone := dbtest.CreateBook(t, db, "Two", 1)
	require.NoError(t, db.DB.Delete(&entities.Book{}, gone.ID).Error)

	n, err := repo.Count()

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
