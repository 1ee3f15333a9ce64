package inventory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/dbtest"
	"github.com/mrlokans/librarian/internal/entities"
)

func setupTestDB(t *testing.T) (*database.Database, *Repository) {
	db := dbtest.New(t)
	return db, NewRepository(db.DB, db.IsPostgres())
}

func assertCounterMatches(t *testing.T, db *database.Database, bookID uint) {
	t.Helper()
	book := dbtest.Book(t, db, bookID)
	assert.Equal(t, dbtest.AvailableCount(t, db, bookID), book.AvailableCopies)
}

func TestRepository_AddCopies(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "Dune", 1)

	ids, err := repo.AddCopies(book, 3)

	require.NoError(t, err)
	assert.Len(t, ids, 3)

	reloaded := dbtest.Book(t, db, book.ID)
	assert.Equal(t, 4, reloaded.TotalCopies)
	assert.Equal(t, 4, reloaded.AvailableCopies)
	assertCounterMatches(t, db, book.ID)

	copies := dbtest.Copies(t, db, book.ID)
	labels := map[string]bool{}
	for _, c := range copies {
		labels[c.InventoryLabel] = true
	}
	assert.Len(t, labels, 4, "inventory labels must be unique")
}

func TestRepository_ReserveOneCopy(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "Emma", 2)

	first, err := repo.ReserveOneCopy(book.ID)
	require.NoError(t, err)
	assert.NotZero(t, first)

	second, err := repo.ReserveOneCopy(book.ID)
	require.NoError(t, err)
	assert.NotZero(t, second)
	assert.NotEqual(t, first, second)

	none, err := repo.ReserveOneCopy(book.ID)
	require.NoError(t, err)
	assert.Zero(t, none)

	assert.Equal(t, 0, dbtest.Book(t, db, book.ID).AvailableCopies)
	assertCounterMatches(t, db, book.ID)
}

func TestRepository_ReserveOneCopy_CandidateTaken(t *testing.T) {
	for _, lockRows := range []bool{false, true} {
		t.Run(fmt.Sprintf("lockRows=%v", lockRows), func(t *testing.T) {
			db := dbtest.New(t)
			repo := NewRepository(db.DB, lockRows)
			book := dbtest.CreateBook(t, db, "Persuasion", 3)

			var batches [][]uint
			repo.pinned = func(ids []uint) {
				batches = append(batches, append([]uint(nil), ids...))
				if len(batches) > 1 {
					return
				}
				// A concurrent reservation wins the first candidate between pin and CAS.
				require.NoError(t, db.DB.Model(&entities.Copy{}).
					Where("id = ?", ids[0]).
					Update("status", entities.CopyStatusBorrowed).Error)
				require.NoError(t, db.DB.Model(&entities.Book{}).
					Where("id = ?", book.ID).
					Update("available_copies", gorm.Expr("available_copies - 1")).Error)
			}

			id, err := repo.ReserveOneCopy(book.ID)

			require.NoError(t, err)
			require.NotZero(t, id)
			require.NotEmpty(t, batches)
			assert.NotEqual(t, batches[0][0], id)
			assert.Equal(t, 1, dbtest.Book(t, db, book.ID).AvailableCopies)
			assertCounterMatches(t, db, book.ID)

			if lockRows {
				require.Len(t, batches, 2)
				assert.Len(t, batches[0], 1)
				assert.Len(t, batches[1], 1)
			} else {
				require.Len(t, batches, 1)
				assert.Len(t, batches[0], 3)
			}
		})
	}
}

func TestRepository_ReserveOneCopy_AllCandidatesTaken(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "Sanditon", 2)

	passes := 0
	repo.pinned = func(ids []uint) {
		passes++
		require.NoError(t, db.DB.Model(&entities.Copy{}).
			Where("id IN ?", ids).
			Update("status", entities.CopyStatusBorrowed).Error)
		require.NoError(t, db.DB.Model(&entities.Book{}).
			Where("id = ?", book.ID).
			Update("available_copies", gorm.Expr("available_copies - ?", len(ids))).Error)
	}

	id, err := repo.ReserveOneCopy(book.ID)

	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Equal(t, 1, passes, "the refreshed candidate set is empty")
	assertCounterMatches(t, db, book.ID)
}

func TestRepository_ReserveCopy(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "Ulysses", 2)
	copies := dbtest.Copies(t, db, book.ID)

	won, err := repo.ReserveCopy(&copies[1])
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.ReserveCopy(&copies[1])
	require.NoError(t, err)
	assert.False(t, won, "a borrowed copy cannot be reserved again")

	assert.Equal(t, 1, dbtest.Book(t, db, book.ID).AvailableCopies)
	assertCounterMatches(t, db, book.ID)
}

func TestRepository_ReleaseCopy(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "Beloved", 1)

	copyID, err := repo.ReserveOneCopy(book.ID)
	require.NoError(t, err)

	released, err := repo.ReleaseCopy(copyID)
	require.NoError(t, err)
	assert.True(t, released)

	t.Run("second release is a no-op", func(t *testing.T) {
		released, err := repo.ReleaseCopy(copyID)
		require.NoError(t, err)
		assert.False(t, released)
		assert.Equal(t, 1, dbtest.Book(t, db, book.ID).AvailableCopies)
	})

	assertCounterMatches(t, db, book.ID)
}

func TestRepository_RemoveCopies(t *testing.T) {
	t.Run("removes available copies", func(t *testing.T) {
		db, repo := setupTestDB(t)
		book := dbtest.CreateBook(t, db, "Middlemarch", 3)

		removed, err := repo.RemoveCopies(book.ID, 2)

		require.NoError(t, err)
		assert.Equal(t, 2, removed)
		reloaded := dbtest.Book(t, db, book.ID)
		assert.Equal(t, 1, reloaded.TotalCopies)
		assert.Equal(t, 1, reloaded.AvailableCopies)
		assert.Len(t, dbtest.Copies(t, db, book.ID), 1)
	})

	t.Run("refuses when not enough copies are available", func(t *testing.T) {
		db, repo := setupTestDB(t)
		book := dbtest.CreateBook(t, db, "Walden", 3)
		reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
		copies := dbtest.Copies(t, db, book.ID)
		now := time.Now().UTC()
		dbtest.CreateLoan(t, db, reader.ID, copies[0], now, now.AddDate(0, 0, 30))
		dbtest.CreateLoan(t, db, reader.ID, copies[1], now, now.AddDate(0, 0, 30))

		removed, err := repo.RemoveCopies(book.ID, 2)

		require.NoError(t, err)
		assert.Zero(t, removed)
		reloaded := dbtest.Book(t, db, book.ID)
		assert.Equal(t, 3, reloaded.TotalCopies)
		assert.Equal(t, 1, reloaded.AvailableCopies)
	})

	t.Run("short pin inside a transaction rolls back", func(t *testing.T) {
		db, repo := setupTestDB(t)
		book := dbtest.CreateBook(t, db, "Drifted", 1)
		// Counter claims three available copies, only one exists.
		require.NoError(t, db.DB.Exec("UPDATE books SET available_copies = 3, total_copies = 3 WHERE id = ?", book.ID).Error)

		err := db.DB.Transaction(func(tx *gorm.DB) error {
			removed, err := repo.WithTx(tx).RemoveCopies(book.ID, 2)
			if err != nil {
				return err
			}
			if removed == 0 {
				return gorm.ErrInvalidData
			}
			return nil
		})

		assert.ErrorIs(t, err, gorm.ErrInvalidData)
		reloaded := dbtest.Book(t, db, book.ID)
		assert.Equal(t, 3, reloaded.AvailableCopies)
		assert.Len(t, dbtest.Copies(t, db, book.ID), 1)
	})
}

func TestRepository_SetCopyStatus(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "Persuasion", 2)
	copies := dbtest.Copies(t, db, book.ID)

	t.Run("available to damaged lowers the counter", func(t *testing.T) {
		ok, err := repo.SetCopyStatus(&copies[0], entities.CopyStatusDamaged)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, dbtest.Book(t, db, book.ID).AvailableCopies)
		assertCounterMatches(t, db, book.ID)
	})

	t.Run("damaged to lost keeps the counter", func(t *testing.T) {
		ok, err := repo.SetCopyStatus(&copies[0], entities.CopyStatusLost)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, dbtest.Book(t, db, book.ID).AvailableCopies)
	})

	t.Run("back to available raises the counter", func(t *testing.T) {
		ok, err := repo.SetCopyStatus(&copies[0], entities.CopyStatusAvailable)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, dbtest.Book(t, db, book.ID).AvailableCopies)
		assertCounterMatches(t, db, book.ID)
	})

	t.Run("borrowed copies are refused", func(t *testing.T) {
		won, err := repo.ReserveCopy(&copies[1])
		require.NoError(t, err)
		require.True(t, won)
		copies[1].Status = entities.CopyStatusBorrowed

		ok, err := repo.SetCopyStatus(&copies[1], entities.CopyStatusLost)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRepository_Recount(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "Ivanhoe", 3)
	require.NoError(t, db.DB.Exec("UPDATE books SET available_copies = 7 WHERE id = ?", book.ID).Error)

	before, after, err := repo.Recount(book.ID)

	require.NoError(t, err)
	assert.Equal(t, 7, before)
	assert.Equal(t, 3, after)
	assertCounterMatches(t, db, book.ID)
}

func TestRepository_SoftDeleteBook(t *testing.T) {
	db, repo := setupTestDB(t)
	book := dbtest.CreateBook(t, db, "Gone", 2)

	require.NoError(t, repo.SoftDeleteBook(book.ID))

	_, err := repo.ActiveBook(book.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, dbtest.Copies(t, db, book.ID))
}
