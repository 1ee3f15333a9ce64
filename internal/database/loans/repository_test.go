package loans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/dbtest"
	"github.com/mrlokans/librarian/internal/entities"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*database.Database, *Repository) {
	db := dbtest.New(t)
	return db, NewRepository(db.DB)
}

func TestRepository_CreateAndGet(t *testing.T) {
	db, repo := setupTestDB(t)
	reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
	book := dbtest.CreateBook(t, db, "Dracula", 1)
	c := dbtest.Copies(t, db, book.ID)[0]

	loan := &entities.Loan{
		UserID:     reader.ID,
		CopyID:     c.ID,
		BorrowDate: baseTime,
		DueDate:    baseTime.AddDate(0, 0, 30),
		Status:     entities.LoanStatusActive,
	}
	require.NoError(t, repo.Create(loan))

	found, err := repo.GetByID(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, reader.ID, found.UserID)
	assert.True(t, found.DueDate.Equal(baseTime.AddDate(0, 0, 30)))
	assert.Nil(t, found.ReturnDate)

	_, err = repo.GetByID(9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_ActiveLoanPerCopyIsUnique(t *testing.T) {
	db, repo := setupTestDB(t)
	reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
	book := dbtest.CreateBook(t, db, "Frankenstein", 1)
	c := dbtest.Copies(t, db, book.ID)[0]
	dbtest.CreateLoan(t, db, reader.ID, c, baseTime, baseTime.AddDate(0, 0, 30))

	err := repo.Create(&entities.Loan{
		UserID:     reader.ID,
		CopyID:     c.ID,
		BorrowDate: baseTime,
		DueDate:    baseTime.AddDate(0, 0, 30),
		Status:     entities.LoanStatusActive,
	})

	assert.Error(t, err)
}

func TestRepository_MarkReturned(t *testing.T) {
	db, repo := setupTestDB(t)
	reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
	book := dbtest.CreateBook(t, db, "Rebecca", 1)
	loan := dbtest.CreateLoan(t, db, reader.ID, dbtest.Copies(t, db, book.ID)[0], baseTime, baseTime.AddDate(0, 0, 30))

	ok, err := repo.MarkReturned(loan.ID, baseTime.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkReturned(loan.ID, baseTime.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.False(t, ok, "a returned loan cannot be closed twice")

	found, err := repo.GetByID(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.LoanStatusReturned, found.Status)
	require.NotNil(t, found.ReturnDate)
	assert.True(t, found.ReturnDate.Equal(baseTime.AddDate(0, 0, 3)))
}

func TestRepository_Extend(t *testing.T) {
	db, repo := setupTestDB(t)
	reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
	book := dbtest.CreateBook(t, db, "Kim", 1)
	loan := dbtest.CreateLoan(t, db, reader.ID, dbtest.Copies(t, db, book.ID)[0], baseTime, baseTime.AddDate(0, 0, 30))

	newDue := baseTime.AddDate(0, 0, 44)
	ok, err := repo.Extend(loan.ID, 0, newDue)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Extend(loan.ID, 0, newDue.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.False(t, ok, "stale extension count must not apply")

	found, err := repo.GetByID(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.Extensions)
	assert.True(t, found.DueDate.Equal(newDue))
}

func TestRepository_FindActiveForUserAndBook(t *testing.T) {
	db, repo := setupTestDB(t)
	reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
	other := dbtest.CreateUser(t, db, "other", entities.UserRoleReader)
	book := dbtest.CreateBook(t, db, "Nana", 2)
	copies := dbtest.Copies(t, db, book.ID)
	mine := dbtest.CreateLoan(t, db, reader.ID, copies[0], baseTime, baseTime.AddDate(0, 0, 30))
	dbtest.CreateLoan(t, db, other.ID, copies[1], baseTime, baseTime.AddDate(0, 0, 30))

	found, err := repo.FindActiveForUserAndBook(reader.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, found.ID)

	_, err = repo.MarkReturned(mine.ID, baseTime)
	require.NoError(t, err)

	_, err = repo.FindActiveForUserAndBook(reader.ID, book.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_ActiveForBook(t *testing.T) {
	db, repo := setupTestDB(t)
	reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
	book := dbtest.CreateBook(t, db, "Candide", 3)
	copies := dbtest.Copies(t, db, book.ID)
	l1 := dbtest.CreateLoan(t, db, reader.ID, copies[0], baseTime, baseTime.AddDate(0, 0, 30))
	l2 := dbtest.CreateLoan(t, db, reader.ID, copies[1], baseTime, baseTime.AddDate(0, 0, 30))

	ids, err := repo.ActiveIDsForBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{l1.ID, l2.ID}, ids)

	n, err := repo.CountActiveForBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRepository_OverdueWithoutFine(t *testing.T) {
	db, repo := setupTestDB(t)
	reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
	other := dbtest.CreateUser(t, db, "other", entities.UserRoleReader)
	book := dbtest.CreateBook(t, db, "Shirley", 4)
	copies := dbtest.Copies(t, db, book.ID)
	now := baseTime.AddDate(0, 0, 40)

	overdue := dbtest.CreateLoan(t, db, reader.ID, copies[0], baseTime, baseTime.AddDate(0, 0, 30))
	dbtest.CreateLoan(t, db, reader.ID, copies[1], baseTime, now.AddDate(0, 0, 5))
	fined := dbtest.CreateLoan(t, db, reader.ID, copies[2], baseTime, baseTime.AddDate(0, 0, 30))
	require.NoError(t, db.DB.Create(&entities.Fine{LoanID: fined.ID, Amount: 4, Status: entities.FineStatusAccrued, AccruedAt: now}).Error)
	othersOverdue := dbtest.CreateLoan(t, db, other.ID, copies[3], baseTime, baseTime.AddDate(0, 0, 30))

	list, err := repo.OverdueWithoutFine(reader.ID, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, overdue.ID, list[0].ID)

	all, err := repo.OverdueWithoutFine(0, now)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, othersOverdue.ID, all[1].ID)

	t.Run("settled fines do not exclude the loan", func(t *testing.T) {
		require.NoError(t, db.DB.Model(&entities.Fine{}).
			Where("loan_id = ?", fined.ID).
			Update("status", entities.FineStatusPaid).Error)

		list, err := repo.OverdueWithoutFine(reader.ID, now)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, overdue.ID, list[0].ID)
		assert.Equal(t, fined.ID, list[1].ID)
	})
}

func TestRepository_HasBorrowed(t *testing.T) {
	db, repo := setupTestDB(t)
	reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
	book := dbtest.CreateBook(t, db, "Lolita", 1)
	untouched := dbtest.CreateBook(t, db, "Untouched", 1)
	loan := dbtest.CreateLoan(t, db, reader.ID, dbtest.Copies(t, db, book.ID)[0], baseTime, baseTime.AddDate(0, 0, 30))
	_, err := repo.MarkReturned(loan.ID, baseTime.AddDate(0, 0, 1))
	require.NoError(t, err)

	ok, err := repo.HasBorrowed(reader.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasBorrowed(reader.ID, untouched.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_List(t *testing.T) {
	db, repo := setupTestDB(t)
	reader := dbtest.CreateUser(t, db, "reader", entities.UserRoleReader)
	book := dbtest.CreateBook(t, db, "Hamlet", 2)
	copies := dbtest.Copies(t, db, book.ID)

	older := dbtest.CreateLoan(t, db, reader.ID, copies[0], baseTime, baseTime.AddDate(0, 0, 30))
	newer := dbtest.CreateLoan(t, db, reader.ID, copies[1], baseTime.AddDate(0, 0, 1), baseTime.AddDate(0, 0, 31))
	require.NoError(t, db.DB.Create(&entities.Fine{
		LoanID: older.ID, Amount: 10, Status: entities.FineStatusAccrued, AccruedAt: baseTime.AddDate(0, 0, 35),
	}).Error)

	rows, total, err := repo.List(Filter{UserID: reader.ID}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)

	assert.Equal(t, newer.ID, rows[0].ID)
	assert.Nil(t, rows[0].FineID)

	assert.Equal(t, older.ID, rows[1].ID)
	assert.Equal(t, "Hamlet", rows[1].BookTitle)
	assert.Equal(t, book.ID, rows[1].BookID)
	assert.Equal(t, copies[0].InventoryLabel, rows[1].CopyLabel)
	require.NotNil(t, rows[1].FineAmount)
	assert.Equal(t, int64(10), *rows[1].FineAmount)

	t.Run("overdue filter", func(t *testing.T) {
		asOf := baseTime.AddDate(0, 0, 30).Add(time.Hour)
		rows, total, err := repo.List(Filter{OverdueAsOf: &asOf}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, older.ID, rows[0].ID)
	})
}
