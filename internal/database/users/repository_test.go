package users

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

func setupTestDB(t *testing.T) (*gorm.DB, *Repository) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db.DB, NewRepository(db.DB)
}

func createTestUser(t *testing.T, db *gorm.DB, username string, role entities.UserRole) *entities.User {
	user := &entities.User{
		Username:     username,
		Email:        username + "@example.com",
		FullName:     "Test " + username,
		Role:         role,
		Active:       true,
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestRepository_GetUserByID(t *testing.T) {
	db, repo := setupTestDB(t)
	created := createTestUser(t, db, "alice", entities.UserRoleReader)

	user, err := repo.GetUserByID(created.ID)

	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, entities.UserRoleReader, user.Role)
}

func TestRepository_GetUserByID_NotFound(t *testing.T) {
	_, repo := setupTestDB(t)

	_, err := repo.GetUserByID(9999)

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_GetUserByUsername(t *testing.T) {
	db, repo := setupTestDB(t)
	createTestUser(t, db, "bob", entities.UserRoleLibrarian)

	user, err := repo.GetUserByUsername("bob")

	require.NoError(t, err)
	assert.Equal(t, entities.UserRoleLibrarian, user.Role)
}

func TestRepository_ListUsers(t *testing.T) {
	db, repo := setupTestDB(t)
	createTestUser(t, db, "reader1", entities.UserRoleReader)
	createTestUser(t, db, "reader2", entities.UserRoleReader)
	createTestUser(t, db, "staff", entities.UserRoleLibrarian)

	t.Run("all users", func(t *testing.T) {
		list, total, err := repo.ListUsers(Filter{}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, list, 3)
	})

	t.Run("by role", func(t *testing.T) {
		list, total, err := repo.ListUsers(Filter{Role: entities.UserRoleReader}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, list, 2)
	})

	t.Run("by query with pagination", func(t *testing.T) {
		list, total, err := repo.ListUsers(Filter{Query: "reader"}, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, list, 1)
		assert.Equal(t, "reader2", list[0].Username)
	})
}

func TestRepository_SetActive(t *testing.T) {
	db, repo := setupTestDB(t)
	user := createTestUser(t, db, "carol", entities.UserRoleReader)

	require.NoError(t, repo.SetActive(user.ID, false))

	inactive := false
	list, total, err := repo.ListUsers(Filter{Active: &inactive}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, user.ID, list[0].ID)

	assert.ErrorIs(t, repo.SetActive(9999, true), gorm.ErrRecordNotFound)
}

func TestRepository_SetRole(t *testing.T) {
	db, repo := setupTestDB(t)
	user := createTestUser(t, db, "dave", entities.UserRoleReader)

	require.NoError(t, repo.SetRole(user.ID, entities.UserRoleAdmin))

	updated, err := repo.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.UserRoleAdmin, updated.Role)
}

func TestRepository_UpdateProfile(t *testing.T) {
	db, repo := setupTestDB(t)
	user := createTestUser(t, db, "erin", entities.UserRoleReader)

	require.NoError(t, repo.UpdateProfile(user.ID, "Erin Example", "erin@library.test"))

	updated, err := repo.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Erin Example", updated.FullName)
	assert.Equal(t, "erin@library.test", updated.Email)
}
