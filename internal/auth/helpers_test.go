package auth

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/dbtest"
	"github.com/mrlokans/librarian/internal/entities"
)

const testPassword = "correct-horse-battery"

func init() {
	gin.SetMode(gin.TestMode)
}

func testAuthConfig() config.Auth {
	return config.Auth{
		SessionLifetime:  24 * time.Hour,
		TokenExpiry:      720 * time.Hour,
		BcryptCost:       bcrypt.MinCost,
		MaxLoginAttempts: 3,
		LockoutDuration:  30 * time.Minute,
	}
}

func setupService(t *testing.T) (*Service, *database.Database) {
	t.Helper()
	db := dbtest.New(t)
	return NewService(db.DB, testAuthConfig()), db
}

func createUser(t *testing.T, svc *Service, username string, role entities.UserRole) *entities.User {
	t.Helper()
	user, err := svc.CreateUser(NewUser{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
		Role:     role,
	})
	require.NoError(t, err)
	return user
}
