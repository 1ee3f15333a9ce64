package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.DB
}

func uintPtr(v uint) *uint { return &v }

func TestRepository_LogEvent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	event := &entities.AuditEvent{
		ActorID:    1,
		EventType:  entities.AuditEventInventory,
		Action:     "copies_add",
		EntityType: "book",
		EntityID:   uintPtr(7),
		After:      `{"added":3}`,
		Status:     entities.AuditStatusSuccess,
	}

	err := repo.LogEvent(event)
	require.NoError(t, err)
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestRepository_GetEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	for i := 0; i < 15; i++ {
		event := &entities.AuditEvent{
			ActorID:    1,
			EventType:  entities.AuditEventLoan,
			Action:     "loan_create",
			EntityType: "loan",
			EntityID:   uintPtr(uint(i + 1)),
			Status:     entities.AuditStatusSuccess,
			CreatedAt:  time.Now().Add(time.Duration(-i) * time.Hour),
		}
		require.NoError(t, repo.LogEvent(event))
	}
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		ActorID:   2,
		EventType: entities.AuditEventFine,
		Action:    "fine_settle",
		Status:    entities.AuditStatusSuccess,
	}))

	t.Run("first page", func(t *testing.T) {
		events, total, err := repo.GetEvents(Filter{ActorID: 1}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(15), total)
		assert.Len(t, events, 10)
		assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt))
	})

	t.Run("second page", func(t *testing.T) {
		events, total, err := repo.GetEvents(Filter{ActorID: 1}, 10, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(15), total)
		assert.Len(t, events, 5)
	})

	t.Run("by type", func(t *testing.T) {
		events, total, err := repo.GetEvents(Filter{EventType: entities.AuditEventFine}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "fine_settle", events[0].Action)
	})

	t.Run("by entity", func(t *testing.T) {
		events, total, err := repo.GetEvents(Filter{EntityType: "loan", EntityID: 3}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, uint(3), *events[0].EntityID)
	})

	t.Run("since", func(t *testing.T) {
		since := time.Now().Add(-90 * time.Minute)
		_, total, err := repo.GetEvents(Filter{ActorID: 1, Since: &since}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
	})
}

func TestRepository_DeleteOldEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.LogEvent(&entities.AuditEvent{
			EventType: entities.AuditEventAuth,
			Action:    "login",
			Status:    entities.AuditStatusSuccess,
			CreatedAt: time.Now().AddDate(0, 0, -100-i),
		}))
	}
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		EventType: entities.AuditEventAuth,
		Action:    "login",
		Status:    entities.AuditStatusSuccess,
	}))

	deleted, err := repo.DeleteOldEvents(time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	_, total, err := repo.GetEvents(Filter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRepository_GetEventByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	event := &entities.AuditEvent{
		ActorID:   3,
		EventType: entities.AuditEventUser,
		Action:    "user_deactivate",
		Status:    entities.AuditStatusFailed,
		ErrorMsg:  "user not found",
	}
	require.NoError(t, repo.LogEvent(event))

	found, err := repo.GetEventByID(event.ID)
	require.NoError(t, err)
	assert.Equal(t, "user_deactivate", found.Action)
	assert.Equal(t, "user not found", found.ErrorMsg)

	_, err = repo.GetEventByID(9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
