// Package notifications stores the per-user inbox written by the
// notification task queue.
package notifications

import (
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create appends a message to a user's inbox.
func (r *Repository) Create(n *entities.Notification) error {
	return r.db.Create(n).Error
}

// ListForUser returns the user's notifications, newest first.
func (r *Repository) ListForUser(userID uint, unreadOnly bool, limit, offset int) ([]entities.Notification, int64, error) {
	query := r.db.Model(&entities.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var list []entities.Notification
	err := query.Find(&list).Error
	return list, total, err
}

// MarkRead marks one of the user's notifications as read. Notifications of
// other users are reported as not found.
func (r *Repository) MarkRead(id, userID uint, at time.Time) error {
	res := r.db.Model(&entities.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Where("read_at IS NULL").
		Update("read_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&entities.Notification{}).Where("id = ? AND user_id = ?", id, userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (r *Repository) MarkAllRead(userID uint, at time.Time) (int64, error) {
	res := r.db.Model(&entities.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

// CountUnread returns the number of unread notifications of the user.
func (r *Repository) CountUnread(userID uint) (int64, error) {
	var n int64
	err := r.db.Model(&entities.Notification{}).Where("user_id = ? AND read_at IS NULL", userID).Count(&n).Error
	return n, err
}
