package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/entities"
)

// NotificationStore is the per-user inbox.
type NotificationStore interface {
	ListForUser(userID uint, unreadOnly bool, limit, offset int) ([]entities.Notification, int64, error)
	MarkRead(id, userID uint, at time.Time) error
	MarkAllRead(userID uint, at time.Time) (int64, error)
	CountUnread(userID uint) (int64, error)
}

type NotificationsController struct {
	store NotificationStore
	now   func() time.Time
}

func NewNotificationsController(store NotificationStore) *NotificationsController {
	return &NotificationsController{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// List handles GET /api/notifications
// unread=true limits the result to unread notifications.
func (nc *NotificationsController) List(c *gin.Context) {
	userID := auth.GetUserID(c)
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	limit, offset := parsePagination(c)

	list, total, err := nc.store.ListForUser(userID, unreadOnly, limit, offset)
	if err != nil {
		respondInternalError(c, err, "list notifications")
		return
	}
	unread, err := nc.store.CountUnread(userID)
	if err != nil {
		respondInternalError(c, err, "count notifications")
		return
	}
	if list == nil {
		list = []entities.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{
		"unread": unread,
		"notifications": PaginatedResponse{
			Data:    list,
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: int64(offset+limit) < total,
		},
	})
}

// MarkRead handles POST /api/notifications/:id/read
func (nc *NotificationsController) MarkRead(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	err := nc.store.MarkRead(id, auth.GetUserID(c), nc.now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "notification")
		return
	}
	if err != nil {
		respondInternalError(c, err, "mark notification read")
		return
	}
	respondSuccess(c, "notification marked as read")
}

// MarkAllRead handles POST /api/notifications/read-all
func (nc *NotificationsController) MarkAllRead(c *gin.Context) {
	n, err := nc.store.MarkAllRead(auth.GetUserID(c), nc.now())
	if err != nil {
		respondInternalError(c, err, "mark notifications read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}
