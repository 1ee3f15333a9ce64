package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/entities"
)

// NotificationWriter stores inbox rows.
type NotificationWriter interface {
	Create(n *entities.Notification) error
}

// SendNotificationTask delivers one message to a user's inbox.
type SendNotificationTask struct {
	UserID  uint   `json:"user_id"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Config returns the queue configuration for notification delivery.
func (t SendNotificationTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "send_notification",
		MaxAttempts: 5,
		Backoff:     30 * time.Second,
		Timeout:     30 * time.Second,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: true,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SendNotificationProcessor creates a processor function for SendNotificationTask.
func SendNotificationProcessor(writer NotificationWriter) backlite.QueueProcessor[SendNotificationTask] {
	return func(ctx context.Context, task SendNotificationTask) error {
		if writer == nil {
			return fmt.Errorf("notification writer not configured")
		}
		if task.UserID == 0 {
			// Nothing to retry for a message without a recipient.
			return nil
		}

		err := writer.Create(&entities.Notification{
			UserID:  task.UserID,
			Subject: task.Subject,
			Message: task.Message,
		})
		if err != nil {
			return fmt.Errorf("store notification for user %d: %w", task.UserID, err)
		}
		return nil
	}
}

// NewSendNotificationQueue creates a backlite queue for notification delivery.
func NewSendNotificationQueue(writer NotificationWriter) backlite.Queue {
	return backlite.NewQueue(SendNotificationProcessor(writer))
}
