// Package notify delivers circulation messages to the per-user inbox.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/tasks"
)

// Enqueuer saves background tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
}

// Notifier hands messages to the task queue when one is configured and
// otherwise writes the inbox row from a goroutine. Delivery failures are
// logged and never reach the caller.
type Notifier struct {
	queue   Enqueuer
	inbox   tasks.NotificationWriter
	timeout time.Duration
	pending sync.WaitGroup
}

// New creates a Notifier. queue may be nil.
func New(queue Enqueuer, inbox tasks.NotificationWriter) *Notifier {
	return &Notifier{queue: queue, inbox: inbox, timeout: 5 * time.Second}
}

func (n *Notifier) Notify(userID uint, subject, message string) {
	if userID == 0 {
		return
	}
	task := tasks.SendNotificationTask{UserID: userID, Subject: subject, Message: message}

	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		if n.queue != nil {
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			defer cancel()
			_, err := n.queue.Enqueue(ctx, task)
			if err == nil {
				return
			}
			log.Printf("[NOTIFY] Enqueue failed for user %d, writing directly: %v", userID, err)
		}
		if err := tasks.SendNotificationProcessor(n.inbox)(context.Background(), task); err != nil {
			log.Printf("[NOTIFY] Failed to deliver %q to user %d: %v", subject, userID, err)
		}
	}()
}

// Wait blocks until all in-flight deliveries have finished.
func (n *Notifier) Wait() {
	n.pending.Wait()
}
