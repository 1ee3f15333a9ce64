package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/entities"
)

// archiveBatch bounds how many events are archived per file during cleanup.
const archiveBatch = 1000

// Service provides high-level audit logging functionality.
type Service struct {
	repo     *audit.Repository
	archiver *Archiver
	pending  sync.WaitGroup
}

// NewService creates a new audit service. archiver may be nil, in which case
// expired events are deleted without being archived.
func NewService(repo *audit.Repository, archiver *Archiver) *Service {
	return &Service{repo: repo, archiver: archiver}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event %s: %v", event.Action, err)
		}
	}()
}

// Wait blocks until all background writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Record stores a state change with JSON snapshots of the entity before and
// after it. A zero entityID means the change is not tied to one row.
func (s *Service) Record(actorID uint, action, entityType string, entityID uint, before, after any) {
	event := &entities.AuditEvent{
		ActorID:    actorID,
		EventType:  eventTypeFor(action, entityType),
		Action:     action,
		EntityType: entityType,
		Before:     snapshot(before),
		After:      snapshot(after),
		Status:     entities.AuditStatusSuccess,
	}
	if entityID != 0 {
		event.EntityID = &entityID
	}
	s.LogAsync(event)
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(userID uint, action, ipAddr string, success bool) {
	event := &entities.AuditEvent{
		ActorID:   userID,
		EventType: entities.AuditEventAuth,
		Action:    action,
		IPAddress: ipAddr,
		Status:    entities.AuditStatusSuccess,
	}

	if !success {
		event.Status = entities.AuditStatusFailed
	}

	s.LogAsync(event)
}

// LogUserChange records a back-office change to a user account.
func (s *Service) LogUserChange(actorID, userID uint, action string, err error) {
	event := &entities.AuditEvent{
		ActorID:    actorID,
		EventType:  entities.AuditEventUser,
		Action:     action,
		EntityType: "user",
		EntityID:   &userID,
		Status:     entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(f audit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(f, limit, offset)
}

// DeleteOldEvents removes events older than the retention period, archiving
// them first when an archiver is configured.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	if s.archiver != nil {
		if err := s.archive(cutoff); err != nil {
			return 0, err
		}
	}
	return s.repo.DeleteOldEvents(cutoff)
}

func (s *Service) archive(cutoff time.Time) error {
	for offset := 0; ; offset += archiveBatch {
		events, _, err := s.repo.GetEvents(audit.Filter{Before: &cutoff}, archiveBatch, offset)
		if err != nil {
			return fmt.Errorf("load expired audit events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		name, err := s.archiver.SaveEvents(events, cutoff)
		if err != nil {
			return err
		}
		log.Printf("Archived %d audit events to %s", len(events), name)
		if len(events) < archiveBatch {
			return nil
		}
	}
}

func eventTypeFor(action, entityType string) entities.AuditEventType {
	switch {
	case strings.HasPrefix(action, "copies_"), strings.HasPrefix(action, "copy_"),
		strings.HasPrefix(action, "availability_"):
		return entities.AuditEventInventory
	case strings.HasPrefix(action, "loan"):
		return entities.AuditEventLoan
	case strings.HasPrefix(action, "fine_"):
		return entities.AuditEventFine
	case entityType == "user":
		return entities.AuditEventUser
	default:
		return entities.AuditEventCatalog
	}
}

func snapshot(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal audit snapshot: %v", err)
		return ""
	}
	return truncate(string(data), 8000)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
