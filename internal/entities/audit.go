package entities

import "time"

type AuditEventType string

const (
	AuditEventInventory AuditEventType = "inventory"
	AuditEventLoan      AuditEventType = "loan"
	AuditEventFine      AuditEventType = "fine"
	AuditEventCatalog   AuditEventType = "catalog"
	AuditEventAuth      AuditEventType = "auth"
	AuditEventUser      AuditEventType = "user"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

type AuditEvent struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ActorID    uint           `gorm:"index" json:"actor_id"`
	EventType  AuditEventType `gorm:"index;size:50" json:"event_type"`
	Action     string         `gorm:"size:100" json:"action"`     // e.g., "loan_create", "copies_remove"
	EntityType string         `gorm:"size:50" json:"entity_type"` // "book", "copy", "loan", "fine"
	EntityID   *uint          `gorm:"index" json:"entity_id,omitempty"`
	Before     string         `gorm:"type:text" json:"before,omitempty"` // JSON snapshot
	After      string         `gorm:"type:text" json:"after,omitempty"`  // JSON snapshot
	IPAddress  string         `gorm:"size:45" json:"ip_address,omitempty"`
	Status     AuditStatus    `gorm:"size:20" json:"status"`
	ErrorMsg   string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
