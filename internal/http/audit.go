package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/entities"
)

// AuditReader lists recorded audit events.
type AuditReader interface {
	GetEvents(f audit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error)
}

type AuditController struct {
	reader AuditReader
}

func NewAuditController(reader AuditReader) *AuditController {
	return &AuditController{reader: reader}
}

// List handles GET /api/admin/audit
// Filters: actor_id, type, entity_type, entity_id, since and before (RFC 3339).
func (ac *AuditController) List(c *gin.Context) {
	actorID, ok := parseOptionalQueryID(c, "actor_id")
	if !ok {
		return
	}
	entityID, ok := parseOptionalQueryID(c, "entity_id")
	if !ok {
		return
	}
	f := audit.Filter{
		ActorID:    actorID,
		EventType:  entities.AuditEventType(c.Query("type")),
		EntityType: c.Query("entity_type"),
		EntityID:   entityID,
	}
	if f.Since, ok = parseTimeQuery(c, "since"); !ok {
		return
	}
	if f.Before, ok = parseTimeQuery(c, "before"); !ok {
		return
	}
	limit, offset := parsePagination(c)

	events, total, err := ac.reader.GetEvents(f, limit, offset)
	if err != nil {
		respondInternalError(c, err, "list audit events")
		return
	}
	if events == nil {
		events = []entities.AuditEvent{}
	}
	respondPage(c, events, total, limit, offset)
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondBadRequest(c, "invalid "+name+": expected RFC 3339 time")
		return nil, false
	}
	t = t.UTC()
	return &t, true
}
