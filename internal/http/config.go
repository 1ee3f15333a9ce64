package http

import (
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/tasks"
)

// Auditor is what the router needs from the audit service.
type Auditor interface {
	auth.Auditor
	UserChangeAuditor
	AuditReader
}

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database    *database.Database
	Circulation *circulation.Service
	Auditor     Auditor

	// Authentication
	AuthService    *auth.Service
	SessionManager *auth.SessionManager
	CSRFSecret     []byte // empty disables CSRF protection
	SecureCookies  bool
	HSTSMaxAge     int // seconds; 0 disables the header

	// Task queue client (optional)
	TaskClient *tasks.Client

	// Application info
	Version string
}
