package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/books"
	"github.com/mrlokans/librarian/internal/database/favourites"
	"github.com/mrlokans/librarian/internal/database/notifications"
	"github.com/mrlokans/librarian/internal/database/reviews"
	"github.com/mrlokans/librarian/internal/database/users"
	"github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/notify"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

var _ http.BookCatalog = (*books.Repository)(nil)
var _ http.BookLookup = (*books.Repository)(nil)
var _ http.FavouritesStore = (*favourites.Repository)(nil)
var _ http.NotificationStore = (*notifications.Repository)(nil)
var _ http.ReviewReader = (*reviews.Repository)(nil)
var _ http.UserStore = (*users.Repository)(nil)
var _ http.Pinger = (*database.Database)(nil)

// =============================================================================
// Circulation
// =============================================================================

var _ http.BookService = (*circulation.Service)(nil)
var _ http.InventoryService = (*circulation.Service)(nil)
var _ http.LoanService = (*circulation.Service)(nil)
var _ http.FineService = (*circulation.Service)(nil)
var _ http.ReviewService = (*circulation.Service)(nil)
var _ http.MaintenanceService = (*circulation.Service)(nil)

var _ circulation.AuditSink = (*audit.Service)(nil)
var _ circulation.Notifier = (*notify.Notifier)(nil)

// =============================================================================
// Auth and Audit
// =============================================================================

var _ http.UserCreator = (*auth.Service)(nil)
var _ http.Auditor = (*audit.Service)(nil)
var _ auth.Auditor = (*audit.Service)(nil)

// =============================================================================
// Background Tasks
// =============================================================================

var _ tasks.FineSweeper = (*circulation.Service)(nil)
var _ tasks.AvailabilityReconciler = (*circulation.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
var _ tasks.NotificationWriter = (*notifications.Repository)(nil)

var _ notify.Enqueuer = (*tasks.Client)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)
var _ http.TaskEnqueuer = (*tasks.Client)(nil)
var _ http.TaskStatusReader = (*tasks.Client)(nil)
