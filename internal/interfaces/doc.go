// Package interfaces documents the core abstractions used throughout the application.
//
// Consumers declare the narrow interface they need next to the code that uses
// it. This package only holds compile-time checks tying those interfaces to
// their implementations (see checks.go).
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - BookCatalog, BookLookup: catalog reads (internal/http/books.go, favourites.go)
//   - FavouritesStore: favourite tracking (internal/http/favourites.go)
//   - NotificationStore: reader inbox (internal/http/notifications.go)
//   - ReviewReader: reviews and rating summaries (internal/http/reviews.go)
//   - UserStore: account administration (internal/http/users.go)
//
// ## Circulation Interfaces
//
//   - BookService, InventoryService, LoanService, FineService, ReviewService,
//     MaintenanceService: operations served by circulation.Service
//   - AuditSink: receives before/after snapshots of every mutation
//     (internal/circulation/service.go)
//   - Notifier: fire-and-forget reader messages (internal/circulation/service.go)
//
// ## Background Task Interfaces
//
//   - FineSweeper, AvailabilityReconciler, AuditEventCleaner,
//     NotificationWriter: task processors (internal/tasks)
//   - Enqueuer: anything that saves backlite tasks (internal/notify,
//     internal/scheduler)
//
// # Adding an Implementation
//
// Add the type next to its package, then add a check to checks.go:
//
//	var _ http.ReviewReader = (*reviews.Repository)(nil)
package interfaces
