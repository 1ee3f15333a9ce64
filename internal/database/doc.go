// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, migrations, partial unique indexes
//	├── books/           # Catalog CRUD and search
//	├── inventory/       # Copy statuses and availability counters
//	├── loans/           # Loan rows and loan views
//	├── fines/           # Fine rows and accrual inserts
//	├── reviews/         # Book reviews
//	├── favourites/      # Favourite books
//	├── notifications/   # In-app notification inbox
//	├── reports/         # Read-only drift and overdue reports (goqu + sqlx)
//	├── audit/           # Audit event storage
//	└── users/           # User management
//
// # Transactions
//
// Repositories that take part in circulation transactions expose WithTx,
// which returns a copy bound to the transaction handle:
//
//	err := db.DB.Transaction(func(tx *gorm.DB) error {
//		copyID, err := inventoryRepo.WithTx(tx).ReserveOneCopy(bookID)
//		...
//	})
//
// Counter columns (books.available_copies, books.total_copies) are only ever
// changed with atomic "col = col ± n" updates inside the same transaction as
// the copy status change they mirror.
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Implement the required interface
//  5. Add compile-time interface check in internal/interfaces
package database
