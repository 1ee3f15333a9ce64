package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

// sqliteParams make every transaction take the write lock up front
// (BEGIN IMMEDIATE) so concurrent writers queue on busy_timeout instead of
// failing when a read lock cannot be upgraded.
const sqliteParams = "_busy_timeout=5000&_txlock=immediate&_foreign_keys=1&_journal_mode=WAL"

// partialIndexes enforce one active loan per copy and one accrued fine per loan.
// Both SQLite and PostgreSQL accept this syntax.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_active_copy ON loans(copy_id) WHERE status = 'active'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_fines_accrued_loan ON fines(loan_id) WHERE status = 'accrued'`,
}

type Database struct {
	DB     *gorm.DB
	driver string
}

// NewDatabase opens (or creates) a SQLite database at dbPath and migrates it.
func NewDatabase(dbPath string) (*Database, error) {
	return Open(config.Database{Driver: config.DriverSQLite, Path: dbPath})
}

// Open connects to the configured store and migrates the schema.
func Open(cfg config.Database) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database DSN is required for driver %q", cfg.Driver)
		}
		dialector = postgres.Open(cfg.DSN)
	case config.DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(cfg.Path))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &Database{DB: db, driver: cfg.Driver}
	if database.driver == "" {
		database.driver = config.DriverSQLite
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	target := cfg.Path
	if database.IsPostgres() {
		target = "postgres"
	}
	log.Printf("Database initialized successfully at %s", target)

	return database, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + sqliteParams
	}
	return path + "?" + sqliteParams
}

func (d *Database) migrate() error {
	err := d.DB.AutoMigrate(
		&entities.User{},
		&entities.Book{},
		&entities.Copy{},
		&entities.Loan{},
		&entities.Fine{},
		&entities.Review{},
		&entities.Favourite{},
		&entities.Notification{},
		&entities.AuditEvent{},
	)
	if err != nil {
		return err
	}

	for _, stmt := range partialIndexes {
		if err := d.DB.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// IsPostgres reports whether row-level locking clauses are available.
func (d *Database) IsPostgres() bool {
	return d.driver == config.DriverPostgres
}

// Dialect returns the SQL dialect name used by query builders.
func (d *Database) Dialect() string {
	if d.IsPostgres() {
		return "postgres"
	}
	return "sqlite3"
}

// Ping checks connectivity to the underlying store.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
