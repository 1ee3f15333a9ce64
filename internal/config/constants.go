package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./library.db"
)

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Circulation policy defaults
const (
	DefaultLoanPeriodDays = 30
	DefaultMaxExtensions  = 2
	DefaultExtensionDays  = 14
	DefaultDailyFineRate  = 2
)
