package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Audit
		Tasks
		Auth
		Library
		Schedules
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Driver string // "sqlite" (default) or "postgres"
		Path   string // SQLite file path
		DSN    string // PostgreSQL connection string
	}
	Audit struct {
		RetentionDays int    // Days to keep audit events (default: 90)
		ArchiveDir    string // Expired events are archived here before deletion; empty disables
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Auth struct {
		SessionSecret   string
		SessionLifetime time.Duration
		TokenExpiry     time.Duration
		BcryptCost      int
		SecureCookies   bool // Set to false for local dev without HTTPS
		CSRFEnabled     bool

		MaxLoginAttempts int           // Failed attempts before lockout (default: 5)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}
	// Library holds the circulation policy.
	Library struct {
		LoanPeriodDays int
		MaxExtensions  int
		ExtensionDays  int
		DailyFineRate  int64
	}
	Schedules struct {
		Enabled          bool
		FineSweep        string // Cron format: "15 0 * * *" = daily at 00:15
		Reconcile        string // Cron format: "0 3 * * 0" = Sundays at 03:00
		AuditCleanup     string
		TimezoneLocation string
	}
)

// loadDotEnv reads a .env file into the process environment when one exists.
// Variables that are already set are never overwritten.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("WARNING: failed to load %s: %v", path, err)
	}
}

func NewConfig() *Config {
	loadDotEnv(".env")

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_dsn", "")
	v.SetDefault("audit_retention_days", 90)
	v.SetDefault("audit_archive_dir", "")

	// Circulation policy defaults
	v.SetDefault("loan_period_days", DefaultLoanPeriodDays)
	v.SetDefault("max_extensions", DefaultMaxExtensions)
	v.SetDefault("extension_days", DefaultExtensionDays)
	v.SetDefault("daily_fine_rate", DefaultDailyFineRate)

	// Scheduler defaults
	v.SetDefault("schedules_enabled", true)
	v.SetDefault("fine_sweep_schedule", "15 0 * * *")    // Daily at 00:15
	v.SetDefault("reconcile_schedule", "0 3 * * 0")      // Sundays at 03:00
	v.SetDefault("audit_cleanup_schedule", "30 2 * * *") // Daily at 02:30
	v.SetDefault("schedules_timezone", "Local")

	// Auth defaults
	v.SetDefault("auth_session_secret", "")      // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "24h") // 24 hours
	v.SetDefault("auth_token_expiry", "720h")    // 30 days
	v.SetDefault("auth_bcrypt_cost", 12)         // bcrypt cost factor
	v.SetDefault("auth_secure_cookies", true)    // HTTPS-only cookies
	v.SetDefault("auth_csrf_enabled", true)      // CSRF for cookie sessions
	v.SetDefault("auth_max_login_attempts", 5)   // Max failed attempts
	v.SetDefault("auth_lockout_duration", "30m") // Lockout duration

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver: v.GetString("DATABASE_DRIVER"),
			Path:   v.GetString("DATABASE_PATH"),
			DSN:    v.GetString("DATABASE_DSN"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
			ArchiveDir:    v.GetString("AUDIT_ARCHIVE_DIR"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Auth: Auth{
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			TokenExpiry:      v.GetDuration("AUTH_TOKEN_EXPIRY"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			CSRFEnabled:      v.GetBool("AUTH_CSRF_ENABLED"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Library: Library{
			LoanPeriodDays: v.GetInt("LOAN_PERIOD_DAYS"),
			MaxExtensions:  v.GetInt("MAX_EXTENSIONS"),
			ExtensionDays:  v.GetInt("EXTENSION_DAYS"),
			DailyFineRate:  v.GetInt64("DAILY_FINE_RATE"),
		},
		Schedules: Schedules{
			Enabled:          v.GetBool("SCHEDULES_ENABLED"),
			FineSweep:        v.GetString("FINE_SWEEP_SCHEDULE"),
			Reconcile:        v.GetString("RECONCILE_SCHEDULE"),
			AuditCleanup:     v.GetString("AUDIT_CLEANUP_SCHEDULE"),
			TimezoneLocation: v.GetString("SCHEDULES_TIMEZONE"),
		},
	}
}
