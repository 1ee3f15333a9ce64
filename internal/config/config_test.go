package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8188), cfg.HTTP.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, DefaultLoanPeriodDays, cfg.Library.LoanPeriodDays)
	assert.Equal(t, DefaultMaxExtensions, cfg.Library.MaxExtensions)
	assert.Equal(t, DefaultExtensionDays, cfg.Library.ExtensionDays)
	assert.Equal(t, int64(DefaultDailyFineRate), cfg.Library.DailyFineRate)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionLifetime)
	assert.Equal(t, "15 0 * * *", cfg.Schedules.FineSweep)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DAILY_FINE_RATE", "5")
	t.Setenv("LOAN_PERIOD_DAYS", "21")
	t.Setenv("DATABASE_DRIVER", DriverPostgres)
	t.Setenv("AUTH_LOCKOUT_DURATION", "10m")

	cfg := NewConfig()

	assert.Equal(t, int32(9000), cfg.HTTP.Port)
	assert.Equal(t, int64(5), cfg.Library.DailyFineRate)
	assert.Equal(t, 21, cfg.Library.LoanPeriodDays)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Auth.LockoutDuration)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LIBRARY_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LIBRARY_TEST_DOTENV") })

	loadDotEnv(path)
	assert.Equal(t, "from-file", os.Getenv("LIBRARY_TEST_DOTENV"))

	t.Run("missing file is ignored", func(t *testing.T) {
		loadDotEnv(filepath.Join(dir, "missing.env"))
	})
}
