package tasks

import (
	"time"

	"github.com/mrlokans/librarian/internal/config"
)

// Config tunes the backlite client. Zero fields take the DefaultConfig value.
type Config struct {
	Workers           int
	MaxRetries        int
	RetryDelay        time.Duration
	TaskTimeout       time.Duration
	ReleaseAfter      time.Duration // stuck tasks go back to the queue after this
	CleanupInterval   time.Duration
	RetentionDuration time.Duration // completed tasks are kept this long
}

func DefaultConfig() Config {
	return Config{
		Workers:           2,
		MaxRetries:        3,
		RetryDelay:        time.Minute,
		TaskTimeout:       5 * time.Minute,
		ReleaseAfter:      15 * time.Minute,
		CleanupInterval:   time.Hour,
		RetentionDuration: 24 * time.Hour,
	}
}

// ConfigFrom maps the TASK_* settings onto a client Config.
func ConfigFrom(c config.Tasks) Config {
	return Config{
		Workers:           c.Workers,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        c.RetryDelay,
		TaskTimeout:       c.TaskTimeout,
		ReleaseAfter:      c.ReleaseAfter,
		CleanupInterval:   c.CleanupInterval,
		RetentionDuration: c.RetentionDuration,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = d.TaskTimeout
	}
	if c.ReleaseAfter <= 0 {
		c.ReleaseAfter = d.ReleaseAfter
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.RetentionDuration <= 0 {
		c.RetentionDuration = d.RetentionDuration
	}
	return c
}
