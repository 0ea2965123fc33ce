package reconcile

import (
	"time"

	"github.com/smallbiznis/flagship/internal/config"
)

const defaultLockKey = "flagship:reconcile:lock"

// Config controls the repair loop.
type Config struct {
	Enabled  bool
	Interval time.Duration
	LockTTL  time.Duration
	LockKey  string
	// Timeout bounds a single RunOnce.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Interval: 5 * time.Minute,
		LockTTL:  2 * time.Minute,
		LockKey:  defaultLockKey,
		Timeout:  time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:  cfg.Reconcile.Enabled,
		Interval: cfg.Reconcile.Interval,
		LockTTL:  cfg.Reconcile.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	return c
}
