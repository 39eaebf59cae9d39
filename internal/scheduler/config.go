package scheduler

import (
	"time"

	"github.com/smallbiznis/routepay/internal/config"
)

// Config controls scheduler intervals. A zero RunInterval disables the loop.
type Config struct {
	RunInterval   time.Duration
	RecalcTimeout time.Duration
	EnabledJobs   []string
}

func DefaultConfig() Config {
	return Config{
		RecalcTimeout: 30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.RunInterval = cfg.Payroll.RecalcInterval
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RecalcTimeout <= 0 {
		c.RecalcTimeout = defaults.RecalcTimeout
	}
	return c
}
