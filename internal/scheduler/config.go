// Package scheduler provides task dispatching with worker pool management.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent workers across all plans.
	GlobalMax int `yaml:"global_max"`
	// Interval is how often the queue is polled for claimable tasks.
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax: 32,
		Interval:  time.Second,
	}
}

func (c *Config) interval() time.Duration {
	if c.Interval <= 0 {
		return time.Second
	}
	return c.Interval
}
