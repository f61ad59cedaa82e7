package stream

import "time"

// Default engine timings.
const (
	DefaultCycleInterval      = 5 * time.Second
	DefaultSendTimeout        = 2 * time.Second
	DefaultRefreshTimeout     = 3 * time.Second
	DefaultMaxConcurrentSends = 32
)

// Config holds broadcast engine configuration.
type Config struct {
	// CycleInterval is the wall-clock period between broadcast cycles.
	CycleInterval time.Duration

	// SendTimeout bounds each emitter send. A send exceeding it is treated
	// as a terminal send failure.
	SendTimeout time.Duration

	// RefreshTimeout bounds each upstream cache refresh. A refresh
	// exceeding it marks its (category, entity) pair degraded for the cycle.
	RefreshTimeout time.Duration

	// MaxConcurrentSends bounds send dispatch per cycle so one slow client
	// cannot delay delivery to others.
	MaxConcurrentSends int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		CycleInterval:      DefaultCycleInterval,
		SendTimeout:        DefaultSendTimeout,
		RefreshTimeout:     DefaultRefreshTimeout,
		MaxConcurrentSends: DefaultMaxConcurrentSends,
	}
}

// withDefaults fills zero or negative fields with defaults.
func (c Config) withDefaults() Config {
	if c.CycleInterval <= 0 {
		c.CycleInterval = DefaultCycleInterval
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = DefaultRefreshTimeout
	}
	if c.MaxConcurrentSends <= 0 {
		c.MaxConcurrentSends = DefaultMaxConcurrentSends
	}
	return c
}
