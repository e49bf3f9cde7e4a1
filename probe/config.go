package probe

import (
	"fmt"
	"time"
)

// Config holds the parameters of one consistency run.
type Config struct {
	// TickRate is the number of simulation loop iterations per second.
	TickRate int

	// SendInterval is the minimum time between client position updates.
	// Zero means one tick period.
	SendInterval time.Duration

	// Duration is the wall-clock length of the run.
	Duration time.Duration

	// Identity sent by the client once the connection is allowed.
	Login           string
	Version         string
	Architecture    string
	RenderingDevice string
}

func DefaultConfig() Config {
	return Config{
		TickRate:        64,
		Duration:        10 * time.Second,
		Login:           "consistency-test",
		Version:         "test",
		Architecture:    "test",
		RenderingDevice: "test",
	}
}

// TickPeriod returns the wall-clock duration of one tick.
func (c Config) TickPeriod() time.Duration {
	return time.Duration(float64(time.Second) / float64(c.TickRate))
}

func (c Config) sendInterval() time.Duration {
	if c.SendInterval > 0 {
		return c.SendInterval
	}
	return c.TickPeriod()
}

func (c Config) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickRate)
	}
	if c.SendInterval < 0 {
		return fmt.Errorf("send interval must not be negative, got %s", c.SendInterval)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	return nil
}
