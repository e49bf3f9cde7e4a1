package probe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avolia/tickprobe/core"
)

// ClientRole drives the dialing side of a consistency run. It waits for the
// server to allow the connection, then emits sequence-numbered PlayerMove
// updates on the unreliable class and counts the EntityMove echoes that make
// it back.
type ClientRole struct {
	cfg       Config
	transport core.Client
	logger    *slog.Logger

	connected bool
	sequence  uint64
	lastSend  time.Time

	stats ClientStats
}

func NewClientRole(cfg Config, transport core.Client, logger *slog.Logger) *ClientRole {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientRole{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
	}
}

// Run executes the loop for the configured duration and derives the final
// report. Any transport error is fatal on the client and ends the run with no
// report.
func (c *ClientRole) Run(ctx context.Context) (ClientReport, error) {
	period := c.cfg.TickPeriod()
	interval := c.cfg.sendInterval()
	testEnd := time.Now().Add(c.cfg.Duration)

	err := runTicks(ctx, period, func(tickStart time.Time) (bool, error) {
		c.transport.Step(ctx, period)

		for _, err := range c.transport.DrainErrors() {
			c.logger.Error("client transport error", "error", err)
			return false, fmt.Errorf("transport: %w", err)
		}

		recvThisTick := 0
		for _, msg := range c.transport.DrainMessages() {
			switch msg.(type) {
			case *AllowConnection:
				c.logger.Info("connection allowed, starting test")
				if err := c.sendConnectionInfo(); err != nil {
					return false, err
				}
				c.connected = true
				c.lastSend = time.Now()
			case *EntityMove:
				recvThisTick++
				c.stats.Received++
			default:
				// Unexpected variants are ignored, not errors.
			}
		}

		if c.connected {
			c.stats.RecordTick(recvThisTick)

			// Elapsed-time gating rather than a strict once-per-tick send:
			// the drift between send interval and tick cadence is part of
			// what the run measures.
			if tickStart.Sub(c.lastSend) >= interval {
				c.sequence++
				move := &PlayerMove{
					Position: Vector3{X: float32(c.sequence)},
				}
				if err := c.transport.Send(core.Unreliable, move); err != nil {
					return false, fmt.Errorf("send player move: %w", err)
				}
				c.stats.Sent++
				c.lastSend = tickStart
			}
		}

		return !time.Now().Before(testEnd) && c.connected, nil
	})
	if err != nil {
		return ClientReport{}, err
	}

	return c.stats.Derive(), nil
}

func (c *ClientRole) sendConnectionInfo() error {
	info := &ConnectionInfo{
		Login:           c.cfg.Login,
		Version:         c.cfg.Version,
		Architecture:    c.cfg.Architecture,
		RenderingDevice: c.cfg.RenderingDevice,
	}
	if err := c.transport.Send(core.ReliableOrdered, info); err != nil {
		return fmt.Errorf("send connection info: %w", err)
	}
	return nil
}
