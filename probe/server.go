package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/avolia/tickprobe/core"
)

// ServerRole drives the listening side of a consistency run. It accepts one
// logical connection at a time, records every PlayerMove observed per tick
// and echoes each one back as an EntityMove on the unreliable class.
type ServerRole struct {
	cfg       Config
	transport core.Server
	logger    *slog.Logger

	// conn is the single tracked peer. A new Connect event overwrites it;
	// concurrent connections are deliberately not supported.
	conn core.Conn

	stats ServerStats
}

func NewServerRole(cfg Config, transport core.Server, logger *slog.Logger) *ServerRole {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerRole{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
	}
}

// Run executes the loop until the configured duration has elapsed and a
// connection is present. Transport errors are logged and the loop continues.
// The returned error is only a context cancellation; the report is derived
// from whatever was observed either way.
func (s *ServerRole) Run(ctx context.Context) (ServerReport, error) {
	period := s.cfg.TickPeriod()
	testEnd := time.Now().Add(s.cfg.Duration)

	s.logger.Info("waiting for client connection")

	err := runTicks(ctx, period, func(tickStart time.Time) (bool, error) {
		s.transport.Step(ctx, period)

		for _, err := range s.transport.DrainErrors() {
			s.logger.Error("server transport error", "error", err)
		}

		for _, ev := range s.transport.DrainConnections() {
			switch e := ev.(type) {
			case core.Connect:
				s.logger.Info("client connected", "id", e.Conn.ClientId())
				if err := e.Conn.Send(core.ReliableOrdered, &AllowConnection{}); err != nil {
					s.logger.Error("send allow connection", "error", err)
				}
				s.conn = e.Conn
			case core.Disconnect:
				s.logger.Info("client disconnected", "id", e.ClientId, "reason", e.Reason)
				s.conn = nil
			}
		}

		if s.conn != nil {
			countThisTick := 0
			now := time.Now()

			for _, msg := range s.conn.DrainMessages() {
				switch m := msg.(type) {
				case *PlayerMove:
					countThisTick++
					s.stats.RecordMessage(now, m.Sequence())
					s.echo(m, tickStart)
				case *ConnectionInfo:
					s.logger.Info("client sent connection info", "login", m.Login)
				default:
				}
			}

			s.stats.RecordTick(countThisTick)
		}

		return !time.Now().Before(testEnd) && s.conn != nil, nil
	})

	return s.stats.Derive(), err
}

func (s *ServerRole) echo(m *PlayerMove, tickStart time.Time) {
	echo := &EntityMove{
		Id:        1,
		Position:  m.Position,
		Rotation:  m.Rotation,
		Timestamp: float32(time.Since(tickStart).Seconds()),
	}
	if err := s.conn.Send(core.Unreliable, echo); err != nil {
		s.logger.Error("send entity move", "error", err)
	}
	s.stats.EchoesSent++
}
