package probequic

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/avolia/tickprobe/core"
)

// Server is the listening side of the QUIC transport facade. Accepted peers
// are surfaced as Connect events carrying a serverConn handle; the probe
// tracks a single logical connection and simply keeps the latest.
type Server struct {
	codec  Codec
	logger *slog.Logger

	udpConn  *net.UDPConn
	quicTr   *quic.Transport
	listener *quic.Listener

	mu     sync.Mutex
	events []core.ConnEvent
	errs   []error
	conns  []*serverConn

	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer starts a QUIC listener on listenAddr. Use ":0" to let the OS
// assign a random port, then call Addr() to discover it.
func NewServer(listenAddr string, codec Codec, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("generate TLS cert: %w", err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	qtr := &quic.Transport{Conn: udpConn}

	quicConf := &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	listener, err := qtr.Listen(&tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpnProtocol},
	}, quicConf)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("quic listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		codec:    codec,
		logger:   logger,
		udpConn:  udpConn,
		quicTr:   qtr,
		listener: listener,
		notify:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("QUIC transport listening", "addr", udpConn.LocalAddr().String())

	return s, nil
}

// Addr returns the local UDP address the transport is listening on.
func (s *Server) Addr() string {
	return s.udpConn.LocalAddr().String()
}

// Step blocks until inbound activity is signalled or max elapses.
func (s *Server) Step(ctx context.Context, max time.Duration) {
	timer := time.NewTimer(max)
	defer timer.Stop()

	select {
	case <-s.notify:
	case <-timer.C:
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
}

// DrainConnections returns the connection events queued since the previous
// drain, in arrival order.
func (s *Server) DrainConnections() []core.ConnEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events
	s.events = nil
	return events
}

// DrainErrors returns the transport errors queued since the previous drain.
func (s *Server) DrainErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := s.errs
	s.errs = nil
	return errs
}

// Close shuts down the listener and all accepted connections.
func (s *Server) Close() error {
	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	for _, c := range s.conns {
		c.conn.CloseWithError(0, "transport closing")
	}
	s.mu.Unlock()

	s.wg.Wait()
	err := s.quicTr.Close()
	s.udpConn.Close()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				s.pushError(fmt.Errorf("quic accept: %w", err))
			}
			return
		}

		// Each side opens its own stream for outgoing reliable sends and
		// accepts the peer's stream for reads, so a send never waits for
		// the peer to materialize anything.
		sendStream, err := conn.OpenStreamSync(s.ctx)
		if err != nil {
			conn.CloseWithError(0, "failed to open reliable stream")
			s.pushError(fmt.Errorf("open reliable stream: %w", err))
			continue
		}

		c := &serverConn{
			id:         core.ClientId(uuid.NewString()),
			conn:       conn,
			codec:      s.codec,
			sendStream: sendStream,
		}

		s.mu.Lock()
		s.conns = append(s.conns, c)
		s.events = append(s.events, core.Connect{Conn: c})
		s.mu.Unlock()
		wake(s.notify)

		s.logger.Debug("accepted QUIC connection", "id", c.id, "remote", conn.RemoteAddr())

		s.wg.Add(1)
		go s.handleConnection(c)
	}
}

func (s *Server) handleConnection(c *serverConn) {
	defer s.wg.Done()

	s.wg.Add(1)
	go s.handleDatagrams(c)

	recvStream, err := c.conn.AcceptStream(s.ctx)
	if err != nil {
		s.disconnect(c, closeReason(err))
		return
	}

	for {
		msg, err := readFrame(recvStream, s.codec)
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				if !isClosingError(err) {
					s.pushError(fmt.Errorf("read reliable stream: %w", err))
				}
			}
			s.disconnect(c, closeReason(err))
			return
		}

		c.push(msg)
		wake(s.notify)
	}
}

func (s *Server) handleDatagrams(c *serverConn) {
	defer s.wg.Done()

	ds := c.conn.ConnectionState().SupportsDatagrams
	if !ds.Remote || !ds.Local {
		return
	}

	for {
		data, err := c.conn.ReceiveDatagram(s.ctx)
		if err != nil {
			return
		}

		msg, err := s.codec.Unmarshal(data)
		if err != nil {
			// Garbled datagrams are dropped like lost ones.
			continue
		}

		c.push(msg)
		wake(s.notify)
	}
}

func (s *Server) disconnect(c *serverConn, reason string) {
	c.mu.Lock()
	already := c.gone
	c.gone = true
	c.mu.Unlock()
	if already {
		return
	}

	s.mu.Lock()
	s.events = append(s.events, core.Disconnect{ClientId: c.id, Reason: reason})
	s.mu.Unlock()
	wake(s.notify)
}

func (s *Server) pushError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	wake(s.notify)
}

// serverConn is the handle for one accepted peer.
type serverConn struct {
	id         core.ClientId
	conn       *quic.Conn
	codec      Codec
	sendStream *quic.Stream

	mu      sync.Mutex
	inbound []core.Message
	gone    bool
}

func (c *serverConn) ClientId() core.ClientId {
	return c.id
}

func (c *serverConn) Send(d core.Delivery, msg core.Message) error {
	if d == core.Unreliable {
		data, err := c.codec.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal datagram: %w", err)
		}
		// Fire and forget: a failed datagram send is indistinguishable
		// from a dropped one to the receiving end.
		_ = c.conn.SendDatagram(data)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeFrame(c.sendStream, c.codec, msg); err != nil {
		return fmt.Errorf("write reliable stream: %w", err)
	}
	return nil
}

func (c *serverConn) DrainMessages() []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.inbound
	c.inbound = nil
	return msgs
}

func (c *serverConn) push(msg core.Message) {
	c.mu.Lock()
	c.inbound = append(c.inbound, msg)
	c.mu.Unlock()
}
