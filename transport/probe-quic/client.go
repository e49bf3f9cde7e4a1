package probequic

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/avolia/tickprobe/core"
)

// Client is the dialing side of the QUIC transport facade. It opens the
// reliable stream on dial and reads both the stream and incoming datagrams
// into an inbound buffer drained once per tick.
type Client struct {
	codec  Codec
	logger *slog.Logger

	udpConn *net.UDPConn
	quicTr  *quic.Transport
	conn    *quic.Conn

	streamMu   sync.Mutex
	sendStream *quic.Stream

	mu      sync.Mutex
	inbound []core.Message
	errs    []error

	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to a probe server at addr and opens the reliable stream.
func Dial(ctx context.Context, addr string, codec Codec, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w", err)
	}

	localConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	qtr := &quic.Transport{Conn: localConn}

	conn, err := qtr.Dial(ctx, udpAddr, &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpnProtocol},
	}, &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		localConn.Close()
		qtr.Close()
		return nil, fmt.Errorf("quic dial %s: %w", addr, err)
	}

	// Outgoing reliable sends use a stream this side opens; the server's
	// reliable sends arrive on a stream accepted in readStream.
	sendStream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open reliable stream")
		qtr.Close()
		return nil, fmt.Errorf("open reliable stream: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		codec:      codec,
		logger:     logger,
		udpConn:    localConn,
		quicTr:     qtr,
		conn:       conn,
		sendStream: sendStream,
		notify:     make(chan struct{}, 1),
		ctx:        cctx,
		cancel:     cancel,
	}

	c.wg.Add(2)
	go c.readStream()
	go c.readDatagrams()

	c.logger.Info("QUIC transport connected", "addr", addr)

	return c, nil
}

// Step blocks until inbound activity is signalled or max elapses.
func (c *Client) Step(ctx context.Context, max time.Duration) {
	timer := time.NewTimer(max)
	defer timer.Stop()

	select {
	case <-c.notify:
	case <-timer.C:
	case <-ctx.Done():
	case <-c.ctx.Done():
	}
}

func (c *Client) Send(d core.Delivery, msg core.Message) error {
	if d == core.Unreliable {
		data, err := c.codec.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal datagram: %w", err)
		}
		// Fire and forget, same as any other datagram drop.
		_ = c.conn.SendDatagram(data)
		return nil
	}

	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if err := writeFrame(c.sendStream, c.codec, msg); err != nil {
		return fmt.Errorf("write reliable stream: %w", err)
	}
	return nil
}

// DrainMessages returns the messages received since the previous drain, in
// receipt order.
func (c *Client) DrainMessages() []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.inbound
	c.inbound = nil
	return msgs
}

// DrainErrors returns the transport errors queued since the previous drain.
func (c *Client) DrainErrors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := c.errs
	c.errs = nil
	return errs
}

// Close tears down the connection and waits for the read loops to exit.
func (c *Client) Close() error {
	c.cancel()
	c.conn.CloseWithError(0, "transport closing")
	c.wg.Wait()
	err := c.quicTr.Close()
	c.udpConn.Close()
	return err
}

func (c *Client) readStream() {
	defer c.wg.Done()

	recvStream, err := c.conn.AcceptStream(c.ctx)
	if err != nil {
		select {
		case <-c.ctx.Done():
		default:
			if !isClosingError(err) {
				c.pushError(fmt.Errorf("accept reliable stream: %w", err))
			}
		}
		return
	}

	for {
		msg, err := readFrame(recvStream, c.codec)
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				if !isClosingError(err) {
					c.pushError(fmt.Errorf("read reliable stream: %w", err))
				}
			}
			return
		}

		c.push(msg)
	}
}

func (c *Client) readDatagrams() {
	defer c.wg.Done()

	ds := c.conn.ConnectionState().SupportsDatagrams
	if !ds.Remote || !ds.Local {
		return
	}

	for {
		data, err := c.conn.ReceiveDatagram(c.ctx)
		if err != nil {
			return
		}

		msg, err := c.codec.Unmarshal(data)
		if err != nil {
			continue
		}

		c.push(msg)
	}
}

func (c *Client) push(msg core.Message) {
	c.mu.Lock()
	c.inbound = append(c.inbound, msg)
	c.mu.Unlock()
	wake(c.notify)
}

func (c *Client) pushError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	wake(c.notify)
}
