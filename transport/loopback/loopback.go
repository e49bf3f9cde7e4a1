// Package loopback provides an in-process pair of transport facades wired by
// in-memory queues. Delivery is in-order and lossless by default; the
// unreliable path of either direction can be tampered with (drop, duplicate,
// reorder) to reproduce hostile network conditions deterministically.
package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolia/tickprobe/core"
)

// TamperFunc rewrites one unreliable message into zero or more delivered
// messages. n is the 1-based ordinal of the unreliable message on its
// direction. Returning nil drops the message; returning the message twice
// duplicates it.
type TamperFunc func(n int, msg core.Message) []core.Message

// link is one direction of the in-memory pipe.
type link struct {
	mu     sync.Mutex
	queue  []core.Message
	nUnrel int
	tamper TamperFunc
	notify chan struct{}
}

func newLink() *link {
	return &link{notify: make(chan struct{}, 1)}
}

func (l *link) send(d core.Delivery, msg core.Message) {
	l.mu.Lock()
	if d == core.Unreliable && l.tamper != nil {
		l.nUnrel++
		l.queue = append(l.queue, l.tamper(l.nUnrel, msg)...)
	} else {
		l.queue = append(l.queue, msg)
	}
	l.mu.Unlock()
	l.wake()
}

func (l *link) drain() []core.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := l.queue
	l.queue = nil
	return msgs
}

func (l *link) wake() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *link) setTamper(f TamperFunc) {
	l.mu.Lock()
	l.tamper = f
	l.mu.Unlock()
}

// New returns a connected client/server transport pair. The server observes
// the Connect event on the client's first Step, mirroring a real dial.
func New() (*Client, *Server) {
	toServer := newLink()
	toClient := newLink()

	conn := &Conn{
		id:  core.ClientId(uuid.NewString()),
		in:  toServer,
		out: toClient,
	}

	srv := &Server{conn: conn}
	cl := &Client{
		in:   toClient,
		out:  toServer,
		peer: srv,
	}

	return cl, srv
}

// Client is the dialing side of the loopback pair.
type Client struct {
	in  *link
	out *link

	peer *Server

	mu     sync.Mutex
	dialed bool
	closed bool
	errs   []error
}

// Step announces the dial on first call, then blocks until inbound activity
// or max elapses.
func (c *Client) Step(ctx context.Context, max time.Duration) {
	c.mu.Lock()
	first := !c.dialed
	c.dialed = true
	c.mu.Unlock()

	if first {
		c.peer.connect()
		return
	}

	timer := time.NewTimer(max)
	defer timer.Stop()

	select {
	case <-c.in.notify:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (c *Client) Send(d core.Delivery, msg core.Message) error {
	c.out.send(d, msg)
	return nil
}

func (c *Client) DrainMessages() []core.Message {
	return c.in.drain()
}

func (c *Client) DrainErrors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := c.errs
	c.errs = nil
	return errs
}

// InjectError queues a transport error for the next drain. Used to exercise
// the client's fatal-error path.
func (c *Client) InjectError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	c.in.wake()
}

// TamperUnreliable installs a tamper hook on the client-to-server unreliable
// path.
func (c *Client) TamperUnreliable(f TamperFunc) {
	c.out.setTamper(f)
}

func (c *Client) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()

	if !already && c.dialed {
		c.peer.disconnect("client closed")
	}
	return nil
}

// Server is the listening side of the loopback pair.
type Server struct {
	conn *Conn

	mu     sync.Mutex
	events []core.ConnEvent
	errs   []error
}

func (s *Server) connect() {
	s.mu.Lock()
	s.events = append(s.events, core.Connect{Conn: s.conn})
	s.mu.Unlock()
	s.conn.in.wake()
}

func (s *Server) disconnect(reason string) {
	s.mu.Lock()
	s.events = append(s.events, core.Disconnect{ClientId: s.conn.id, Reason: reason})
	s.mu.Unlock()
	s.conn.in.wake()
}

// Step blocks until inbound activity or max elapses.
func (s *Server) Step(ctx context.Context, max time.Duration) {
	timer := time.NewTimer(max)
	defer timer.Stop()

	select {
	case <-s.conn.in.notify:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *Server) DrainConnections() []core.ConnEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events
	s.events = nil
	return events
}

func (s *Server) DrainErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := s.errs
	s.errs = nil
	return errs
}

// InjectError queues a transport error for the next drain. Used to exercise
// the server's log-and-continue path.
func (s *Server) InjectError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	s.conn.in.wake()
}

// TamperUnreliable installs a tamper hook on the server-to-client unreliable
// path.
func (s *Server) TamperUnreliable(f TamperFunc) {
	s.conn.out.setTamper(f)
}

func (s *Server) Addr() string {
	return "loopback"
}

func (s *Server) Close() error {
	return nil
}

// Conn is the server-side handle for the loopback peer.
type Conn struct {
	id  core.ClientId
	in  *link // client to server
	out *link // server to client
}

func (c *Conn) ClientId() core.ClientId {
	return c.id
}

func (c *Conn) Send(d core.Delivery, msg core.Message) error {
	c.out.send(d, msg)
	return nil
}

func (c *Conn) DrainMessages() []core.Message {
	return c.in.drain()
}
