package core

import (
	"context"
	"time"
)

// ClientId identifies a peer connection. Transports assign it when the peer
// is accepted.
type ClientId string

// Delivery selects the delivery class for an outgoing message.
type Delivery uint8

const (
	// ReliableOrdered guarantees in-order, exactly-once arrival.
	ReliableOrdered Delivery = iota
	// Unreliable offers no guarantee of arrival, ordering or single delivery.
	Unreliable
)

func (d Delivery) String() string {
	switch d {
	case ReliableOrdered:
		return "reliable-ordered"
	case Unreliable:
		return "unreliable"
	default:
		return "unknown"
	}
}

// Conn is the server-side handle for a single accepted peer.
type Conn interface {
	ClientId() ClientId
	Send(d Delivery, msg Message) error

	// DrainMessages returns the messages received from this peer since the
	// previous drain, in receipt order.
	DrainMessages() []Message
}

// ConnEvent is either a Connect or a Disconnect.
type ConnEvent any

// Connect is queued when a peer finishes the transport handshake.
type Connect struct {
	Conn Conn
}

// Disconnect is queued when a peer goes away.
type Disconnect struct {
	ClientId ClientId
	Reason   string
}

// Server is the listening side of the transport facade.
type Server interface {
	// Step advances transport processing, blocking up to max while waiting
	// for inbound activity.
	Step(ctx context.Context, max time.Duration)

	DrainConnections() []ConnEvent
	DrainErrors() []error
	Addr() string
	Close() error
}

// Client is the dialing side of the transport facade.
type Client interface {
	Step(ctx context.Context, max time.Duration)

	Send(d Delivery, msg Message) error
	DrainMessages() []Message
	DrainErrors() []error
	Close() error
}
