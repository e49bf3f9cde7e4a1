package probe

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/avolia/tickprobe/core"
)

// Wire type tags. One byte prefixes every encoded message.
const (
	wireAllowConnection byte = 0x01
	wireConnectionInfo  byte = 0x02
	wirePlayerMove      byte = 0x03
	wireEntityMove      byte = 0x04
)

// Codec serializes probe messages as a type byte followed by a CBOR body.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) Marshal(msg core.Message) ([]byte, error) {
	var tag byte
	switch msg.(type) {
	case *AllowConnection:
		tag = wireAllowConnection
	case *ConnectionInfo:
		tag = wireConnectionInfo
	case *PlayerMove:
		tag = wirePlayerMove
	case *EntityMove:
		tag = wireEntityMove
	default:
		return nil, fmt.Errorf("unsupported message type: %T", msg)
	}

	body, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}

	buf := make([]byte, 0, 1+len(body))
	buf = append(buf, tag)
	return append(buf, body...), nil
}

func (c *Codec) Unmarshal(data []byte) (core.Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var msg core.Message
	switch data[0] {
	case wireAllowConnection:
		msg = &AllowConnection{}
	case wireConnectionInfo:
		msg = &ConnectionInfo{}
	case wirePlayerMove:
		msg = &PlayerMove{}
	case wireEntityMove:
		msg = &EntityMove{}
	default:
		return nil, fmt.Errorf("unknown message tag 0x%02x", data[0])
	}

	if err := cbor.Unmarshal(data[1:], msg); err != nil {
		return nil, fmt.Errorf("decode message tag 0x%02x: %w", data[0], err)
	}

	return msg, nil
}
