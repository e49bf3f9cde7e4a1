// Package probequic implements the transport facade over QUIC.
//
// The two delivery classes map onto QUIC primitives directly: one
// bidirectional stream per connection carries the reliable-ordered class,
// and QUIC datagrams (RFC 9221) carry the unreliable class. Datagrams may be
// dropped, reordered or duplicated by the network; nothing here corrects
// that, since loss is the phenomenon the probe exists to measure.
package probequic

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/avolia/tickprobe/core"
)

const alpnProtocol = "tickprobe"

// Codec serializes and deserializes messages for transport over the wire.
type Codec interface {
	Marshal(msg core.Message) ([]byte, error)
	Unmarshal(data []byte) (core.Message, error)
}

// writeFrame writes a length-prefixed, codec-encoded message to the reliable
// stream. Framing is a 4-byte big-endian length followed by the payload.
func writeFrame(w io.Writer, codec Codec, msg core.Message) error {
	data, err := codec.Marshal(msg)
	if err != nil {
		return err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return nil
}

// readFrame reads a length-prefixed, codec-encoded message from the reliable
// stream.
func readFrame(r io.Reader, codec Codec) (core.Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	return codec.Unmarshal(data)
}

func isClosingError(err error) bool {
	var appErr *quic.ApplicationError
	return errors.As(err, &appErr)
}

// closeReason extracts a human-readable disconnect reason.
func closeReason(err error) string {
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.ErrorMessage != "" {
		return appErr.ErrorMessage
	}
	if errors.Is(err, io.EOF) {
		return "stream closed"
	}
	return err.Error()
}

// wake posts a coalesced activity token. Stale tokens cause at worst an early
// Step return, never a missed wakeup.
func wake(notify chan struct{}) {
	select {
	case notify <- struct{}{}:
	default:
	}
}
