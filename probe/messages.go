package probe

type Vector3 struct {
	X float32 `cbor:"x"`
	Y float32 `cbor:"y"`
	Z float32 `cbor:"z"`
}

type Rotation struct {
	Yaw   float32 `cbor:"yaw"`
	Pitch float32 `cbor:"pitch"`
}

// PlayerMove is the client's position update, sent on the unreliable class.
// The probe encodes its send sequence number into Position.X so the server
// can detect loss and reordering.
type PlayerMove struct {
	Position Vector3  `cbor:"p"`
	Rotation Rotation `cbor:"r"`
}

// Sequence returns the sequence number carried in the position payload.
func (m *PlayerMove) Sequence() uint64 {
	return uint64(m.Position.X)
}

// EntityMove echoes a PlayerMove back to the client. Timestamp is seconds
// elapsed since the start of the server tick that processed the update.
type EntityMove struct {
	WorldSlug string   `cbor:"w"`
	Id        uint32   `cbor:"id"`
	Position  Vector3  `cbor:"p"`
	Rotation  Rotation `cbor:"r"`
	Timestamp float32  `cbor:"ts"`
}

// AllowConnection is the server's connection-acceptance acknowledgment, sent
// reliable-ordered immediately after a peer connects.
type AllowConnection struct{}

// ConnectionInfo describes the client identity and environment. The client
// sends it once, reliable-ordered, after AllowConnection arrives.
type ConnectionInfo struct {
	Login           string `cbor:"login"`
	Version         string `cbor:"version"`
	Architecture    string `cbor:"arch"`
	RenderingDevice string `cbor:"device"`
}
