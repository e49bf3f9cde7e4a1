package core

// Message is any value exchanged between the probe roles. Concrete shapes are
// defined by the probe package; transports treat messages as opaque and hand
// them to a codec for the wire.
type Message any
