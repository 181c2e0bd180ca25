package acoustic

import (
	"fmt"
	"time"

	"github.com/rs/xid"
)

// NodeID identifies a vehicle and its modem. IDs are dense, starting at 0.
type NodeID int

// Kind tags the meaning of a packet. Applications may define their own kinds.
type Kind string

const (
	KindGeneric           Kind = "GENERIC"
	KindPositionBroadcast Kind = "POSITION_BROADCAST"
)

// Payload is the body of a packet: either a Vector or Opaque bytes.
type Payload interface {
	isPayload()
}

// Vector is a numeric payload. Each component is subject to channel noise.
type Vector []float64

// Opaque is carried through the channel untouched.
type Opaque []byte

func (Vector) isPayload() {}
func (Opaque) isPayload() {}

// Packet is an immutable message queued in a receiver's inbox.
type Packet struct {
	ID      string
	Sender  NodeID
	Kind    Kind
	Payload Payload
	SentAt  time.Time
}

func newPacket(sender NodeID, kind Kind, payload Payload, sentAt time.Time) Packet {
	return Packet{
		ID:      xid.New().String(),
		Sender:  sender,
		Kind:    kind,
		Payload: payload,
		SentAt:  sentAt,
	}
}

// Age returns how long the packet has been in flight at now
func (p Packet) Age(now time.Time) time.Duration {
	return now.Sub(p.SentAt)
}

// Vector returns the numeric payload, if the packet carries one
func (p Packet) Vector() (Vector, bool) {
	v, ok := p.Payload.(Vector)
	return v, ok
}

func (p Packet) String() string {
	return fmt.Sprintf("packet %s from %d (%s)", p.ID, p.Sender, p.Kind)
}
