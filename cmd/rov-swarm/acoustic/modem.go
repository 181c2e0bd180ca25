package acoustic

import (
	"fmt"
	"maps"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/pkg/logger"
)

// OverflowPolicy decides what a bounded inbox does when it is full
type OverflowPolicy string

const (
	// DropNewest rejects the incoming packet; Send reports false.
	DropNewest OverflowPolicy = "drop_newest"
	// DropOldest evicts the head of the inbox to make room.
	DropOldest OverflowPolicy = "drop_oldest"
)

// DropReason explains why a packet never reached, or left, an inbox
type DropReason string

const (
	DropLoss          DropReason = "loss"
	DropInboxFull     DropReason = "inbox_full"
	DropEvicted       DropReason = "evicted"
	DropSelf          DropReason = "self"
	DropNoDestination DropReason = "no_destination"
)

// ChannelSettings are the per-modem link parameters
type ChannelSettings struct {
	// Loss is the probability in [0, 1] that a send is lost.
	Loss float64
	// Noise is the maximum relative error applied to each numeric component.
	Noise float64
	// Delay is the minimum age before a queued packet can be received.
	Delay time.Duration
	// InboxCapacity bounds the inbox; 0 means unbounded.
	InboxCapacity int
	Overflow      OverflowPolicy
}

// DefaultChannelSettings returns the stock follower link parameters
func DefaultChannelSettings() ChannelSettings {
	return ChannelSettings{
		Loss:     0.1,
		Noise:    0.1,
		Delay:    500 * time.Millisecond,
		Overflow: DropNewest,
	}
}

// Validate checks the settings are usable
func (s ChannelSettings) Validate() error {
	if s.Loss < 0 || s.Loss > 1 {
		return fmt.Errorf("loss must be between 0.0 and 1.0, got %g", s.Loss)
	}
	if s.Noise < 0 {
		return fmt.Errorf("noise must not be negative, got %g", s.Noise)
	}
	if s.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %v", s.Delay)
	}
	if s.InboxCapacity < 0 {
		return fmt.Errorf("inbox capacity must not be negative, got %d", s.InboxCapacity)
	}
	switch s.Overflow {
	case "", DropNewest, DropOldest:
	default:
		return fmt.Errorf("unknown overflow policy %q", s.Overflow)
	}
	return nil
}

// Observer is notified of every transport outcome. Implementations must be
// safe for concurrent use.
type Observer interface {
	PacketSent(from, to NodeID, kind Kind)
	PacketDropped(from, to NodeID, kind Kind, reason DropReason)
	PacketDelivered(to NodeID, packet Packet, latency time.Duration)
}

// Directory maps node IDs to the modems a sender can reach. A directory does
// not own the modems it refers to.
type Directory map[NodeID]*Modem

// Modem is a node's acoustic transceiver. It owns its inbox; other modems
// write into it only through Send.
type Modem struct {
	id       NodeID
	settings ChannelSettings
	clock    core.Clock
	observer Observer
	log      logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.Mutex
	inbox []Packet

	dirMu     sync.RWMutex
	directory Directory
}

// Option configures a Modem
type Option func(*Modem)

// WithClock sets the clock used to stamp and age packets
func WithClock(c core.Clock) Option {
	return func(m *Modem) { m.clock = c }
}

// WithSeed makes the modem's loss and noise draws reproducible
func WithSeed(seed int64) Option {
	return func(m *Modem) { m.rng = rand.New(rand.NewSource(seed)) }
}

// WithObserver reports transport outcomes to o
func WithObserver(o Observer) Option {
	return func(m *Modem) { m.observer = o }
}

// WithLogger replaces the modem's logger
func WithLogger(l logger.Logger) Option {
	return func(m *Modem) { m.log = l }
}

// NewModem creates a modem with an empty inbox and directory
func NewModem(id NodeID, settings ChannelSettings, opts ...Option) *Modem {
	if settings.Overflow == "" {
		settings.Overflow = DropNewest
	}
	m := &Modem{
		id:        id,
		settings:  settings,
		clock:     core.WallClock{},
		directory: Directory{},
		log:       logger.WithPrefix("acoustic").WithField("node", int(id)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	}
	return m
}

func (m *Modem) ID() NodeID { return m.id }

func (m *Modem) Settings() ChannelSettings { return m.settings }

// Send attempts one transmission to dst. It returns false when the packet is
// lost in the channel or rejected by a full inbox. Send never blocks on the
// receiver beyond its inbox lock and never delivers to the sending modem.
func (m *Modem) Send(dst *Modem, payload Payload, kind Kind) bool {
	if dst == nil {
		m.dropped(-1, kind, DropNoDestination)
		return false
	}
	if dst == m {
		m.dropped(dst.id, kind, DropSelf)
		return false
	}

	if m.draw() < m.settings.Loss {
		m.dropped(dst.id, kind, DropLoss)
		return false
	}

	packet := newPacket(m.id, kind, m.corrupt(payload), m.clock.Now())
	evicted, ok := dst.enqueue(packet)
	if !ok {
		m.dropped(dst.id, kind, DropInboxFull)
		return false
	}
	if evicted != nil && m.observer != nil {
		m.observer.PacketDropped(evicted.Sender, dst.id, evicted.Kind, DropEvicted)
	}
	if m.observer != nil {
		m.observer.PacketSent(m.id, dst.id, kind)
	}
	return true
}

// ReceiveReady removes and returns, in arrival order, every packet that has
// been in flight for at least the modem's delay. Younger packets stay queued.
func (m *Modem) ReceiveReady() []Packet {
	now := m.clock.Now()

	m.mu.Lock()
	ready := make([]Packet, 0, len(m.inbox))
	kept := m.inbox[:0]
	for _, p := range m.inbox {
		if p.Age(now) >= m.settings.Delay {
			ready = append(ready, p)
		} else {
			kept = append(kept, p)
		}
	}
	clear(m.inbox[len(kept):])
	m.inbox = kept
	m.mu.Unlock()

	if m.observer != nil {
		for _, p := range ready {
			m.observer.PacketDelivered(m.id, p, p.Age(now))
		}
	}
	return ready
}

// BroadcastPosition sends pos to every directory entry except this modem,
// in node order, and returns how many sends went through.
func (m *Modem) BroadcastPosition(pos core.Vector3D) int {
	dir := m.Directory()

	sent := 0
	for _, id := range slices.Sorted(maps.Keys(dir)) {
		if id == m.id {
			continue
		}
		if m.Send(dir[id], Vector(pos.Components()), KindPositionBroadcast) {
			sent++
		}
	}
	return sent
}

// UpdateDirectory replaces the directory wholesale. The map is copied, so
// later changes by the caller do not leak in.
func (m *Modem) UpdateDirectory(dir Directory) {
	snapshot := make(Directory, len(dir))
	for id, modem := range dir {
		snapshot[id] = modem
	}

	m.dirMu.Lock()
	m.directory = snapshot
	m.dirMu.Unlock()
}

// Directory returns the current directory. Callers must not modify it.
func (m *Modem) Directory() Directory {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	return m.directory
}

// Pending returns the number of queued packets, ready or not
func (m *Modem) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inbox)
}

func (m *Modem) enqueue(p Packet) (*Packet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted *Packet
	if limit := m.settings.InboxCapacity; limit > 0 && len(m.inbox) >= limit {
		if m.settings.Overflow != DropOldest {
			return nil, false
		}
		head := m.inbox[0]
		evicted = &head
		m.inbox = slices.Delete(m.inbox, 0, 1)
	}
	m.inbox = append(m.inbox, p)
	return evicted, true
}

func (m *Modem) draw() float64 {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.rng.Float64()
}

// corrupt scales each numeric component by an independent factor drawn from
// [1-noise, 1+noise]. Opaque payloads are returned as is.
func (m *Modem) corrupt(payload Payload) Payload {
	v, ok := payload.(Vector)
	if !ok {
		return payload
	}

	out := make(Vector, len(v))
	copy(out, v)
	if m.settings.Noise <= 0 {
		return out
	}

	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	for i := range out {
		out[i] *= 1 + (2*m.rng.Float64()-1)*m.settings.Noise
	}
	return out
}

func (m *Modem) dropped(to NodeID, kind Kind, reason DropReason) {
	m.log.WithField("to", int(to)).Debugf("%s packet dropped: %s", kind, reason)
	if m.observer != nil {
		m.observer.PacketDropped(m.id, to, kind, reason)
	}
}
