package acoustic

import (
	"fmt"
	"sync"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/pkg/logger"
)

// Network is the central modem table. Modems are indexed by NodeID and live
// for the whole run; directories handed to modems are snapshots built here.
type Network struct {
	mu       sync.RWMutex
	modems   []*Modem
	clock    core.Clock
	observer Observer
	seed     int64
	log      logger.Logger
}

// NewNetwork creates an empty network. A non-zero seed makes every modem's
// draws reproducible; modem i is seeded with seed+i.
func NewNetwork(clock core.Clock, observer Observer, seed int64) *Network {
	if clock == nil {
		clock = core.WallClock{}
	}
	return &Network{clock: clock, observer: observer, seed: seed, log: logger.WithPrefix("acoustic")}
}

// Join creates the next modem. Its NodeID is the number of modems already
// in the network.
func (n *Network) Join(settings ChannelSettings) (*Modem, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channel settings: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	id := NodeID(len(n.modems))
	opts := []Option{WithClock(n.clock), WithLogger(n.log.WithField("node", int(id)))}
	if n.observer != nil {
		opts = append(opts, WithObserver(n.observer))
	}
	if n.seed != 0 {
		opts = append(opts, WithSeed(n.seed+int64(id)))
	}

	m := NewModem(id, settings, opts...)
	n.modems = append(n.modems, m)
	n.log.Debugf("Node %d joined: loss %.2f noise %.2f delay %v", id, settings.Loss, settings.Noise, settings.Delay)
	return m, nil
}

// Modem looks a modem up by ID
func (n *Network) Modem(id NodeID) (*Modem, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if id < 0 || int(id) >= len(n.modems) {
		return nil, false
	}
	return n.modems[id], true
}

// Modems returns the modems in NodeID order
func (n *Network) Modems() []*Modem {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Modem, len(n.modems))
	copy(out, n.modems)
	return out
}

func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.modems)
}

// Directory builds a snapshot of every modem in the network
func (n *Network) Directory() Directory {
	n.mu.RLock()
	defer n.mu.RUnlock()
	dir := make(Directory, len(n.modems))
	for _, m := range n.modems {
		dir[m.id] = m
	}
	return dir
}

// Pending returns the number of packets queued across all inboxes
func (n *Network) Pending() int {
	total := 0
	for _, m := range n.Modems() {
		total += m.Pending()
	}
	return total
}
