// Package telemetry streams vehicle state to render hosts over a mangos
// pub/sub socket. Each frame is the topic followed by a snappy-compressed
// JSON batch.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/pkg/logger"
)

// Topic prefixes every telemetry frame
const Topic = "rov.telemetry:"

// ErrClosed is returned by a publisher or subscriber after Close
var ErrClosed = errors.New("telemetry socket closed")

// Publisher sends update batches to any number of subscribers
type Publisher struct {
	mu     sync.Mutex
	sock   mangos.Socket
	addr   string
	closed bool
	log    logger.Logger
}

var _ core.Sink = (*Publisher)(nil)

// Listen opens a pub socket bound to addr, e.g. "tcp://127.0.0.1:40899"
func Listen(addr string) (*Publisher, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create pub socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	log := logger.WithPrefix("telemetry")
	log.Infof("Publishing telemetry on %s", addr)

	return &Publisher{sock: sock, addr: addr, log: log}, nil
}

// Addr returns the address the publisher is bound to
func (p *Publisher) Addr() string {
	return p.addr
}

// Publish encodes the batch and sends it as one frame. Pub sockets never
// block; frames are dropped for subscribers that are not keeping up.
func (p *Publisher) Publish(ctx context.Context, batch []core.VehicleUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := Encode(batch)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if err := p.sock.Send(frame); err != nil {
		return fmt.Errorf("failed to send telemetry frame: %w", err)
	}
	p.log.Debugf("Published %d updates (%d bytes)", len(batch), len(frame))
	return nil
}

// Close releases the socket
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.sock.Close()
}

// Encode builds a telemetry frame from a batch
func Encode(batch []core.VehicleUpdate) ([]byte, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal telemetry batch: %w", err)
	}

	frame := make([]byte, 0, len(Topic)+snappy.MaxEncodedLen(len(data)))
	frame = append(frame, Topic...)
	return append(frame, snappy.Encode(nil, data)...), nil
}

// Decode parses a telemetry frame back into a batch
func Decode(frame []byte) ([]core.VehicleUpdate, error) {
	if !bytes.HasPrefix(frame, []byte(Topic)) {
		return nil, fmt.Errorf("frame missing %q topic", Topic)
	}

	data, err := snappy.Decode(nil, frame[len(Topic):])
	if err != nil {
		return nil, fmt.Errorf("failed to decompress telemetry frame: %w", err)
	}

	var batch []core.VehicleUpdate
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal telemetry batch: %w", err)
	}
	return batch, nil
}

// Subscriber receives telemetry batches from a publisher
type Subscriber struct {
	sock mangos.Socket
}

// Dial connects a sub socket to a publisher and subscribes to the topic
func Dial(addr string, recvTimeout time.Duration) (*Subscriber, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create sub socket: %w", err)
	}
	if err := sock.SetOption(mangos.OptionSubscribe, []byte(Topic)); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if recvTimeout > 0 {
		if err := sock.SetOption(mangos.OptionRecvDeadline, recvTimeout); err != nil {
			sock.Close()
			return nil, fmt.Errorf("failed to set receive deadline: %w", err)
		}
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Subscriber{sock: sock}, nil
}

// Recv waits for the next batch
func (s *Subscriber) Recv() ([]core.VehicleUpdate, error) {
	frame, err := s.sock.Recv()
	if err != nil {
		if errors.Is(err, mangos.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return Decode(frame)
}

// Close releases the socket
func (s *Subscriber) Close() error {
	return s.sock.Close()
}
