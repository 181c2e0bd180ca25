package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/picogrid/rov-simulations/pkg/logger"
)

// Sink receives flushed telemetry batches, normally the render host publisher.
type Sink interface {
	Publish(ctx context.Context, batch []VehicleUpdate) error
}

// UpdateBuffer batches per-vehicle telemetry between flushes. Only the latest
// state of each vehicle is kept; thrust commands accumulate until flushed.
type UpdateBuffer struct {
	sink          Sink
	updates       map[int]*VehicleUpdate
	maxBatchSize  int
	flushInterval time.Duration
	lastFlush     time.Time
	stats         UpdateStats
	mu            sync.Mutex
	flushMu       sync.Mutex
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	log           logger.Logger
}

// VehicleUpdate is one vehicle's telemetry frame
type VehicleUpdate struct {
	NodeID       int       `json:"node_id"`
	Role         string    `json:"role"`
	Tick         uint64    `json:"tick"`
	Position     Vector3D  `json:"position"`
	Velocity     Vector3D  `json:"velocity"`
	Battery      float64   `json:"battery"`
	Hazard       string    `json:"hazard"`
	Commands     []string  `json:"commands,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// UpdateStats tracks update statistics
type UpdateStats struct {
	TotalUpdates     int64
	BatchesSent      int64
	UpdatesSent      int64
	UpdatesFailed    int64
	AverageBatchSize float64
	LastBatchTime    time.Time
	LastError        error
}

// NewUpdateBuffer creates a new update buffer. A nil sink discards batches
// after counting them.
func NewUpdateBuffer(sink Sink, maxBatchSize int, flushInterval time.Duration) *UpdateBuffer {
	if maxBatchSize <= 0 {
		maxBatchSize = 1
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &UpdateBuffer{
		sink:          sink,
		updates:       make(map[int]*VehicleUpdate),
		maxBatchSize:  maxBatchSize,
		flushInterval: flushInterval,
		lastFlush:     time.Now(),
		stopChan:      make(chan struct{}),
		log:           logger.WithPrefix("telemetry"),
	}
}

// Start begins the automatic flush goroutine
func (ub *UpdateBuffer) Start(ctx context.Context) {
	ub.wg.Add(1)
	go func() {
		defer ub.wg.Done()

		ticker := time.NewTicker(ub.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ub.stopChan:
				return
			case <-ticker.C:
				if err := ub.Flush(ctx); err != nil {
					ub.log.Errorf("Error flushing updates: %v", err)
				}
			}
		}
	}()
}

// Stop stops the flush goroutine. It is safe to call more than once.
func (ub *UpdateBuffer) Stop() {
	ub.stopOnce.Do(func() { close(ub.stopChan) })
	ub.wg.Wait()
}

// QueueState replaces the buffered state of a vehicle, keeping any commands
// queued since the last flush.
func (ub *UpdateBuffer) QueueState(update VehicleUpdate) {
	ub.mu.Lock()
	pending, exists := ub.updates[update.NodeID]
	if exists {
		update.Commands = append(pending.Commands, update.Commands...)
	}
	update.LastModified = time.Now()
	ub.updates[update.NodeID] = &update
	ub.stats.TotalUpdates++
	full := len(ub.updates) >= ub.maxBatchSize
	ub.mu.Unlock()

	if full {
		if err := ub.Flush(context.Background()); err != nil {
			ub.log.Errorf("Error auto-flushing updates: %v", err)
		}
	}
}

// QueueCommand records a thrust command issued to a vehicle
func (ub *UpdateBuffer) QueueCommand(nodeID int, command string) {
	ub.mu.Lock()
	defer ub.mu.Unlock()

	update, exists := ub.updates[nodeID]
	if !exists {
		update = &VehicleUpdate{NodeID: nodeID}
		ub.updates[nodeID] = update
	}
	update.Commands = append(update.Commands, command)
	update.LastModified = time.Now()
}

// Flush hands all pending updates to the sink in node order. A failed batch
// is re-queued unless a newer frame for the same vehicle arrived meanwhile.
func (ub *UpdateBuffer) Flush(ctx context.Context) error {
	ub.flushMu.Lock()
	defer ub.flushMu.Unlock()

	ub.mu.Lock()
	if len(ub.updates) == 0 {
		ub.mu.Unlock()
		return nil
	}
	batch := make([]VehicleUpdate, 0, len(ub.updates))
	for _, u := range ub.updates {
		batch = append(batch, *u)
	}
	ub.updates = make(map[int]*VehicleUpdate)
	ub.lastFlush = time.Now()
	ub.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].NodeID < batch[j].NodeID })

	var err error
	if ub.sink != nil {
		err = ub.sink.Publish(ctx, batch)
	}

	ub.mu.Lock()
	defer ub.mu.Unlock()

	if err != nil {
		for i := range batch {
			if _, newer := ub.updates[batch[i].NodeID]; !newer {
				ub.updates[batch[i].NodeID] = &batch[i]
			}
		}
		ub.stats.UpdatesFailed += int64(len(batch))
		ub.stats.LastError = err
		return fmt.Errorf("failed to publish %d updates: %w", len(batch), err)
	}

	ub.stats.BatchesSent++
	ub.stats.UpdatesSent += int64(len(batch))
	ub.stats.AverageBatchSize = float64(ub.stats.UpdatesSent) / float64(ub.stats.BatchesSent)
	ub.stats.LastBatchTime = ub.lastFlush
	ub.log.Debugf("Flushed %d updates", len(batch))
	return nil
}

// GetStats returns current buffer statistics
func (ub *UpdateBuffer) GetStats() UpdateStats {
	ub.mu.Lock()
	defer ub.mu.Unlock()
	return ub.stats
}

// GetPendingCount returns the number of vehicles with unflushed updates
func (ub *UpdateBuffer) GetPendingCount() int {
	ub.mu.Lock()
	defer ub.mu.Unlock()
	return len(ub.updates)
}
