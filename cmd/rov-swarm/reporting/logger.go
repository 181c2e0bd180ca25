package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
	"github.com/picogrid/rov-simulations/pkg/logger"
)

// SimulationLogger records fleet events and prints the notable ones
type SimulationLogger struct {
	simulationID string
	startTime    time.Time
	events       []SimulationEvent
	metrics      map[string]Metric
	out          io.Writer
	mu           sync.RWMutex
}

// SimulationEvent represents a logged simulation event
type SimulationEvent struct {
	Timestamp time.Time              `json:"timestamp" yaml:"timestamp"`
	Tick      uint64                 `json:"tick" yaml:"tick"`
	Type      string                 `json:"type" yaml:"type"`
	Severity  string                 `json:"severity" yaml:"severity"`
	NodeID    *int                   `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	Message   string                 `json:"message" yaml:"message"`
	Details   map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// Metric represents a tracked metric
type Metric struct {
	Name        string        `json:"name" yaml:"name"`
	Value       float64       `json:"value" yaml:"value"`
	Unit        string        `json:"unit" yaml:"unit"`
	LastUpdated time.Time     `json:"last_updated" yaml:"last_updated"`
	History     []MetricPoint `json:"-" yaml:"-"`
}

// MetricPoint represents a metric value at a point in time
type MetricPoint struct {
	Timestamp time.Time
	Value     float64
}

// EventType constants
const (
	EventTypeDispatch   = "dispatch"
	EventTypeStop       = "stop"
	EventTypeHazard     = "hazard"
	EventTypeClassifier = "classifier"
	EventTypeBroadcast  = "broadcast"
	EventTypeSystem     = "system"
	EventTypeCommand    = "command"
)

// Severity constants
const (
	SeverityDebug    = "debug"
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

const (
	maxEvents        = 10000
	maxMetricHistory = 1000
)

var (
	colorDebug    = color.New(color.FgHiBlack)
	colorInfo     = color.New(color.FgCyan)
	colorWarning  = color.New(color.FgYellow)
	colorError    = color.New(color.FgRed)
	colorCritical = color.New(color.FgRed, color.Bold)
	colorLeader   = color.New(color.FgBlue, color.Bold)
	colorSuccess  = color.New(color.FgGreen)
)

// NewSimulationLogger creates a new simulation logger
func NewSimulationLogger(simulationID string) *SimulationLogger {
	sl := &SimulationLogger{
		simulationID: simulationID,
		startTime:    time.Now(),
		events:       make([]SimulationEvent, 0),
		metrics:      make(map[string]Metric),
		out:          os.Stdout,
	}

	sl.logColoredMessage(SeverityInfo, "Simulation Started",
		fmt.Sprintf("ID: %s | Time: %s", shortID(simulationID), sl.startTime.Format("15:04:05")))

	return sl
}

// SetOutput redirects the coloured console lines
func (sl *SimulationLogger) SetOutput(w io.Writer) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.out = w
}

// SimulationID returns the run id
func (sl *SimulationLogger) SimulationID() string {
	return sl.simulationID
}

// LogDispatch logs an operator go_to command
func (sl *SimulationLogger) LogDispatch(tick uint64, node int, x, y, z float64, aiEnabled bool) {
	sl.logEvent(SimulationEvent{
		Timestamp: time.Now(),
		Tick:      tick,
		Type:      EventTypeDispatch,
		Severity:  SeverityInfo,
		NodeID:    &node,
		Message:   fmt.Sprintf("ROV %d dispatched to (%.1f, %.1f, %.1f)", node, x, y, z),
		Details: map[string]interface{}{
			"x":          x,
			"y":          y,
			"z":          z,
			"ai_enabled": aiEnabled,
		},
	})

	sl.logColoredMessage(SeverityInfo, "Dispatch",
		fmt.Sprintf("%s -> (%.1f, %.1f, %.1f) | AI: %t", sl.nodeLabel(node), x, y, z, aiEnabled))
}

// LogStop logs an operator stop command
func (sl *SimulationLogger) LogStop(tick uint64, node int) {
	sl.logEvent(SimulationEvent{
		Timestamp: time.Now(),
		Tick:      tick,
		Type:      EventTypeStop,
		Severity:  SeverityInfo,
		NodeID:    &node,
		Message:   fmt.Sprintf("ROV %d stopped", node),
	})

	sl.logColoredMessage(SeverityInfo, "Stop", sl.nodeLabel(node))
}

// LogHazardChange logs a node's hazard status transition
func (sl *SimulationLogger) LogHazardChange(tick uint64, node int, from, to hazard.Code) {
	severity := SeverityInfo
	switch to {
	case hazard.Collision:
		severity = SeverityCritical
	case hazard.Obstacle, hazard.Disconnected:
		severity = SeverityWarning
	}

	sl.logEvent(SimulationEvent{
		Timestamp: time.Now(),
		Tick:      tick,
		Type:      EventTypeHazard,
		Severity:  severity,
		NodeID:    &node,
		Message:   fmt.Sprintf("ROV %d: %s -> %s", node, from, to),
		Details: map[string]interface{}{
			"from": int(from),
			"to":   int(to),
		},
	})

	if severity != SeverityInfo {
		sl.logColoredMessage(severity, "Hazard",
			fmt.Sprintf("%s | %s -> %s", sl.nodeLabel(node), from, to))
	}
}

// LogClassifierFallback logs a tick whose codes fell back to nominal
func (sl *SimulationLogger) LogClassifierFallback(tick uint64, err error) {
	sl.logEvent(SimulationEvent{
		Timestamp: time.Now(),
		Tick:      tick,
		Type:      EventTypeClassifier,
		Severity:  SeverityWarning,
		Message:   "classifier unavailable, using nominal codes",
		Details: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

// LogBroadcast logs a leader position broadcast. It reaches the console only
// at debug level.
func (sl *SimulationLogger) LogBroadcast(tick uint64, sent, total int) {
	message := fmt.Sprintf("Leader broadcast reached %d/%d modems", sent, total)
	sl.logEvent(SimulationEvent{
		Timestamp: time.Now(),
		Tick:      tick,
		Type:      EventTypeBroadcast,
		Severity:  SeverityDebug,
		Message:   message,
		Details: map[string]interface{}{
			"sent":  sent,
			"total": total,
		},
	})

	if logger.GetLevel() == logger.DebugLevel {
		sl.logColoredMessage(SeverityDebug, "Broadcast", message)
	}
}

// LogCommandRejected logs an operator command that failed validation
func (sl *SimulationLogger) LogCommandRejected(tick uint64, command string, err error) {
	sl.logEvent(SimulationEvent{
		Timestamp: time.Now(),
		Tick:      tick,
		Type:      EventTypeCommand,
		Severity:  SeverityWarning,
		Message:   fmt.Sprintf("%s rejected", command),
		Details: map[string]interface{}{
			"error": err.Error(),
		},
	})

	sl.logColoredMessage(SeverityWarning, "Command Rejected", fmt.Sprintf("%s: %v", command, err))
}

// LogError logs an error event
func (sl *SimulationLogger) LogError(message string, err error, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["error"] = err.Error()

	sl.logEvent(SimulationEvent{
		Timestamp: time.Now(),
		Type:      EventTypeSystem,
		Severity:  SeverityError,
		Message:   message,
		Details:   details,
	})

	logger.Errorf("%s: %v", message, err)
}

// UpdateMetric updates a metric value
func (sl *SimulationLogger) UpdateMetric(name string, value float64, unit string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	metric, exists := sl.metrics[name]
	if !exists {
		metric = Metric{
			Name:    name,
			Unit:    unit,
			History: make([]MetricPoint, 0),
		}
	}

	now := time.Now()
	metric.Value = value
	metric.LastUpdated = now
	metric.History = append(metric.History, MetricPoint{Timestamp: now, Value: value})

	if len(metric.History) > maxMetricHistory {
		metric.History = metric.History[len(metric.History)-maxMetricHistory:]
	}

	sl.metrics[name] = metric
}

// GetEvents returns all logged events
func (sl *SimulationLogger) GetEvents() []SimulationEvent {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	events := make([]SimulationEvent, len(sl.events))
	copy(events, sl.events)
	return events
}

// GetMetrics returns current metrics
func (sl *SimulationLogger) GetMetrics() map[string]Metric {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	metrics := make(map[string]Metric, len(sl.metrics))
	for k, v := range sl.metrics {
		metrics[k] = v
	}
	return metrics
}

// SimulationSummary represents a summary of the simulation
type SimulationSummary struct {
	SimulationID string                 `json:"simulation_id" yaml:"simulation_id"`
	StartTime    time.Time              `json:"start_time" yaml:"start_time"`
	Duration     time.Duration          `json:"duration" yaml:"duration"`
	TotalEvents  int                    `json:"total_events" yaml:"total_events"`
	EventCounts  map[string]int         `json:"event_counts" yaml:"event_counts"`
	NodeEvents   map[int]map[string]int `json:"node_events" yaml:"node_events"`
	Metrics      map[string]Metric      `json:"metrics" yaml:"metrics"`
}

// GetSummary returns a simulation summary
func (sl *SimulationLogger) GetSummary() SimulationSummary {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	eventCounts := make(map[string]int)
	nodeEvents := make(map[int]map[string]int)

	for _, event := range sl.events {
		eventCounts[event.Type]++

		if event.NodeID != nil {
			if nodeEvents[*event.NodeID] == nil {
				nodeEvents[*event.NodeID] = make(map[string]int)
			}
			nodeEvents[*event.NodeID][event.Type]++
		}
	}

	metrics := make(map[string]Metric, len(sl.metrics))
	for k, v := range sl.metrics {
		metrics[k] = v
	}

	return SimulationSummary{
		SimulationID: sl.simulationID,
		StartTime:    sl.startTime,
		Duration:     time.Since(sl.startTime),
		TotalEvents:  len(sl.events),
		EventCounts:  eventCounts,
		NodeEvents:   nodeEvents,
		Metrics:      metrics,
	}
}

func (sl *SimulationLogger) logEvent(event SimulationEvent) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.events = append(sl.events, event)

	if len(sl.events) > maxEvents {
		sl.events = sl.events[len(sl.events)-maxEvents:]
	}
}

func (sl *SimulationLogger) logColoredMessage(severity, eventType, message string) {
	timestamp := time.Now().Format("15:04:05.000")

	var severityColor *color.Color
	switch severity {
	case SeverityDebug:
		severityColor = colorDebug
	case SeverityWarning:
		severityColor = colorWarning
	case SeverityError:
		severityColor = colorError
	case SeverityCritical:
		severityColor = colorCritical
	default:
		severityColor = colorInfo
	}

	sl.mu.RLock()
	out := sl.out
	sl.mu.RUnlock()

	fmt.Fprintf(out, "[%s] %s %s | %s\n",
		timestamp,
		severityColor.Sprint(fmt.Sprintf("%-8s", severity)),
		eventType,
		message)
}

// nodeLabel highlights the leader, which is always node 0
func (sl *SimulationLogger) nodeLabel(node int) string {
	if node == 0 {
		return colorLeader.Sprint("ROV 0 (leader)")
	}
	return fmt.Sprintf("ROV %d", node)
}

// PrintSummary prints a formatted summary
func (sl *SimulationLogger) PrintSummary() {
	summary := sl.GetSummary()

	sl.mu.RLock()
	out := sl.out
	sl.mu.RUnlock()

	colorSuccess.Fprintln(out, "\n╔══════════════════════════════════════════════════════════╗")
	colorSuccess.Fprintf(out, "║             SIMULATION SUMMARY - %-8s                ║\n", shortID(summary.SimulationID))
	colorSuccess.Fprintln(out, "╚══════════════════════════════════════════════════════════╝")

	fmt.Fprintf(out, "\nDuration: %v | Total Events: %d\n", summary.Duration.Round(time.Millisecond), summary.TotalEvents)

	fmt.Fprintln(out, "\nEvent Distribution:")
	for _, eventType := range sortedKeys(summary.EventCounts) {
		fmt.Fprintf(out, "   %-20s: %d\n", eventType, summary.EventCounts[eventType])
	}

	if len(summary.NodeEvents) > 0 {
		fmt.Fprintln(out, "\nPer-vehicle Events:")
		nodes := make([]int, 0, len(summary.NodeEvents))
		for node := range summary.NodeEvents {
			nodes = append(nodes, node)
		}
		sort.Ints(nodes)
		for _, node := range nodes {
			fmt.Fprintf(out, "\n   %s:\n", sl.nodeLabel(node))
			events := summary.NodeEvents[node]
			for _, eventType := range sortedKeys(events) {
				fmt.Fprintf(out, "      %-18s: %d\n", eventType, events[eventType])
			}
		}
	}

	if len(summary.Metrics) > 0 {
		fmt.Fprintln(out, "\nRun Metrics:")
		for _, name := range sortedKeys(summary.Metrics) {
			metric := summary.Metrics[name]
			fmt.Fprintf(out, "   %-20s: %.2f %s\n", name, metric.Value, metric.Unit)
		}
	}

	colorSuccess.Fprintln(out, "\n════════════════════════════════════════════════════════════")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
