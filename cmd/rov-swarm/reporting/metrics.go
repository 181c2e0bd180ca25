package reporting

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/acoustic"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
)

// Metrics holds the Prometheus collectors of one simulation run. It observes
// the acoustic network directly.
type Metrics struct {
	registry *prometheus.Registry

	PacketsSent         *prometheus.CounterVec
	PacketsDropped      *prometheus.CounterVec
	PacketsDelivered    *prometheus.CounterVec
	DeliveryLatency     prometheus.Histogram
	Ticks               prometheus.Counter
	TickDuration        prometheus.Histogram
	ClassifierFallbacks prometheus.Counter
	HazardCodes         *prometheus.CounterVec
	ThrustCommands      *prometheus.CounterVec
	Battery             *prometheus.GaugeVec
	PendingPackets      prometheus.Gauge
}

var _ acoustic.Observer = (*Metrics)(nil)

// NewMetrics creates a metrics set on its own registry
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initLinkMetrics()
	m.initFleetMetrics()
	return m
}

func (m *Metrics) initLinkMetrics() {
	m.PacketsSent = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "rov_acoustic_packets_sent_total",
			Help: "Packets that survived the channel and were queued at the receiver",
		},
		[]string{"kind"},
	)

	m.PacketsDropped = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "rov_acoustic_packets_dropped_total",
			Help: "Packets lost in the channel or rejected by an inbox",
		},
		[]string{"kind", "reason"},
	)

	m.PacketsDelivered = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "rov_acoustic_packets_delivered_total",
			Help: "Packets handed to the receiving node",
		},
		[]string{"kind"},
	)

	m.DeliveryLatency = promauto.With(m.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rov_acoustic_delivery_latency_seconds",
			Help:    "Simulated time between send and delivery",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 1, 2, 5},
		},
	)

	m.PendingPackets = promauto.With(m.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "rov_acoustic_pending_packets",
			Help: "Packets queued in all inboxes, in flight or ready",
		},
	)
}

func (m *Metrics) initFleetMetrics() {
	m.Ticks = promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "rov_ticks_total",
			Help: "Simulation ticks executed",
		},
	)

	m.TickDuration = promauto.With(m.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rov_tick_duration_seconds",
			Help:    "Wall time spent executing one tick",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	m.ClassifierFallbacks = promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "rov_classifier_fallbacks_total",
			Help: "Ticks in which hazard codes fell back to nominal",
		},
	)

	m.HazardCodes = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "rov_hazard_codes_total",
			Help: "Hazard codes fed to the guidance controllers",
		},
		[]string{"code"},
	)

	m.ThrustCommands = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "rov_thrust_commands_total",
			Help: "Axis commands issued to vehicles",
		},
		[]string{"command"},
	)

	m.Battery = promauto.With(m.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rov_battery_percent",
			Help: "Remaining battery per vehicle",
		},
		[]string{"node"},
	)
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PacketSent(_, _ acoustic.NodeID, kind acoustic.Kind) {
	m.PacketsSent.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) PacketDropped(_, _ acoustic.NodeID, kind acoustic.Kind, reason acoustic.DropReason) {
	m.PacketsDropped.WithLabelValues(string(kind), string(reason)).Inc()
}

func (m *Metrics) PacketDelivered(_ acoustic.NodeID, packet acoustic.Packet, latency time.Duration) {
	m.PacketsDelivered.WithLabelValues(string(packet.Kind)).Inc()
	m.DeliveryLatency.Observe(latency.Seconds())
}

// RecordTick records one completed tick
func (m *Metrics) RecordTick(duration time.Duration) {
	m.Ticks.Inc()
	m.TickDuration.Observe(duration.Seconds())
}

// RecordHazards counts the codes fed to the fleet this tick
func (m *Metrics) RecordHazards(codes []hazard.Code) {
	for _, c := range codes {
		m.HazardCodes.WithLabelValues(c.String()).Inc()
	}
}

// RecordThrust counts one issued axis command
func (m *Metrics) RecordThrust(command string) {
	m.ThrustCommands.WithLabelValues(command).Inc()
}

// SetBattery records a vehicle's battery level
func (m *Metrics) SetBattery(node int, percent float64) {
	m.Battery.WithLabelValues(strconv.Itoa(node)).Set(percent)
}

// LinkSnapshot totals the acoustic counters of a run
type LinkSnapshot struct {
	Sent      int            `json:"sent" yaml:"sent"`
	Delivered int            `json:"delivered" yaml:"delivered"`
	Dropped   map[string]int `json:"dropped" yaml:"dropped"`
	Pending   int            `json:"pending" yaml:"pending"`
}

// DropTotal sums drops over every reason
func (s LinkSnapshot) DropTotal() int {
	total := 0
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

// Snapshot reads the link counters back out of the registry
func (m *Metrics) Snapshot() LinkSnapshot {
	snap := LinkSnapshot{Dropped: make(map[string]int)}

	families, err := m.registry.Gather()
	if err != nil {
		return snap
	}
	for _, mf := range families {
		switch mf.GetName() {
		case "rov_acoustic_packets_sent_total":
			snap.Sent = int(sumCounters(mf.GetMetric()))
		case "rov_acoustic_packets_delivered_total":
			snap.Delivered = int(sumCounters(mf.GetMetric()))
		case "rov_acoustic_pending_packets":
			for _, metric := range mf.GetMetric() {
				snap.Pending = int(metric.GetGauge().GetValue())
			}
		case "rov_acoustic_packets_dropped_total":
			for _, metric := range mf.GetMetric() {
				snap.Dropped[labelValue(metric, "reason")] += int(metric.GetCounter().GetValue())
			}
		}
	}
	return snap
}

func sumCounters(metrics []*dto.Metric) float64 {
	total := 0.0
	for _, metric := range metrics {
		total += metric.GetCounter().GetValue()
	}
	return total
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
