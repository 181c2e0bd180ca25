package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/acoustic"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
	"github.com/picogrid/rov-simulations/pkg/logger"
)

// AAR output formats
const (
	FormatYAML     = "yaml"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// AARGenerator generates After Action Reports
type AARGenerator struct {
	logger *SimulationLogger
	config AARConfig
}

// AARConfig configures AAR generation
type AARConfig struct {
	OutputDir        string
	Format           string // "yaml", "json", "markdown"
	DetailLevel      string // "summary", "detailed", "full"
	SimulationConfig map[string]interface{}
}

// NodeReport is the final state of one vehicle
type NodeReport struct {
	NodeID      int            `json:"node_id" yaml:"node_id"`
	Role        string         `json:"role" yaml:"role"`
	State       string         `json:"state" yaml:"state"`
	Position    core.Vector3D  `json:"position" yaml:"position"`
	Target      *core.Vector3D `json:"target,omitempty" yaml:"target,omitempty"`
	Battery     float64        `json:"battery" yaml:"battery"`
	Arrived     bool           `json:"arrived" yaml:"arrived"`
	FinalHazard string         `json:"final_hazard" yaml:"final_hazard"`
	Hazards     map[string]int `json:"hazards" yaml:"hazards"`
	LeaderFixes int            `json:"leader_fixes,omitempty" yaml:"leader_fixes,omitempty"`
}

// FleetReport is what the simulation hands over at the end of a run
type FleetReport struct {
	Ticks               uint64        `json:"ticks" yaml:"ticks"`
	SimulatedTime       time.Duration `json:"simulated_time" yaml:"simulated_time"`
	ClassifierFallbacks int           `json:"classifier_fallbacks" yaml:"classifier_fallbacks"`
	Nodes               []NodeReport  `json:"nodes" yaml:"nodes"`
	Link                LinkSnapshot  `json:"link" yaml:"link"`
}

// AAR represents an After Action Report
type AAR struct {
	Metadata        AARMetadata            `json:"metadata" yaml:"metadata"`
	Summary         ExecutiveSummary       `json:"summary" yaml:"summary"`
	Fleet           []NodeReport           `json:"fleet" yaml:"fleet"`
	Link            LinkAnalysis           `json:"link" yaml:"link"`
	Timeline        []TimelineEntry        `json:"timeline" yaml:"timeline"`
	EventLog        []SimulationEvent      `json:"event_log,omitempty" yaml:"event_log,omitempty"`
	Recommendations []Recommendation       `json:"recommendations" yaml:"recommendations"`
	Configuration   map[string]interface{} `json:"configuration,omitempty" yaml:"configuration,omitempty"`
}

// AARMetadata contains report metadata
type AARMetadata struct {
	SimulationID    string    `json:"simulation_id" yaml:"simulation_id"`
	GeneratedAt     time.Time `json:"generated_at" yaml:"generated_at"`
	SimulationStart time.Time `json:"simulation_start" yaml:"simulation_start"`
	SimulationEnd   time.Time `json:"simulation_end" yaml:"simulation_end"`
	Duration        string    `json:"duration" yaml:"duration"`
	SimulatedTime   string    `json:"simulated_time" yaml:"simulated_time"`
	Version         string    `json:"version" yaml:"version"`
}

// ExecutiveSummary provides high-level overview
type ExecutiveSummary struct {
	Outcome             string         `json:"outcome" yaml:"outcome"`
	Ticks               uint64         `json:"ticks" yaml:"ticks"`
	Vehicles            int            `json:"vehicles" yaml:"vehicles"`
	VehiclesArrived     int            `json:"vehicles_arrived" yaml:"vehicles_arrived"`
	CollisionWarnings   int            `json:"collision_warnings" yaml:"collision_warnings"`
	ClassifierFallbacks int            `json:"classifier_fallbacks" yaml:"classifier_fallbacks"`
	HazardTotals        map[string]int `json:"hazard_totals" yaml:"hazard_totals"`
	KeyEvents           []string       `json:"key_events" yaml:"key_events"`
}

// LinkAnalysis summarises the acoustic channel over the run
type LinkAnalysis struct {
	LinkSnapshot `json:",inline" yaml:",inline"`
	DeliveryRate float64 `json:"delivery_rate" yaml:"delivery_rate"`
	LossRate     float64 `json:"loss_rate" yaml:"loss_rate"`
}

// TimelineEntry represents an event in the timeline
type TimelineEntry struct {
	ElapsedTime string                 `json:"elapsed_time" yaml:"elapsed_time"`
	Tick        uint64                 `json:"tick" yaml:"tick"`
	EventType   string                 `json:"event_type" yaml:"event_type"`
	Description string                 `json:"description" yaml:"description"`
	Impact      string                 `json:"impact" yaml:"impact"`
	Details     map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// Recommendation represents an improvement recommendation
type Recommendation struct {
	Priority    string `json:"priority" yaml:"priority"` // "High", "Medium", "Low"
	Category    string `json:"category" yaml:"category"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// NewAARGenerator creates a new AAR generator
func NewAARGenerator(logger *SimulationLogger, config AARConfig) *AARGenerator {
	if config.Format == "" {
		config.Format = FormatYAML
	}
	return &AARGenerator{
		logger: logger,
		config: config,
	}
}

// GenerateAAR creates an After Action Report
func (g *AARGenerator) GenerateAAR(fleet FleetReport) (*AAR, error) {
	if g.logger == nil {
		return nil, fmt.Errorf("no simulation logger attached")
	}

	summary := g.logger.GetSummary()
	events := g.logger.GetEvents()

	aar := &AAR{
		Metadata: AARMetadata{
			SimulationID:    summary.SimulationID,
			GeneratedAt:     time.Now(),
			SimulationStart: summary.StartTime,
			SimulationEnd:   summary.StartTime.Add(summary.Duration),
			Duration:        summary.Duration.Round(time.Millisecond).String(),
			SimulatedTime:   fleet.SimulatedTime.String(),
			Version:         "1.0",
		},
		Fleet:         fleet.Nodes,
		Configuration: g.config.SimulationConfig,
	}

	aar.Summary = g.generateExecutiveSummary(events, fleet)
	aar.Link = analyzeLink(fleet.Link)
	aar.Timeline = g.buildTimeline(events, summary.StartTime)

	if g.config.DetailLevel == "full" {
		aar.EventLog = events
	}

	aar.Recommendations = g.generateRecommendations(aar)

	return aar, nil
}

// SaveAAR writes the AAR and returns the path written
func (g *AARGenerator) SaveAAR(aar *AAR) (string, error) {
	if err := os.MkdirAll(g.config.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("AAR_%s_%s", shortID(aar.Metadata.SimulationID), timestamp)

	var (
		data []byte
		ext  string
		err  error
	)
	switch g.config.Format {
	case FormatYAML:
		data, err = yaml.Marshal(aar)
		ext = ".yaml"
	case FormatJSON:
		data, err = json.MarshalIndent(aar, "", "  ")
		ext = ".json"
	case FormatMarkdown:
		data = []byte(g.renderMarkdown(aar))
		ext = ".md"
	default:
		return "", fmt.Errorf("unsupported format: %s", g.config.Format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal AAR: %w", err)
	}

	path := filepath.Join(g.config.OutputDir, filename+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write AAR: %w", err)
	}

	logger.Successf("AAR saved to: %s", path)
	return path, nil
}

func (g *AARGenerator) renderMarkdown(aar *AAR) string {
	var sb strings.Builder

	sb.WriteString("# After Action Report\n\n")
	sb.WriteString(fmt.Sprintf("**Simulation ID:** %s\n", aar.Metadata.SimulationID))
	sb.WriteString(fmt.Sprintf("**Generated:** %s\n", aar.Metadata.GeneratedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("**Duration:** %s (simulated %s)\n\n", aar.Metadata.Duration, aar.Metadata.SimulatedTime))

	sb.WriteString("## Executive Summary\n\n")
	sb.WriteString(fmt.Sprintf("**Outcome:** %s\n\n", aar.Summary.Outcome))
	sb.WriteString(fmt.Sprintf("- **Ticks:** %d\n", aar.Summary.Ticks))
	sb.WriteString(fmt.Sprintf("- **Vehicles on target:** %d/%d\n", aar.Summary.VehiclesArrived, aar.Summary.Vehicles))
	sb.WriteString(fmt.Sprintf("- **Collision warnings:** %d\n", aar.Summary.CollisionWarnings))
	sb.WriteString(fmt.Sprintf("- **Classifier fallbacks:** %d\n\n", aar.Summary.ClassifierFallbacks))

	if len(aar.Summary.KeyEvents) > 0 {
		sb.WriteString("### Key Events\n")
		for _, event := range aar.Summary.KeyEvents {
			sb.WriteString(fmt.Sprintf("- %s\n", event))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Fleet\n\n")
	sb.WriteString("| Node | Role | State | Position | Battery | Hazard |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, node := range aar.Fleet {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %.1f%% | %s |\n",
			node.NodeID, node.Role, node.State, node.Position, node.Battery, node.FinalHazard))
	}
	sb.WriteString("\n")

	sb.WriteString("## Acoustic Link\n\n")
	sb.WriteString(fmt.Sprintf("- **Queued:** %d\n", aar.Link.Sent))
	sb.WriteString(fmt.Sprintf("- **Delivered:** %d (%.1f%%)\n", aar.Link.Delivered, aar.Link.DeliveryRate*100))
	sb.WriteString(fmt.Sprintf("- **Dropped:** %d (%.1f%% lost in channel)\n", aar.Link.DropTotal(), aar.Link.LossRate*100))
	for _, reason := range sortedKeys(aar.Link.Dropped) {
		sb.WriteString(fmt.Sprintf("  - %s: %d\n", reason, aar.Link.Dropped[reason]))
	}
	sb.WriteString("\n")

	if g.config.DetailLevel != "summary" && len(aar.Timeline) > 0 {
		sb.WriteString("## Timeline\n\n")
		for _, entry := range aar.Timeline {
			sb.WriteString(fmt.Sprintf("- `%s` tick %d [%s] %s\n", entry.ElapsedTime, entry.Tick, entry.Impact, entry.Description))
		}
		sb.WriteString("\n")
	}

	if len(aar.Recommendations) > 0 {
		sb.WriteString("## Recommendations\n\n")
		for _, rec := range aar.Recommendations {
			sb.WriteString(fmt.Sprintf("### %s (%s Priority)\n", rec.Title, rec.Priority))
			sb.WriteString(fmt.Sprintf("%s\n\n", rec.Description))
		}
	}

	return sb.String()
}

func (g *AARGenerator) generateExecutiveSummary(events []SimulationEvent, fleet FleetReport) ExecutiveSummary {
	exec := ExecutiveSummary{
		Ticks:               fleet.Ticks,
		Vehicles:            len(fleet.Nodes),
		ClassifierFallbacks: fleet.ClassifierFallbacks,
		HazardTotals:        make(map[string]int),
		KeyEvents:           make([]string, 0),
	}

	for _, node := range fleet.Nodes {
		if node.Arrived {
			exec.VehiclesArrived++
		}
		for label, n := range node.Hazards {
			exec.HazardTotals[label] += n
		}
	}
	exec.CollisionWarnings = exec.HazardTotals[hazard.Collision.String()]

	switch {
	case exec.Vehicles == 0:
		exec.Outcome = "No vehicles deployed"
	case exec.CollisionWarnings > 0:
		exec.Outcome = fmt.Sprintf("%d/%d vehicles on target with %d collision warnings",
			exec.VehiclesArrived, exec.Vehicles, exec.CollisionWarnings)
	case exec.VehiclesArrived == exec.Vehicles:
		exec.Outcome = "All vehicles reached their targets"
	default:
		exec.Outcome = fmt.Sprintf("%d/%d vehicles on target", exec.VehiclesArrived, exec.Vehicles)
	}

	for _, event := range events {
		if len(exec.KeyEvents) >= 10 {
			break
		}
		if event.Severity == SeverityCritical || event.Type == EventTypeDispatch || event.Type == EventTypeStop {
			exec.KeyEvents = append(exec.KeyEvents, event.Message)
		}
	}

	return exec
}

func analyzeLink(snap LinkSnapshot) LinkAnalysis {
	analysis := LinkAnalysis{LinkSnapshot: snap}

	attempts := snap.Sent + snap.Dropped[string(acoustic.DropLoss)]
	if attempts > 0 {
		analysis.LossRate = float64(snap.Dropped[string(acoustic.DropLoss)]) / float64(attempts)
	}
	if snap.Sent > 0 {
		analysis.DeliveryRate = float64(snap.Delivered) / float64(snap.Sent)
	}
	return analysis
}

func (g *AARGenerator) buildTimeline(events []SimulationEvent, startTime time.Time) []TimelineEntry {
	timeline := make([]TimelineEntry, 0)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	for _, event := range events {
		if !g.isSignificantEvent(event) {
			continue
		}
		timeline = append(timeline, TimelineEntry{
			ElapsedTime: formatDuration(event.Timestamp.Sub(startTime)),
			Tick:        event.Tick,
			EventType:   event.Type,
			Description: event.Message,
			Impact:      assessImpact(event),
			Details:     event.Details,
		})
	}

	return timeline
}

func (g *AARGenerator) isSignificantEvent(event SimulationEvent) bool {
	if event.Severity == SeverityDebug {
		return false
	}
	if g.config.DetailLevel == "summary" {
		return event.Severity == SeverityCritical || event.Severity == SeverityError
	}
	return true
}

func assessImpact(event SimulationEvent) string {
	switch event.Severity {
	case SeverityCritical:
		return "Critical"
	case SeverityError:
		return "High"
	case SeverityWarning:
		return "Medium"
	default:
		return "Low"
	}
}

func (g *AARGenerator) generateRecommendations(aar *AAR) []Recommendation {
	recs := make([]Recommendation, 0)

	if aar.Link.LossRate > 0.2 {
		recs = append(recs, Recommendation{
			Priority:    "High",
			Category:    "Communications",
			Title:       "Reduce Acoustic Loss",
			Description: fmt.Sprintf("%.1f%% of transmissions were lost in the channel; followers ran on stale leader fixes.", aar.Link.LossRate*100),
		})
	}

	if overflow := aar.Link.Dropped[string(acoustic.DropInboxFull)] + aar.Link.Dropped[string(acoustic.DropEvicted)]; overflow > 0 {
		recs = append(recs, Recommendation{
			Priority:    "Medium",
			Category:    "Communications",
			Title:       "Increase Inbox Capacity",
			Description: fmt.Sprintf("%d packets were discarded by full inboxes.", overflow),
		})
	}

	if aar.Summary.CollisionWarnings > 0 {
		recs = append(recs, Recommendation{
			Priority:    "High",
			Category:    "Guidance",
			Title:       "Widen Follower Spacing",
			Description: fmt.Sprintf("%d collision warnings were raised; increase follower spacing or the collision threshold.", aar.Summary.CollisionWarnings),
		})
	}

	if aar.Summary.Ticks > 0 && aar.Summary.ClassifierFallbacks*10 > int(aar.Summary.Ticks) {
		recs = append(recs, Recommendation{
			Priority:    "Medium",
			Category:    "Hazard Detection",
			Title:       "Restore the Hazard Classifier",
			Description: fmt.Sprintf("Hazard codes fell back to nominal on %d of %d ticks.", aar.Summary.ClassifierFallbacks, aar.Summary.Ticks),
		})
	}

	for _, node := range aar.Fleet {
		if node.Battery < 20 {
			recs = append(recs, Recommendation{
				Priority:    "Low",
				Category:    "Endurance",
				Title:       fmt.Sprintf("Recover ROV %d", node.NodeID),
				Description: fmt.Sprintf("Battery ended at %.1f%%.", node.Battery),
			})
		}
	}

	return recs
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
