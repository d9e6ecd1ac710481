package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pulsecare/platform/internal/risk"
	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/trend"
)

// Generate compares the current assessment against the previous one and
// produces the notifications the transition warrants. It is a pure
// generator: identical inputs yield structurally identical output
// (modulo ID and timestamp), and deduplication is the caller's job.
//
// Emergencies are edge-triggered: entering critical fires once, staying
// critical fires nothing until the level drops and rises again.
func Generate(subjectID types.ID, previous *risk.RiskAssessment, current risk.RiskAssessment, trends map[trend.Metric]trend.Direction) []HealthNotification {
	var out []HealthNotification

	prevLevel := risk.LevelLow
	havePrev := previous != nil
	if havePrev {
		prevLevel = previous.RiskLevel
	}

	switch {
	case current.RiskLevel == risk.LevelCritical:
		if !havePrev || prevLevel != risk.LevelCritical {
			out = append(out, build(subjectID, TypeEmergency, SeverityCritical, true,
				emergencyMessage(current)))
		}
	case havePrev && current.RiskLevel > prevLevel:
		out = append(out, build(subjectID, TypeDecline, SeverityWarning, true,
			fmt.Sprintf("Health risk increased from %s to %s.%s",
				prevLevel, current.RiskLevel, trendNote(trends))))
	case havePrev && current.RiskLevel < prevLevel:
		out = append(out, build(subjectID, TypeImprovement, SeverityInfo, false,
			fmt.Sprintf("Health risk improved from %s to %s.", prevLevel, current.RiskLevel)))
	}

	// Same level, but a finding we have not reported before. This also
	// applies while the level holds critical: the emergency fired once at
	// the edge, but a new finding still warrants its own alert.
	if havePrev && current.RiskLevel == prevLevel {
		if fresh := newAnomalies(previous.Anomalies, current.Anomalies); len(fresh) > 0 {
			out = append(out, build(subjectID, TypeAnomaly, SeverityWarning, true,
				"New finding: "+strings.Join(fresh, "; ")))
		}
	}

	return out
}

func build(subjectID types.ID, t Type, s Severity, action bool, message string) HealthNotification {
	return HealthNotification{
		ID:             types.NewID(),
		SubjectID:      subjectID,
		Type:           t,
		Severity:       s,
		Message:        message,
		ActionRequired: action,
		CreatedAt:      time.Now().UTC(),
	}
}

func emergencyMessage(current risk.RiskAssessment) string {
	if len(current.Anomalies) == 0 {
		return "Critical health risk detected. Seek medical attention."
	}
	return "Critical health risk detected: " + strings.Join(current.Anomalies, "; ")
}

func newAnomalies(previous, current []string) []string {
	seen := make(map[string]bool, len(previous))
	for _, a := range previous {
		seen[a] = true
	}

	var fresh []string
	for _, a := range current {
		if !seen[a] {
			fresh = append(fresh, a)
		}
	}
	return fresh
}

func trendNote(trends map[trend.Metric]trend.Direction) string {
	if trends == nil {
		return ""
	}

	var rising, falling []string
	for metric, dir := range trends {
		switch dir {
		case trend.DirectionUp:
			rising = append(rising, string(metric))
		case trend.DirectionDown:
			falling = append(falling, string(metric))
		}
	}

	sort.Strings(rising)
	sort.Strings(falling)

	var parts []string
	if len(rising) > 0 {
		parts = append(parts, "trending up: "+strings.Join(rising, ", "))
	}
	if len(falling) > 0 {
		parts = append(parts, "trending down: "+strings.Join(falling, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, "; ") + ")"
}
