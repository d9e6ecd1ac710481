package notify

import (
	"strings"
	"testing"

	"github.com/pulsecare/platform/internal/risk"
	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/trend"
)

func assessment(level risk.Level, anomalies ...string) risk.RiskAssessment {
	return risk.RiskAssessment{
		RecordID:  types.NewID(),
		RiskLevel: level,
		Anomalies: anomalies,
		Source:    risk.SourceRuleEngine,
	}
}

func TestGenerateEmergencyOnEnteringCritical(t *testing.T) {
	subject := types.NewID()
	prev := assessment(risk.LevelMedium)

	out := Generate(subject, &prev, assessment(risk.LevelCritical, "oxygen saturation 88% critically low"), nil)

	if len(out) != 1 {
		t.Fatalf("expected one notification, got %d", len(out))
	}
	n := out[0]
	if n.Type != TypeEmergency {
		t.Errorf("expected emergency type, got %s", n.Type)
	}
	if n.Severity != SeverityCritical {
		t.Errorf("expected critical severity, got %s", n.Severity)
	}
	if !n.ActionRequired {
		t.Error("expected emergency to require action")
	}
	if !strings.Contains(n.Message, "oxygen saturation") {
		t.Errorf("expected anomaly in message, got %q", n.Message)
	}
}

func TestGenerateEmergencyIsEdgeTriggered(t *testing.T) {
	subject := types.NewID()
	prev := assessment(risk.LevelCritical, "finding")

	out := Generate(subject, &prev, assessment(risk.LevelCritical, "finding"), nil)
	if len(out) != 0 {
		t.Errorf("expected no notification while staying critical, got %v", out)
	}
}

func TestGenerateEmergencyWithoutBaseline(t *testing.T) {
	out := Generate(types.NewID(), nil, assessment(risk.LevelCritical, "finding"), nil)
	if len(out) != 1 || out[0].Type != TypeEmergency {
		t.Errorf("expected emergency on first-ever critical reading, got %v", out)
	}
}

func TestGenerateDeclineOnRise(t *testing.T) {
	prev := assessment(risk.LevelLow)

	out := Generate(types.NewID(), &prev, assessment(risk.LevelMedium, "heart rate 110 bpm slightly out of range"), nil)

	if len(out) != 1 {
		t.Fatalf("expected one notification, got %d", len(out))
	}
	if out[0].Type != TypeDecline || out[0].Severity != SeverityWarning {
		t.Errorf("expected warning decline, got %s/%s", out[0].Type, out[0].Severity)
	}
	if !out[0].ActionRequired {
		t.Error("expected decline to require action")
	}
}

func TestGenerateDeclineOnMultiBandRise(t *testing.T) {
	prev := assessment(risk.LevelLow)

	// A jump straight to high must not fall through the cracks between
	// the one-band decline and the critical emergency.
	out := Generate(types.NewID(), &prev, assessment(risk.LevelHigh, "systolic blood pressure 155 mmHg very high"), nil)

	if len(out) != 1 {
		t.Fatalf("expected one notification, got %d", len(out))
	}
	if out[0].Type != TypeDecline {
		t.Errorf("expected decline for a two-band rise, got %s", out[0].Type)
	}
}

func TestGenerateDeclineIncludesTrendContext(t *testing.T) {
	prev := assessment(risk.LevelLow)
	trends := map[trend.Metric]trend.Direction{
		trend.MetricHeartRate:        trend.DirectionUp,
		trend.MetricOxygenSaturation: trend.DirectionDown,
		trend.MetricBPSystolic:       trend.DirectionStable,
	}

	out := Generate(types.NewID(), &prev, assessment(risk.LevelMedium, "finding"), trends)
	if len(out) != 1 {
		t.Fatalf("expected one notification, got %d", len(out))
	}
	msg := out[0].Message
	if !strings.Contains(msg, "trending up: heart_rate") {
		t.Errorf("expected rising metric in message, got %q", msg)
	}
	if !strings.Contains(msg, "trending down: oxygen_saturation") {
		t.Errorf("expected falling metric in message, got %q", msg)
	}
	if strings.Contains(msg, "bp_systolic") {
		t.Errorf("stable metric should not appear, got %q", msg)
	}
}

func TestGenerateImprovementOnFall(t *testing.T) {
	prev := assessment(risk.LevelHigh, "finding")

	out := Generate(types.NewID(), &prev, assessment(risk.LevelLow), nil)

	if len(out) != 1 {
		t.Fatalf("expected one notification, got %d", len(out))
	}
	if out[0].Type != TypeImprovement || out[0].Severity != SeverityInfo {
		t.Errorf("expected info improvement, got %s/%s", out[0].Type, out[0].Severity)
	}
	if out[0].ActionRequired {
		t.Error("improvement should not require action")
	}
}

func TestGenerateAnomalyOnNewFindingSameLevel(t *testing.T) {
	prev := assessment(risk.LevelMedium, "heart rate slightly out of range")
	current := assessment(risk.LevelMedium, "heart rate slightly out of range", "systolic blood pressure elevated")

	out := Generate(types.NewID(), &prev, current, nil)

	if len(out) != 1 {
		t.Fatalf("expected one notification, got %d", len(out))
	}
	if out[0].Type != TypeAnomaly {
		t.Errorf("expected anomaly type, got %s", out[0].Type)
	}
	if !strings.Contains(out[0].Message, "systolic") {
		t.Errorf("expected only the new finding, got %q", out[0].Message)
	}
}

func TestGenerateAnomalyOnNewFindingWhileCritical(t *testing.T) {
	prev := assessment(risk.LevelCritical, "oxygen saturation 88% critically low")
	current := assessment(risk.LevelCritical,
		"oxygen saturation 88% critically low", "heart rate 45 bpm out of range")

	out := Generate(types.NewID(), &prev, current, nil)

	if len(out) != 1 {
		t.Fatalf("expected one notification, got %d", len(out))
	}
	if out[0].Type != TypeAnomaly {
		t.Errorf("expected anomaly, not a repeated emergency, got %s", out[0].Type)
	}
	if !strings.Contains(out[0].Message, "heart rate") {
		t.Errorf("expected only the new finding, got %q", out[0].Message)
	}
}

func TestGenerateNothingWhenUnchanged(t *testing.T) {
	prev := assessment(risk.LevelMedium, "finding")

	out := Generate(types.NewID(), &prev, assessment(risk.LevelMedium, "finding"), nil)
	if len(out) != 0 {
		t.Errorf("expected no notifications for unchanged state, got %v", out)
	}
}

func TestGenerateNothingOnFirstNormalReading(t *testing.T) {
	out := Generate(types.NewID(), nil, assessment(risk.LevelLow), nil)
	if len(out) != 0 {
		t.Errorf("expected no notification for first normal reading, got %v", out)
	}
}
