package risk

import (
	"strings"
	"testing"

	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/vitals"
)

func normalRecord() vitals.VitalRecord {
	return vitals.VitalRecord{
		ID:               types.NewID(),
		SubjectID:        types.NewID(),
		HeartRate:        72,
		BPSystolic:       118,
		BPDiastolic:      76,
		OxygenSaturation: 98,
		BodyTemperature:  98.6,
	}
}

func TestEvaluateAllNormal(t *testing.T) {
	level, anomalies, recommendations := evaluate(normalRecord())

	if level != LevelLow {
		t.Errorf("expected low risk, got %s", level)
	}
	if len(anomalies) != 0 {
		t.Errorf("expected no anomalies, got %v", anomalies)
	}
	if len(recommendations) != 1 || recommendations[0] != allNormalRecommendation {
		t.Errorf("expected the all-normal recommendation, got %v", recommendations)
	}
}

func TestEvaluateSingleMetricBands(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*vitals.VitalRecord)
		want   Level
	}{
		{"heart rate 55 is medium", func(r *vitals.VitalRecord) { r.HeartRate = 55 }, LevelMedium},
		{"heart rate 110 is medium", func(r *vitals.VitalRecord) { r.HeartRate = 110 }, LevelMedium},
		{"heart rate 45 is high", func(r *vitals.VitalRecord) { r.HeartRate = 45 }, LevelHigh},
		{"heart rate 130 is high", func(r *vitals.VitalRecord) { r.HeartRate = 130 }, LevelHigh},
		{"heart rate 150 is critical", func(r *vitals.VitalRecord) { r.HeartRate = 150 }, LevelCritical},
		{"heart rate 35 is critical", func(r *vitals.VitalRecord) { r.HeartRate = 35 }, LevelCritical},

		{"systolic 130 is medium", func(r *vitals.VitalRecord) { r.BPSystolic = 130 }, LevelMedium},
		{"systolic 150 is high", func(r *vitals.VitalRecord) { r.BPSystolic = 150 }, LevelHigh},
		{"systolic 170 is critical", func(r *vitals.VitalRecord) { r.BPSystolic = 170 }, LevelCritical},

		{"diastolic 85 is medium", func(r *vitals.VitalRecord) { r.BPDiastolic = 85 }, LevelMedium},
		{"diastolic 95 is high", func(r *vitals.VitalRecord) { r.BPDiastolic = 95 }, LevelHigh},
		{"diastolic 105 is critical", func(r *vitals.VitalRecord) { r.BPDiastolic = 105 }, LevelCritical},

		{"spo2 92 is medium", func(r *vitals.VitalRecord) { r.OxygenSaturation = 92 }, LevelMedium},
		{"spo2 89 is critical, no high band", func(r *vitals.VitalRecord) { r.OxygenSaturation = 89 }, LevelCritical},

		{"temperature 100.0 is medium", func(r *vitals.VitalRecord) { r.BodyTemperature = 100.0 }, LevelMedium},
		{"temperature 101.5 is high", func(r *vitals.VitalRecord) { r.BodyTemperature = 101.5 }, LevelHigh},
		{"temperature 104.0 is critical", func(r *vitals.VitalRecord) { r.BodyTemperature = 104.0 }, LevelCritical},
		{"temperature 94.0 is critical", func(r *vitals.VitalRecord) { r.BodyTemperature = 94.0 }, LevelCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := normalRecord()
			tt.mutate(&record)

			level, anomalies, _ := evaluate(record)
			if level != tt.want {
				t.Errorf("expected %s, got %s (anomalies: %v)", tt.want, level, anomalies)
			}
			if len(anomalies) != 1 {
				t.Errorf("expected exactly one anomaly, got %v", anomalies)
			}
		})
	}
}

func TestEvaluateLowOxygenAloneIsCritical(t *testing.T) {
	record := normalRecord()
	record.OxygenSaturation = 88

	level, anomalies, _ := evaluate(record)
	if level != LevelCritical {
		t.Errorf("expected critical for SpO2 88, got %s", level)
	}
	if len(anomalies) != 1 || !strings.Contains(anomalies[0], "oxygen saturation") {
		t.Errorf("unexpected anomalies: %v", anomalies)
	}
}

func TestEvaluateCompoundingFindingsEscalate(t *testing.T) {
	// High heart rate plus reduced oxygen: neither alone is critical, but
	// together the aggregate escalates.
	record := normalRecord()
	record.HeartRate = 130
	record.OxygenSaturation = 92

	level, anomalies, recommendations := evaluate(record)
	if level != LevelCritical {
		t.Errorf("expected critical for compounding findings, got %s", level)
	}
	if len(anomalies) != 2 {
		t.Errorf("expected both anomalies reported, got %v", anomalies)
	}
	if len(recommendations) != 2 {
		t.Errorf("expected one recommendation per category, got %v", recommendations)
	}
}

func TestEvaluateTwoMediumFindingsStayMedium(t *testing.T) {
	record := normalRecord()
	record.HeartRate = 110
	record.BPSystolic = 130

	level, _, _ := evaluate(record)
	if level != LevelMedium {
		t.Errorf("expected medium without a high-band finding, got %s", level)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	record := normalRecord()
	record.HeartRate = 130
	record.OxygenSaturation = 92

	firstLevel, firstAnomalies, _ := evaluate(record)
	for i := 0; i < 10; i++ {
		level, anomalies, _ := evaluate(record)
		if level != firstLevel {
			t.Fatalf("level changed between runs: %s vs %s", firstLevel, level)
		}
		if len(anomalies) != len(firstAnomalies) {
			t.Fatalf("anomalies changed between runs: %v vs %v", firstAnomalies, anomalies)
		}
		for j := range anomalies {
			if anomalies[j] != firstAnomalies[j] {
				t.Fatalf("anomaly order changed: %v vs %v", firstAnomalies, anomalies)
			}
		}
	}
}

func TestLevelOrdering(t *testing.T) {
	if !(LevelLow < LevelMedium && LevelMedium < LevelHigh && LevelHigh < LevelCritical) {
		t.Error("levels are not strictly ordered")
	}
}

func TestLevelJSONRoundTrip(t *testing.T) {
	for _, level := range []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical} {
		parsed, ok := ParseLevel(level.String())
		if !ok || parsed != level {
			t.Errorf("level %s did not round-trip", level)
		}
	}
	if _, ok := ParseLevel("apocalyptic"); ok {
		t.Error("expected unknown level to be rejected")
	}
}
