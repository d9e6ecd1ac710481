package trend

import (
	"testing"
	"time"

	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/vitals"
)

func seriesWithHeartRates(rates ...int) []vitals.VitalRecord {
	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	series := make([]vitals.VitalRecord, len(rates))
	for i, hr := range rates {
		series[i] = vitals.VitalRecord{
			ID:               types.NewID(),
			HeartRate:        hr,
			BPSystolic:       120,
			BPDiastolic:      80,
			OxygenSaturation: 98,
			BodyTemperature:  98.6,
			RecordedAt:       base.Add(time.Duration(i) * time.Hour),
		}
	}
	return series
}

func TestDetectRequiresMinimumPoints(t *testing.T) {
	series := seriesWithHeartRates(70, 72, 74, 90, 95)

	if dir := Detect(series, MetricHeartRate); dir != DirectionNone {
		t.Errorf("expected no verdict with 5 points, got %q", dir)
	}
}

func TestDetectDirections(t *testing.T) {
	tests := []struct {
		name  string
		rates []int
		want  Direction
	}{
		{"rising", []int{70, 70, 70, 90, 92, 95}, DirectionUp},
		{"falling", []int{95, 92, 90, 70, 70, 70}, DirectionDown},
		{"flat", []int{72, 72, 72, 72, 72, 72}, DirectionStable},
		{"noise below threshold", []int{72, 72, 72, 72, 73, 72}, DirectionStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if dir := Detect(seriesWithHeartRates(tt.rates...), MetricHeartRate); dir != tt.want {
				t.Errorf("expected %q, got %q", tt.want, dir)
			}
		})
	}
}

func TestDetectUsesOnlyRecentWindows(t *testing.T) {
	// Old history is irrelevant; only the last two windows of three count.
	series := seriesWithHeartRates(150, 40, 200, 70, 70, 70, 70, 70, 70)

	if dir := Detect(series, MetricHeartRate); dir != DirectionStable {
		t.Errorf("expected stable over recent windows, got %q", dir)
	}
}

func TestDetectAllCoversEveryMetric(t *testing.T) {
	series := seriesWithHeartRates(70, 70, 70, 90, 92, 95)

	result := DetectAll(series)
	if len(result) != 5 {
		t.Fatalf("expected verdicts for 5 metrics, got %d", len(result))
	}
	if result[MetricHeartRate] != DirectionUp {
		t.Errorf("expected heart rate up, got %q", result[MetricHeartRate])
	}
	if result[MetricBPSystolic] != DirectionStable {
		t.Errorf("expected systolic stable, got %q", result[MetricBPSystolic])
	}
}

func TestSortByTime(t *testing.T) {
	series := seriesWithHeartRates(70, 71, 72)
	series[0], series[2] = series[2], series[0]

	SortByTime(series)
	for i := 1; i < len(series); i++ {
		if series[i].RecordedAt.Before(series[i-1].RecordedAt) {
			t.Fatal("series not sorted by recorded time")
		}
	}
}
