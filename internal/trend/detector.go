package trend

import (
	"sort"

	"github.com/pulsecare/platform/internal/vitals"
)

// Metric selects which measurement a trend is computed over
type Metric string

const (
	MetricHeartRate        Metric = "heart_rate"
	MetricBPSystolic       Metric = "bp_systolic"
	MetricBPDiastolic      Metric = "bp_diastolic"
	MetricOxygenSaturation Metric = "oxygen_saturation"
	MetricBodyTemperature  Metric = "body_temperature"
)

// Direction is the detected movement of a metric
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"

	// DirectionNone means insufficient data, which is distinct from
	// stable: five flat points tell you nothing yet.
	DirectionNone Direction = ""
)

const (
	// minPoints is the minimum series length for a verdict
	minPoints = 6

	// windowSize is how many recent points form each comparison mean
	windowSize = 3

	// relativeThreshold is the minimum relative change between the two
	// window means for a directional verdict
	relativeThreshold = 0.02
)

// Detect derives the direction of one metric over a chronologically
// ascending series. The caller is responsible for sort order; use
// SortByTime when in doubt. Pure, no side effects.
func Detect(series []vitals.VitalRecord, metric Metric) Direction {
	if len(series) < minPoints {
		return DirectionNone
	}

	recent := mean(series[len(series)-windowSize:], metric)
	prior := mean(series[len(series)-2*windowSize:len(series)-windowSize], metric)

	if prior == 0 {
		if recent == 0 {
			return DirectionStable
		}
		return DirectionUp
	}

	diff := (recent - prior) / prior
	switch {
	case diff > relativeThreshold:
		return DirectionUp
	case diff < -relativeThreshold:
		return DirectionDown
	default:
		return DirectionStable
	}
}

// DetectAll computes the trend for every metric at once
func DetectAll(series []vitals.VitalRecord) map[Metric]Direction {
	result := make(map[Metric]Direction, 5)
	for _, m := range []Metric{
		MetricHeartRate, MetricBPSystolic, MetricBPDiastolic,
		MetricOxygenSaturation, MetricBodyTemperature,
	} {
		result[m] = Detect(series, m)
	}
	return result
}

// SortByTime sorts a series ascending by recorded time, in place
func SortByTime(series []vitals.VitalRecord) {
	sort.Slice(series, func(i, j int) bool {
		return series[i].RecordedAt.Before(series[j].RecordedAt)
	})
}

func mean(window []vitals.VitalRecord, metric Metric) float64 {
	var sum float64
	for _, r := range window {
		sum += value(r, metric)
	}
	return sum / float64(len(window))
}

func value(r vitals.VitalRecord, metric Metric) float64 {
	switch metric {
	case MetricHeartRate:
		return float64(r.HeartRate)
	case MetricBPSystolic:
		return float64(r.BPSystolic)
	case MetricBPDiastolic:
		return float64(r.BPDiastolic)
	case MetricOxygenSaturation:
		return float64(r.OxygenSaturation)
	case MetricBodyTemperature:
		return r.BodyTemperature
	default:
		return 0
	}
}
