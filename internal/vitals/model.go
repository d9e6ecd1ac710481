package vitals

import (
	"time"

	"github.com/pulsecare/platform/internal/shared/types"
)

// Source indicates how a reading entered the system
type Source string

const (
	SourceManual Source = "manual"
	SourceDevice Source = "device"
)

// VitalRecord is one timestamped set of physiological measurements.
// Records are immutable once created; corrections create a new record
// referencing the superseded one.
type VitalRecord struct {
	ID        types.ID `json:"id"`
	SubjectID types.ID `json:"subject_id"`

	HeartRate        int     `json:"heart_rate"`        // bpm
	BPSystolic       int     `json:"bp_systolic"`       // mmHg
	BPDiastolic      int     `json:"bp_diastolic"`      // mmHg
	OxygenSaturation int     `json:"oxygen_saturation"` // percent, clamped to [0,100]
	BodyTemperature  float64 `json:"body_temperature"`  // degrees Fahrenheit

	Steps      *int     `json:"steps,omitempty"`
	SleepHours *float64 `json:"sleep_hours,omitempty"`

	RecordedAt        time.Time `json:"recorded_at"`
	Source            Source    `json:"source"`
	QualityConfidence float64   `json:"quality_confidence"` // [0,1]

	SupersedesID *types.ID `json:"supersedes_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RawReading is the tagged-union input to the normalizer.
type RawReading interface {
	source() Source
}

// DeviceReading is a structured wearable payload. Numeric fields arrive
// as floats from loosely typed device firmware.
type DeviceReading struct {
	DeviceID          string   `json:"device_id"`
	SubjectID         string   `json:"subject_id"`
	HeartRate         float64  `json:"heart_rate"`
	BPSystolic        float64  `json:"bp_systolic"`
	BPDiastolic       float64  `json:"bp_diastolic"`
	OxygenSaturation  float64  `json:"oxygen_saturation"`
	BodyTemperature   float64  `json:"body_temperature"`
	Steps             *float64 `json:"steps,omitempty"`
	SleepHours        *float64 `json:"sleep_hours,omitempty"`
	Timestamp         string   `json:"timestamp,omitempty"` // RFC3339
	QualityConfidence *float64 `json:"quality_confidence,omitempty"`
	SupersedesID      string   `json:"supersedes_id,omitempty"`
}

func (DeviceReading) source() Source { return SourceDevice }

// ManualReading is a manual-entry form submission. Fields arrive as
// strings exactly as typed.
type ManualReading struct {
	SubjectID        string `json:"subject_id"`
	HeartRate        string `json:"heart_rate"`
	BPSystolic       string `json:"bp_systolic"`
	BPDiastolic      string `json:"bp_diastolic"`
	OxygenSaturation string `json:"oxygen_saturation"`
	BodyTemperature  string `json:"body_temperature"`
	Timestamp        string `json:"timestamp,omitempty"`
	SupersedesID     string `json:"supersedes_id,omitempty"`
}

func (ManualReading) source() Source { return SourceManual }
