package vitals

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
)

// Plausibility bounds. Readings outside these are rejected, not clamped;
// a value this far out means a sensor fault or a typo, and hiding it
// behind a clamped number could mask either.
const (
	minHeartRate   = 20
	maxHeartRate   = 300
	minTemperature = 80.0
	maxTemperature = 115.0

	// clockSkewTolerance is how far in the future a provided timestamp
	// may sit before the reading is rejected.
	clockSkewTolerance = 5 * time.Minute

	// unparseableTimestampPenalty is subtracted from quality confidence
	// when a provided timestamp fails to parse and now() is used instead.
	unparseableTimestampPenalty = 0.2
)

// Normalizer validates and canonicalizes raw readings into VitalRecords.
// It is a pure transform; persistence happens elsewhere.
type Normalizer struct {
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewNormalizer creates a normalizer using the wall clock
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize turns a raw reading into an immutable VitalRecord or an error
// from the validation taxonomy (VALIDATION_ERROR, OUT_OF_RANGE).
func (n *Normalizer) Normalize(raw RawReading) (*VitalRecord, error) {
	switch r := raw.(type) {
	case DeviceReading:
		return n.normalizeDevice(r)
	case *DeviceReading:
		return n.normalizeDevice(*r)
	case ManualReading:
		return n.normalizeManual(r)
	case *ManualReading:
		return n.normalizeManual(*r)
	default:
		return nil, errors.Validation("unknown reading payload", nil)
	}
}

func (n *Normalizer) normalizeDevice(r DeviceReading) (*VitalRecord, error) {
	subjectID, err := types.ParseID(r.SubjectID)
	if err != nil {
		return nil, errors.Validation("invalid subject_id", map[string]string{"subject_id": r.SubjectID})
	}

	for field, v := range map[string]float64{
		"heart_rate":        r.HeartRate,
		"bp_systolic":       r.BPSystolic,
		"bp_diastolic":      r.BPDiastolic,
		"oxygen_saturation": r.OxygenSaturation,
		"body_temperature":  r.BodyTemperature,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Validation("non-finite value", map[string]string{"field": field})
		}
	}

	confidence := 1.0
	if r.QualityConfidence != nil && !math.IsNaN(*r.QualityConfidence) {
		confidence = clamp(*r.QualityConfidence, 0, 1)
	}

	record := &VitalRecord{
		ID:                types.NewID(),
		SubjectID:         subjectID,
		HeartRate:         int(math.Round(r.HeartRate)),
		BPSystolic:        int(math.Round(r.BPSystolic)),
		BPDiastolic:       int(math.Round(r.BPDiastolic)),
		OxygenSaturation:  int(math.Round(clamp(r.OxygenSaturation, 0, 100))),
		BodyTemperature:   r.BodyTemperature,
		Source:            SourceDevice,
		QualityConfidence: confidence,
	}

	if r.Steps != nil && *r.Steps >= 0 && !math.IsNaN(*r.Steps) {
		steps := int(math.Round(*r.Steps))
		record.Steps = &steps
	}
	if r.SleepHours != nil && *r.SleepHours >= 0 && !math.IsNaN(*r.SleepHours) {
		hours := *r.SleepHours
		record.SleepHours = &hours
	}

	if err := n.applyTimestamp(record, r.Timestamp); err != nil {
		return nil, err
	}
	if err := applySupersedes(record, r.SupersedesID); err != nil {
		return nil, err
	}

	return record, n.checkRanges(record)
}

func (n *Normalizer) normalizeManual(r ManualReading) (*VitalRecord, error) {
	subjectID, err := types.ParseID(r.SubjectID)
	if err != nil {
		return nil, errors.Validation("invalid subject_id", map[string]string{"subject_id": r.SubjectID})
	}

	hr, err := coerceInt("heart_rate", r.HeartRate)
	if err != nil {
		return nil, err
	}
	sys, err := coerceInt("bp_systolic", r.BPSystolic)
	if err != nil {
		return nil, err
	}
	dia, err := coerceInt("bp_diastolic", r.BPDiastolic)
	if err != nil {
		return nil, err
	}
	spo2, err := coerceFloat("oxygen_saturation", r.OxygenSaturation)
	if err != nil {
		return nil, err
	}
	temp, err := coerceFloat("body_temperature", r.BodyTemperature)
	if err != nil {
		return nil, err
	}

	record := &VitalRecord{
		ID:                types.NewID(),
		SubjectID:         subjectID,
		HeartRate:         hr,
		BPSystolic:        sys,
		BPDiastolic:       dia,
		OxygenSaturation:  int(math.Round(clamp(spo2, 0, 100))),
		BodyTemperature:   temp,
		Source:            SourceManual,
		QualityConfidence: 1.0,
	}

	if err := n.applyTimestamp(record, r.Timestamp); err != nil {
		return nil, err
	}
	if err := applySupersedes(record, r.SupersedesID); err != nil {
		return nil, err
	}

	return record, n.checkRanges(record)
}

// applyTimestamp resolves the recorded-at instant. Absent timestamps get
// now(); unparseable ones get now() plus a confidence penalty; timestamps
// ahead of the clock-skew tolerance are rejected outright.
func (n *Normalizer) applyTimestamp(record *VitalRecord, raw string) error {
	now := n.Now()

	if strings.TrimSpace(raw) == "" {
		record.RecordedAt = now
		return nil
	}

	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		record.RecordedAt = now
		record.QualityConfidence = clamp(record.QualityConfidence-unparseableTimestampPenalty, 0, 1)
		return nil
	}

	if ts.After(now.Add(clockSkewTolerance)) {
		return errors.Validation("timestamp is in the future", map[string]string{"timestamp": raw})
	}

	record.RecordedAt = ts
	return nil
}

func applySupersedes(record *VitalRecord, raw string) error {
	if raw == "" {
		return nil
	}
	id, err := types.ParseID(raw)
	if err != nil {
		return errors.Validation("invalid supersedes_id", map[string]string{"supersedes_id": raw})
	}
	record.SupersedesID = &id
	return nil
}

func (n *Normalizer) checkRanges(record *VitalRecord) error {
	if record.HeartRate < minHeartRate || record.HeartRate > maxHeartRate {
		return errors.OutOfRange("heart_rate", strconv.Itoa(record.HeartRate))
	}
	if record.BodyTemperature < minTemperature || record.BodyTemperature > maxTemperature {
		return errors.OutOfRange("body_temperature", fmt.Sprintf("%.1f", record.BodyTemperature))
	}
	if record.BPSystolic <= 0 || record.BPDiastolic <= 0 {
		return errors.Validation("blood pressure must be positive", nil)
	}
	return nil
}

func coerceInt(field, raw string) (int, error) {
	v, err := coerceFloat(field, raw)
	if err != nil {
		return 0, err
	}
	return int(math.Round(v)), nil
}

func coerceFloat(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Validation("not a number", map[string]string{"field": field, "value": raw})
	}
	return v, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
