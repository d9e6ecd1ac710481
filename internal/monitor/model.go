package monitor

import (
	"time"

	"github.com/pulsecare/platform/internal/risk"
	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/vitals"
)

// EmergencyType records how an emergency was raised, so an admin can
// tell a patient-initiated SOS from a critical classification.
type EmergencyType string

const (
	EmergencyCriticalVitals EmergencyType = "critical-vitals"
	EmergencyManualSOS      EmergencyType = "manual-sos"
)

// ConnectionState describes the patient's wearable link as seen from
// the latest poll.
type ConnectionState string

const (
	// DeviceUnpaired means no wearable is registered for the patient.
	DeviceUnpaired ConnectionState = "unpaired"
	// DeviceConnected means a device-sourced reading arrived recently.
	DeviceConnected ConnectionState = "connected"
	// DeviceDisconnected means a device is paired but has gone quiet.
	DeviceDisconnected ConnectionState = "disconnected"
)

// PatientSnapshot is one patient's row on the admin monitoring board.
// Snapshots are rebuilt wholesale every poll tick; only the emergency
// latch carries over between ticks.
type PatientSnapshot struct {
	PatientID   types.ID `json:"patient_id"`
	PatientName string   `json:"patient_name"`

	LatestVitals *vitals.VitalRecord  `json:"latest_vitals,omitempty"`
	Assessment   *risk.RiskAssessment `json:"assessment,omitempty"`

	// IsEmergency latches on a critical assessment or a manual SOS and
	// stays set until an administrator explicitly resolves it, even if
	// later readings are normal. A patient whose vitals bounced back
	// still needs review. EmergencyType names the cause of the episode.
	IsEmergency    bool          `json:"is_emergency"`
	EmergencyType  EmergencyType `json:"emergency_type,omitempty"`
	EmergencySince *time.Time    `json:"emergency_since,omitempty"`

	DeviceConnectionState ConnectionState `json:"device_connection_state"`

	UpdatedAt time.Time `json:"updated_at"`
}

// RiskLevel returns the snapshot's risk level, defaulting to low when no
// vitals have been reported yet.
func (s PatientSnapshot) RiskLevel() risk.Level {
	if s.Assessment == nil {
		return risk.LevelLow
	}
	return s.Assessment.RiskLevel
}
