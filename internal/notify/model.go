package notify

import (
	"time"

	"github.com/pulsecare/platform/internal/shared/types"
)

// Type classifies what a notification reports
type Type string

const (
	TypeImprovement Type = "improvement"
	TypeDecline     Type = "decline"
	TypeAnomaly     Type = "anomaly"
	TypeEmergency   Type = "emergency"
)

// Severity is the display urgency of a notification
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// HealthNotification informs a patient or caregiver of a risk change.
// Emergency notifications are always critical severity and always
// require action.
type HealthNotification struct {
	ID             types.ID  `json:"id"`
	SubjectID      types.ID  `json:"subject_id"`
	Type           Type      `json:"type"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	ActionRequired bool      `json:"action_required"`
	Acknowledged   bool      `json:"acknowledged"`
	CreatedAt      time.Time `json:"created_at"`
}
