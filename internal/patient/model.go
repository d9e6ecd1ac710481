package patient

import (
	"time"

	"github.com/pulsecare/platform/internal/shared/types"
)

// Status defines the status of a patient account
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Patient represents an enrolled portal patient
type Patient struct {
	ID          types.ID   `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`

	EmergencyContactName  string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty"`

	// DeviceID links the patient to a wearable, when paired
	DeviceID string `json:"device_id,omitempty"`

	Status Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns the patient's full name
func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Profile carries the clinical context a classifier may use alongside a
// single reading. It typically comes from the hospital information
// system and may be absent.
type Profile struct {
	PatientID  types.ID `json:"patient_id"`
	Age        int      `json:"age,omitempty"`
	Sex        string   `json:"sex,omitempty"`
	Conditions []string `json:"conditions,omitempty"`

	// Patient-specific resting baselines, when known
	BaselineHeartRate  *int `json:"baseline_heart_rate,omitempty"`
	BaselineBPSystolic *int `json:"baseline_bp_systolic,omitempty"`
}
