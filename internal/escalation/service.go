package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pulsecare/platform/internal/monitor"
	"github.com/pulsecare/platform/internal/patient"
	"github.com/pulsecare/platform/internal/shared/config"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/events"
	"github.com/pulsecare/platform/internal/shared/metrics"
	"github.com/pulsecare/platform/internal/shared/types"
	"go.uber.org/zap"
)

// Step names an independent emergency action
type Step string

const (
	StepCallEmergency Step = "call-emergency"
	StepNotifyContact Step = "notify-contact"
	StepShareLocation Step = "share-location"
)

// Location is a best-effort position fix
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy_meters,omitempty"`
}

// StepResult records one attempt of one step
type StepResult struct {
	Step        Step      `json:"step"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// Report is the outcome of an SOS trigger. Steps are independent: one
// failing never blocks the others, and each failed step can be retried
// on its own.
type Report struct {
	PatientID   types.ID     `json:"patient_id"`
	Location    *Location    `json:"location,omitempty"`
	Steps       []StepResult `json:"steps"`
	TriggeredAt time.Time    `json:"triggered_at"`
}

// Dialer places the emergency voice call
type Dialer interface {
	Dial(ctx context.Context, number string) error
}

// ContactNotifier messages the patient's emergency contact
type ContactNotifier interface {
	Notify(ctx context.Context, name, phone, message string) error
}

// Locator fetches the patient's current position
type Locator interface {
	Locate(ctx context.Context, patientID types.ID) (*Location, error)
}

// LocationSharer pushes the position fix to responders
type LocationSharer interface {
	Share(ctx context.Context, patientID types.ID, loc Location) error
}

// PatientDirectory resolves emergency contact details
type PatientDirectory interface {
	GetByID(ctx context.Context, id types.ID) (*patient.Patient, error)
}

// Service runs the SOS flow: latch the emergency on the monitoring
// board, grab a position fix, then fire three independent steps.
type Service struct {
	dialer    Dialer
	notifier  ContactNotifier
	locator   Locator
	sharer    LocationSharer
	patients  PatientDirectory
	board     *monitor.SnapshotStore
	publisher events.Publisher
	cfg       config.EscalationConfig
	logger    *zap.Logger

	mu      sync.Mutex
	reports map[types.ID]*Report
}

// NewService creates the escalation service
func NewService(
	dialer Dialer,
	notifier ContactNotifier,
	locator Locator,
	sharer LocationSharer,
	patients PatientDirectory,
	board *monitor.SnapshotStore,
	publisher events.Publisher,
	cfg config.EscalationConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		dialer:    dialer,
		notifier:  notifier,
		locator:   locator,
		sharer:    sharer,
		patients:  patients,
		board:     board,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		reports:   make(map[types.ID]*Report),
	}
}

// Trigger runs the full SOS flow for a patient. It returns a report even
// when every step failed; the emergency latch and the report exist the
// moment the trigger is accepted.
func (s *Service) Trigger(ctx context.Context, patientID types.ID) (*Report, error) {
	pat, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if s.board != nil {
		s.board.MarkEmergency(patientID)
	}
	s.publishEvent(ctx, events.NewEvent(events.TypeEmergencyRaised, "sos", patientID, map[string]any{
		"trigger": "manual",
	}))

	report := &Report{
		PatientID:   patientID,
		TriggeredAt: time.Now().UTC(),
	}

	// Location is best-effort within a hard deadline. The call and the
	// contact notification never wait on it.
	report.Location = s.locate(ctx, patientID)

	report.Steps = append(report.Steps, s.runStep(ctx, report, pat, StepCallEmergency))
	report.Steps = append(report.Steps, s.runStep(ctx, report, pat, StepNotifyContact))
	report.Steps = append(report.Steps, s.runStep(ctx, report, pat, StepShareLocation))

	s.mu.Lock()
	s.reports[patientID] = report
	s.mu.Unlock()

	return report, nil
}

// RetryStep re-runs one step of the most recent SOS for a patient
func (s *Service) RetryStep(ctx context.Context, patientID types.ID, step Step) (*Report, error) {
	switch step {
	case StepCallEmergency, StepNotifyContact, StepShareLocation:
	default:
		return nil, errors.BadRequest(fmt.Sprintf("unknown step %q", step))
	}

	s.mu.Lock()
	report, ok := s.reports[patientID]
	s.mu.Unlock()
	if !ok {
		return nil, errors.NotFound("active emergency", patientID.String())
	}

	pat, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	// A location retry is implied when sharing is retried without a fix.
	if step == StepShareLocation && report.Location == nil {
		report.Location = s.locate(ctx, patientID)
	}

	result := s.runStep(ctx, report, pat, step)

	s.mu.Lock()
	report.Steps = append(report.Steps, result)
	s.mu.Unlock()

	if !result.OK {
		return report, errors.EscalationStep(string(step), fmt.Errorf("%s", result.Error))
	}
	return report, nil
}

// Report returns the latest SOS report for a patient
func (s *Service) Report(patientID types.ID) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, ok := s.reports[patientID]
	if !ok {
		return nil, errors.NotFound("active emergency", patientID.String())
	}
	return report, nil
}

func (s *Service) locate(ctx context.Context, patientID types.ID) *Location {
	if s.locator == nil {
		return nil
	}

	locCtx, cancel := context.WithTimeout(ctx, s.cfg.GeolocationTimeout)
	defer cancel()

	loc, err := s.locator.Locate(locCtx, patientID)
	if err != nil {
		s.logger.Warn("geolocation failed, continuing without position",
			zap.String("patient_id", patientID.String()), zap.Error(err))
		return nil
	}
	return loc
}

func (s *Service) runStep(ctx context.Context, report *Report, pat *patient.Patient, step Step) StepResult {
	result := StepResult{Step: step, AttemptedAt: time.Now().UTC()}

	var err error
	switch step {
	case StepCallEmergency:
		err = s.dialer.Dial(ctx, s.cfg.EmergencyNumber)
	case StepNotifyContact:
		if pat.EmergencyContactPhone == "" {
			err = fmt.Errorf("patient has no emergency contact on file")
		} else {
			err = s.notifier.Notify(ctx, pat.EmergencyContactName, pat.EmergencyContactPhone,
				contactMessage(pat, report.Location))
		}
	case StepShareLocation:
		if report.Location == nil {
			err = fmt.Errorf("no position fix available")
		} else {
			err = s.sharer.Share(ctx, report.PatientID, *report.Location)
		}
	}

	if err != nil {
		result.Error = err.Error()
		metrics.RecordEscalationStep(string(step), false)
		s.logger.Error("emergency step failed",
			zap.String("patient_id", report.PatientID.String()),
			zap.String("step", string(step)), zap.Error(err))
		return result
	}

	result.OK = true
	metrics.RecordEscalationStep(string(step), true)
	return result
}

func (s *Service) publishEvent(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish escalation event",
			zap.String("event_type", event.Type), zap.Error(err))
	}
}

func contactMessage(pat *patient.Patient, loc *Location) string {
	msg := fmt.Sprintf("EMERGENCY: %s triggered an SOS alert.", pat.FullName())
	if loc != nil {
		msg += fmt.Sprintf(" Last known position: %.5f, %.5f.", loc.Latitude, loc.Longitude)
	}
	return msg
}
