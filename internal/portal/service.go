package portal

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/pulsecare/platform/internal/notify"
	"github.com/pulsecare/platform/internal/patient"
	"github.com/pulsecare/platform/internal/risk"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/events"
	"github.com/pulsecare/platform/internal/shared/metrics"
	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/syncqueue"
	"github.com/pulsecare/platform/internal/trend"
	"github.com/pulsecare/platform/internal/vitals"
	"go.uber.org/zap"
)

// trendLookback bounds how far back the trend series reaches
const trendLookback = 7 * 24 * time.Hour

// ProfileProvider supplies the clinical profile that informs remote
// analysis. A nil provider (or a lookup failure) degrades gracefully to
// profile-free classification.
type ProfileProvider interface {
	ProfileByPatient(ctx context.Context, patientID types.ID) (*patient.Profile, error)
}

// Service orchestrates the vitals pipeline: normalize, persist, classify,
// detect trends, generate notifications, publish events. Persistence
// failures divert the record to the offline sync queue instead of losing
// it; classification and notification still run on the in-memory record.
type Service struct {
	normalizer *vitals.Normalizer
	records    *vitals.Repository
	classifier *risk.Classifier
	notes      *notify.Repository
	profiles   ProfileProvider
	queue      *syncqueue.Queue
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewService creates the pipeline service. profiles, queue, and publisher
// may be nil; each disables its concern.
func NewService(
	normalizer *vitals.Normalizer,
	records *vitals.Repository,
	classifier *risk.Classifier,
	notes *notify.Repository,
	profiles ProfileProvider,
	queue *syncqueue.Queue,
	publisher events.Publisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		normalizer: normalizer,
		records:    records,
		classifier: classifier,
		notes:      notes,
		profiles:   profiles,
		queue:      queue,
		publisher:  publisher,
		logger:     logger,
	}
}

// AttachQueue wires the offline sync queue after construction. The
// queue's replay sink is this service, so the two reference each other;
// the service is built first, then handed the opened queue.
func (s *Service) AttachQueue(queue *syncqueue.Queue) {
	s.queue = queue
}

// IngestResult is everything one accepted reading produced
type IngestResult struct {
	Record        vitals.VitalRecord             `json:"record"`
	Assessment    risk.RiskAssessment            `json:"assessment"`
	Trends        map[trend.Metric]trend.Direction `json:"trends,omitempty"`
	Notifications []notify.HealthNotification    `json:"notifications"`

	// Queued is true when the record could not be written through and
	// sits in the sync queue awaiting replay.
	Queued bool `json:"queued"`
}

// Ingest runs one raw reading through the full pipeline. Validation
// errors are returned as-is; infrastructure failures after validation are
// absorbed (queued or logged) because a reading that passed validation
// must never be dropped.
func (s *Service) Ingest(ctx context.Context, raw vitals.RawReading) (*IngestResult, error) {
	record, err := s.normalizer.Normalize(raw)
	if err != nil {
		metrics.RecordVitalsRejected(rejectionReason(err))
		return nil, err
	}

	// The assessment of the previous latest record is the baseline for
	// change detection. Read it before the new record lands.
	previous := s.previousAssessment(ctx, record.SubjectID)

	queued := false
	if err := s.records.Save(ctx, record); err != nil {
		queued = s.divertToQueue(ctx, record, err)
		if !queued {
			return nil, err
		}
	} else if s.queue != nil {
		s.queue.SetOnline(ctx, true)
	}

	profile := s.profileFor(ctx, record.SubjectID)
	assessment := s.classifier.Classify(ctx, *record, profile)

	trends := s.trendsFor(ctx, record.SubjectID, *record, queued)

	notifications := notify.Generate(record.SubjectID, previous, assessment, trends)
	for i := range notifications {
		if err := s.notes.Save(ctx, &notifications[i]); err != nil {
			s.logger.Error("failed to save notification",
				zap.String("subject_id", record.SubjectID.String()), zap.Error(err))
			continue
		}
		metrics.RecordNotification(string(notifications[i].Type), string(notifications[i].Severity))
	}

	s.publish(ctx, *record, assessment, notifications)
	metrics.RecordVitalsIngested(string(record.Source))

	return &IngestResult{
		Record:        *record,
		Assessment:    assessment,
		Trends:        trends,
		Notifications: notifications,
		Queued:        queued,
	}, nil
}

// History returns a subject's records within a time range, oldest first
func (s *Service) History(ctx context.Context, subjectID types.ID, from, to time.Time) ([]vitals.VitalRecord, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-trendLookback)
	}
	return s.records.ListBySubject(ctx, subjectID, from, to)
}

// Latest returns a subject's most recent record with its assessment
func (s *Service) Latest(ctx context.Context, subjectID types.ID) (*vitals.VitalRecord, *risk.RiskAssessment, error) {
	record, err := s.records.LatestBySubject(ctx, subjectID)
	if err != nil {
		return nil, nil, err
	}

	assessment := s.classifier.Classify(ctx, *record, s.profileFor(ctx, subjectID))
	return record, &assessment, nil
}

// Trends returns the current trend verdict for every metric
func (s *Service) Trends(ctx context.Context, subjectID types.ID) (map[trend.Metric]trend.Direction, error) {
	now := time.Now().UTC()
	series, err := s.records.ListBySubject(ctx, subjectID, now.Add(-trendLookback), now)
	if err != nil {
		return nil, err
	}
	return trend.DetectAll(series), nil
}

// FlushQueue replays any writes deferred while persistence was down
func (s *Service) FlushQueue(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	return s.queue.Flush(ctx)
}

// ReplayEntry is the sync queue sink: it re-applies one deferred write.
// Saves are idempotent at the database level (primary key conflict means
// the write already landed), so replaying twice is harmless.
func (s *Service) ReplayEntry(ctx context.Context, entry syncqueue.Entry) error {
	switch entry.Action {
	case syncqueue.ActionAddVitals:
		var record vitals.VitalRecord
		if err := unmarshalEntry(entry, &record); err != nil {
			return err
		}
		err := s.records.Save(ctx, &record)
		if isDuplicateKey(err) {
			return nil
		}
		return err

	case syncqueue.ActionAckNotification:
		var payload struct {
			NotificationID types.ID `json:"notification_id"`
		}
		if err := unmarshalEntry(entry, &payload); err != nil {
			return err
		}
		err := s.notes.Acknowledge(ctx, payload.NotificationID)
		if err != nil && stderrors.Is(err, errors.ErrNotFound) {
			// The notification was pruned while offline; nothing to ack.
			return nil
		}
		return err

	default:
		s.logger.Warn("dropping queue entry with unknown action",
			zap.String("action", string(entry.Action)))
		return nil
	}
}

func (s *Service) previousAssessment(ctx context.Context, subjectID types.ID) *risk.RiskAssessment {
	prior, err := s.records.LatestBySubject(ctx, subjectID)
	if err != nil {
		if !stderrors.Is(err, errors.ErrNotFound) {
			s.logger.Warn("failed to load previous record",
				zap.String("subject_id", subjectID.String()), zap.Error(err))
		}
		return nil
	}

	// Rule tier only: the baseline must be cheap and deterministic.
	assessment := risk.EvaluateRules(*prior)
	return &assessment
}

func (s *Service) divertToQueue(ctx context.Context, record *vitals.VitalRecord, cause error) bool {
	if s.queue == nil {
		return false
	}

	s.queue.SetOnline(ctx, false)
	if _, err := s.queue.Enqueue(syncqueue.ActionAddVitals, record); err != nil {
		s.logger.Error("failed to queue record after persistence failure",
			zap.String("record_id", record.ID.String()),
			zap.NamedError("persistence_error", cause),
			zap.Error(err))
		return false
	}

	s.logger.Warn("persistence unavailable, record queued for replay",
		zap.String("record_id", record.ID.String()), zap.Error(cause))
	return true
}

func (s *Service) profileFor(ctx context.Context, subjectID types.ID) *patient.Profile {
	if s.profiles == nil {
		return nil
	}
	profile, err := s.profiles.ProfileByPatient(ctx, subjectID)
	if err != nil {
		if !stderrors.Is(err, errors.ErrNotFound) {
			s.logger.Warn("profile lookup failed",
				zap.String("subject_id", subjectID.String()), zap.Error(err))
		}
		return nil
	}
	return profile
}

func (s *Service) trendsFor(ctx context.Context, subjectID types.ID, current vitals.VitalRecord, queued bool) map[trend.Metric]trend.Direction {
	now := time.Now().UTC()
	series, err := s.records.ListBySubject(ctx, subjectID, now.Add(-trendLookback), now)
	if err != nil {
		s.logger.Warn("trend series unavailable",
			zap.String("subject_id", subjectID.String()), zap.Error(err))
		return nil
	}

	// A queued record is not in the database yet; include it so the
	// trend reflects what the patient just reported.
	if queued {
		series = append(series, current)
		trend.SortByTime(series)
	}

	return trend.DetectAll(series)
}

func (s *Service) publish(ctx context.Context, record vitals.VitalRecord, assessment risk.RiskAssessment, notifications []notify.HealthNotification) {
	if s.publisher == nil {
		return
	}

	s.publishEvent(ctx, events.NewEvent(events.TypeVitalsRecorded, "portal", record.SubjectID, map[string]any{
		"record_id":  record.ID,
		"source":     record.Source,
		"risk_level": assessment.RiskLevel,
	}))

	for _, n := range notifications {
		s.publishEvent(ctx, events.NewEvent(events.TypeNotificationCreated, "portal", n.SubjectID, n))
		if n.Type == notify.TypeEmergency {
			s.publishEvent(ctx, events.NewEvent(events.TypeEmergencyRaised, "portal", n.SubjectID, map[string]any{
				"record_id": record.ID,
				"anomalies": assessment.Anomalies,
			}))
		}
	}
}

func (s *Service) publishEvent(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event_type", event.Type), zap.Error(err))
	}
}

func rejectionReason(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "unknown"
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	// pgx surfaces unique violations as SQLSTATE 23505
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key")
}

func unmarshalEntry(entry syncqueue.Entry, target any) error {
	if err := json.Unmarshal(entry.Payload, target); err != nil {
		return errors.Wrap(err, "corrupt queue entry")
	}
	return nil
}
