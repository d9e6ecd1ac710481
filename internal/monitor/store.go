package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/events"
	"github.com/pulsecare/platform/internal/shared/metrics"
	"github.com/pulsecare/platform/internal/shared/types"
	"go.uber.org/zap"
)

// SnapshotStore holds the current monitoring board in memory. The poller
// replaces it wholesale each tick (last writer wins); readers always see
// a complete, consistent board.
type SnapshotStore struct {
	publisher events.Publisher
	logger    *zap.Logger

	mu        sync.RWMutex
	snapshots map[types.ID]PatientSnapshot
}

// NewSnapshotStore creates an empty snapshot store
func NewSnapshotStore(publisher events.Publisher, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{
		publisher: publisher,
		logger:    logger,
		snapshots: make(map[types.ID]PatientSnapshot),
	}
}

// ReplaceAll installs a freshly built board. Emergency latches from the
// previous board carry over: a critical episode stays flagged until an
// administrator resolves it, regardless of what later ticks report.
func (s *SnapshotStore) ReplaceAll(ctx context.Context, fresh []PatientSnapshot) {
	next := make(map[types.ID]PatientSnapshot, len(fresh))

	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, snap := range fresh {
		if prev, ok := s.snapshots[snap.PatientID]; ok && prev.IsEmergency {
			// Keep the latch, the original onset time, and the cause of
			// the episode.
			snap.IsEmergency = true
			snap.EmergencyType = prev.EmergencyType
			snap.EmergencySince = prev.EmergencySince
		}

		if snap.IsEmergency {
			active++
			if prev, ok := s.snapshots[snap.PatientID]; !ok || !prev.IsEmergency {
				s.publishLocked(ctx, events.NewEvent(events.TypeEmergencyRaised, "monitor",
					snap.PatientID, map[string]any{
						"risk_level":     snap.RiskLevel(),
						"emergency_type": snap.EmergencyType,
					}))
			}
		}

		next[snap.PatientID] = snap
	}

	s.snapshots = next
	metrics.RecordActiveEmergencies(active)
}

// MarkEmergency latches the emergency flag for a patient immediately,
// outside the poll cycle. Used by the SOS path.
func (s *SnapshotStore) MarkEmergency(patientID types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[patientID]
	if !ok {
		snap = PatientSnapshot{PatientID: patientID, UpdatedAt: time.Now().UTC()}
	}
	if !snap.IsEmergency {
		now := time.Now().UTC()
		snap.IsEmergency = true
		snap.EmergencyType = EmergencyManualSOS
		snap.EmergencySince = &now
	}
	s.snapshots[patientID] = snap
	metrics.RecordActiveEmergencies(s.countEmergenciesLocked())
}

// ResolveEmergency clears a patient's latched emergency flag. The clear
// is manual only; the poller never does it.
func (s *SnapshotStore) ResolveEmergency(ctx context.Context, patientID types.ID, resolvedBy types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[patientID]
	if !ok {
		return errors.NotFound("patient snapshot", patientID.String())
	}
	if !snap.IsEmergency {
		return errors.Conflict("patient has no active emergency")
	}

	snap.IsEmergency = false
	snap.EmergencyType = ""
	snap.EmergencySince = nil
	snap.UpdatedAt = time.Now().UTC()
	s.snapshots[patientID] = snap

	metrics.RecordActiveEmergencies(s.countEmergenciesLocked())
	s.publishLocked(ctx, events.NewEvent(events.TypeEmergencyResolved, "monitor", patientID, nil).
		WithActor(resolvedBy, "admin"))
	return nil
}

// Get returns one patient's snapshot
func (s *SnapshotStore) Get(patientID types.ID) (PatientSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[patientID]
	if !ok {
		return PatientSnapshot{}, errors.NotFound("patient snapshot", patientID.String())
	}
	return snap, nil
}

// List returns the board sorted for triage: emergencies first, then by
// descending risk level, then by patient name.
func (s *SnapshotStore) List() []PatientSnapshot {
	s.mu.RLock()
	out := make([]PatientSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsEmergency != out[j].IsEmergency {
			return out[i].IsEmergency
		}
		if out[i].RiskLevel() != out[j].RiskLevel() {
			return out[i].RiskLevel() > out[j].RiskLevel()
		}
		return out[i].PatientName < out[j].PatientName
	})
	return out
}

func (s *SnapshotStore) countEmergenciesLocked() int {
	count := 0
	for _, snap := range s.snapshots {
		if snap.IsEmergency {
			count++
		}
	}
	return count
}

func (s *SnapshotStore) publishLocked(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish monitor event",
			zap.String("event_type", event.Type), zap.Error(err))
	}
}
