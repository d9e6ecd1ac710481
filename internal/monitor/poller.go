package monitor

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/pulsecare/platform/internal/patient"
	"github.com/pulsecare/platform/internal/risk"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/metrics"
	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/vitals"
	"go.uber.org/zap"
)

// deviceStaleAfter is how long a paired wearable may go without a
// device-sourced reading before the board shows it disconnected.
const deviceStaleAfter = 15 * time.Minute

// Directory lists the patients the board covers
type Directory interface {
	ListActive(ctx context.Context) ([]patient.Patient, error)
}

// VitalsSource supplies each patient's most recent record
type VitalsSource interface {
	LatestBySubject(ctx context.Context, subjectID types.ID) (*vitals.VitalRecord, error)
}

// Poller rebuilds the monitoring board on a fixed interval. Each tick
// reclassifies every active patient with the rule tier only; the board
// must keep refreshing when the remote analysis service is down.
type Poller struct {
	directory Directory
	source    VitalsSource
	store     *SnapshotStore
	interval  time.Duration
	logger    *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPoller creates a poller. interval must be positive.
func NewPoller(directory Directory, source VitalsSource, store *SnapshotStore, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		directory: directory,
		source:    source,
		store:     store,
		interval:  interval,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or ctx is cancelled. The
// first tick fires immediately so the board is populated at startup.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

// Stop halts the poll loop and waits for the in-flight tick to finish.
// Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Poller) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	patients, err := p.directory.ListActive(tickCtx)
	if err != nil {
		metrics.RecordMonitorTick(false)
		p.logger.Warn("monitor tick failed to list patients", zap.Error(err))
		return
	}

	snapshots := make([]PatientSnapshot, 0, len(patients))
	now := time.Now().UTC()

	for _, pat := range patients {
		snap := PatientSnapshot{
			PatientID:   pat.ID,
			PatientName: pat.FullName(),
			UpdatedAt:   now,
		}

		record, err := p.source.LatestBySubject(tickCtx, pat.ID)
		switch {
		case err == nil:
			assessment := risk.EvaluateRules(*record)
			snap.LatestVitals = record
			snap.Assessment = &assessment
			if assessment.IsCritical() {
				snap.IsEmergency = true
				snap.EmergencyType = EmergencyCriticalVitals
				snap.EmergencySince = &now
			}
		case stderrors.Is(err, errors.ErrNotFound):
			// No vitals yet; the patient still appears on the board.
		default:
			p.logger.Warn("monitor tick failed to load vitals",
				zap.String("patient_id", pat.ID.String()), zap.Error(err))
		}

		snap.DeviceConnectionState = deviceState(pat, snap.LatestVitals, now)
		snapshots = append(snapshots, snap)
	}

	p.store.ReplaceAll(tickCtx, snapshots)
	metrics.RecordMonitorTick(true)
}

// deviceState derives the wearable link state from the pairing record
// and the freshness of the latest device-sourced reading.
func deviceState(pat patient.Patient, latest *vitals.VitalRecord, now time.Time) ConnectionState {
	if pat.DeviceID == "" {
		return DeviceUnpaired
	}
	if latest != nil && latest.Source == vitals.SourceDevice && now.Sub(latest.RecordedAt) <= deviceStaleAfter {
		return DeviceConnected
	}
	return DeviceDisconnected
}
