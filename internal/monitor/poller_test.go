package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pulsecare/platform/internal/patient"
	"github.com/pulsecare/platform/internal/risk"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/logger"
	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/vitals"
)

type fakeDirectory struct {
	mu       sync.Mutex
	patients []patient.Patient
}

func (d *fakeDirectory) ListActive(ctx context.Context) ([]patient.Patient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]patient.Patient(nil), d.patients...), nil
}

type fakeVitals struct {
	mu      sync.Mutex
	records map[types.ID]vitals.VitalRecord
}

func (v *fakeVitals) LatestBySubject(ctx context.Context, subjectID types.ID) (*vitals.VitalRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, ok := v.records[subjectID]
	if !ok {
		return nil, errors.NotFound("vital record", subjectID.String())
	}
	return &record, nil
}

func (v *fakeVitals) set(id types.ID, record vitals.VitalRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records[id] = record
}

func testPatient(name string) patient.Patient {
	return patient.Patient{ID: types.NewID(), FirstName: name, LastName: "Doe", Status: patient.StatusActive}
}

func record(hr, spo2 int) vitals.VitalRecord {
	return vitals.VitalRecord{
		ID:               types.NewID(),
		HeartRate:        hr,
		BPSystolic:       120,
		BPDiastolic:      80,
		OxygenSaturation: spo2,
		BodyTemperature:  98.6,
		Source:           vitals.SourceDevice,
		RecordedAt:       time.Now().UTC(),
	}
}

func TestPollerBuildsBoard(t *testing.T) {
	healthy := testPatient("Ana")
	critical := testPatient("Marko")
	silent := testPatient("Jana")

	directory := &fakeDirectory{patients: []patient.Patient{healthy, critical, silent}}
	source := &fakeVitals{records: map[types.ID]vitals.VitalRecord{
		healthy.ID:  record(72, 98),
		critical.ID: record(72, 85),
	}}
	store := NewSnapshotStore(nil, logger.NewNop())

	poller := NewPoller(directory, source, store, 10*time.Millisecond, logger.NewNop())
	poller.Start(context.Background())
	defer poller.Stop()

	deadline := time.After(time.Second)
	for {
		if len(store.List()) == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("board never populated: %d snapshots", len(store.List()))
		case <-time.After(5 * time.Millisecond):
		}
	}

	snap, err := store.Get(critical.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if snap.RiskLevel() != risk.LevelCritical {
		t.Errorf("expected critical for SpO2 85, got %s", snap.RiskLevel())
	}
	if !snap.IsEmergency {
		t.Error("expected emergency latched for critical patient")
	}
	if snap.EmergencyType != EmergencyCriticalVitals {
		t.Errorf("expected critical-vitals emergency type, got %q", snap.EmergencyType)
	}

	snap, _ = store.Get(silent.ID)
	if snap.Assessment != nil {
		t.Error("expected no assessment for patient without vitals")
	}
	if snap.RiskLevel() != risk.LevelLow {
		t.Errorf("expected low default, got %s", snap.RiskLevel())
	}

	snap, _ = store.Get(healthy.ID)
	if snap.IsEmergency {
		t.Error("healthy patient flagged as emergency")
	}
}

func TestPollerDeviceConnectionState(t *testing.T) {
	paired := testPatient("Ana")
	paired.DeviceID = "wearable-001"
	quiet := testPatient("Marko")
	quiet.DeviceID = "wearable-002"
	unpaired := testPatient("Jana")

	fresh := record(72, 98)
	stale := record(72, 98)
	stale.RecordedAt = time.Now().UTC().Add(-time.Hour)
	manual := record(72, 98)
	manual.Source = vitals.SourceManual

	directory := &fakeDirectory{patients: []patient.Patient{paired, quiet, unpaired}}
	source := &fakeVitals{records: map[types.ID]vitals.VitalRecord{
		paired.ID:   fresh,
		quiet.ID:    stale,
		unpaired.ID: manual,
	}}
	store := NewSnapshotStore(nil, logger.NewNop())

	poller := NewPoller(directory, source, store, 10*time.Millisecond, logger.NewNop())
	poller.Start(context.Background())
	defer poller.Stop()

	waitFor(t, func() bool { return len(store.List()) == 3 })

	snap, _ := store.Get(paired.ID)
	if snap.DeviceConnectionState != DeviceConnected {
		t.Errorf("expected connected for fresh device reading, got %q", snap.DeviceConnectionState)
	}

	snap, _ = store.Get(quiet.ID)
	if snap.DeviceConnectionState != DeviceDisconnected {
		t.Errorf("expected disconnected for stale device reading, got %q", snap.DeviceConnectionState)
	}

	snap, _ = store.Get(unpaired.ID)
	if snap.DeviceConnectionState != DeviceUnpaired {
		t.Errorf("expected unpaired without a registered device, got %q", snap.DeviceConnectionState)
	}
}

func TestPollerLastWriterWins(t *testing.T) {
	p := testPatient("Ana")
	directory := &fakeDirectory{patients: []patient.Patient{p}}
	source := &fakeVitals{records: map[types.ID]vitals.VitalRecord{p.ID: record(110, 98)}}
	store := NewSnapshotStore(nil, logger.NewNop())

	poller := NewPoller(directory, source, store, 10*time.Millisecond, logger.NewNop())
	poller.Start(context.Background())
	defer poller.Stop()

	waitFor(t, func() bool {
		snap, err := store.Get(p.ID)
		return err == nil && snap.RiskLevel() == risk.LevelMedium
	})

	// A newer reading replaces the snapshot on the next tick.
	source.set(p.ID, record(72, 98))

	waitFor(t, func() bool {
		snap, err := store.Get(p.ID)
		return err == nil && snap.RiskLevel() == risk.LevelLow
	})
}

func TestPollerStopHalts(t *testing.T) {
	p := testPatient("Ana")
	directory := &fakeDirectory{patients: []patient.Patient{p}}
	source := &fakeVitals{records: map[types.ID]vitals.VitalRecord{}}
	store := NewSnapshotStore(nil, logger.NewNop())

	poller := NewPoller(directory, source, store, 5*time.Millisecond, logger.NewNop())
	poller.Start(context.Background())

	waitFor(t, func() bool { return len(store.List()) == 1 })

	poller.Stop()
	// Stop twice must not panic or hang.
	poller.Stop()

	// After stop, directory changes no longer reach the board.
	directory.mu.Lock()
	directory.patients = append(directory.patients, testPatient("Marko"))
	directory.mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	if len(store.List()) != 1 {
		t.Error("poller kept ticking after Stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition never met")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
