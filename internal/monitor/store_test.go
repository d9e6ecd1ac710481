package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/pulsecare/platform/internal/risk"
	"github.com/pulsecare/platform/internal/shared/logger"
	"github.com/pulsecare/platform/internal/shared/types"
)

func snapshot(id types.ID, level risk.Level, emergency bool) PatientSnapshot {
	assessment := risk.RiskAssessment{RiskLevel: level, Source: risk.SourceRuleEngine}
	snap := PatientSnapshot{
		PatientID:   id,
		PatientName: "Test Patient",
		Assessment:  &assessment,
		UpdatedAt:   time.Now().UTC(),
	}
	if emergency {
		now := time.Now().UTC()
		snap.IsEmergency = true
		snap.EmergencyType = EmergencyCriticalVitals
		snap.EmergencySince = &now
	}
	return snap
}

func TestReplaceAllInstallsBoard(t *testing.T) {
	store := NewSnapshotStore(nil, logger.NewNop())
	a, b := types.NewID(), types.NewID()

	store.ReplaceAll(context.Background(), []PatientSnapshot{
		snapshot(a, risk.LevelLow, false),
		snapshot(b, risk.LevelHigh, false),
	})

	if len(store.List()) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(store.List()))
	}

	// A patient dropped from the next build disappears.
	store.ReplaceAll(context.Background(), []PatientSnapshot{
		snapshot(a, risk.LevelLow, false),
	})
	if _, err := store.Get(b); err == nil {
		t.Error("expected removed patient to be gone")
	}
}

func TestEmergencyLatchSurvivesNormalReadings(t *testing.T) {
	store := NewSnapshotStore(nil, logger.NewNop())
	id := types.NewID()

	store.ReplaceAll(context.Background(), []PatientSnapshot{
		snapshot(id, risk.LevelCritical, true),
	})

	first, _ := store.Get(id)
	if !first.IsEmergency || first.EmergencySince == nil {
		t.Fatal("expected latched emergency")
	}
	onset := *first.EmergencySince

	// Vitals bounce back; the latch and the onset time must hold.
	store.ReplaceAll(context.Background(), []PatientSnapshot{
		snapshot(id, risk.LevelLow, false),
	})

	snap, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !snap.IsEmergency {
		t.Error("emergency latch cleared by a normal reading")
	}
	if snap.EmergencyType != EmergencyCriticalVitals {
		t.Errorf("emergency type not preserved, got %q", snap.EmergencyType)
	}
	if snap.EmergencySince == nil || !snap.EmergencySince.Equal(onset) {
		t.Error("emergency onset time not preserved")
	}
	if snap.RiskLevel() != risk.LevelLow {
		t.Errorf("expected current risk level shown, got %s", snap.RiskLevel())
	}
}

func TestResolveEmergency(t *testing.T) {
	store := NewSnapshotStore(nil, logger.NewNop())
	id := types.NewID()
	admin := types.NewID()

	store.ReplaceAll(context.Background(), []PatientSnapshot{
		snapshot(id, risk.LevelCritical, true),
	})

	if err := store.ResolveEmergency(context.Background(), id, admin); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	snap, _ := store.Get(id)
	if snap.IsEmergency {
		t.Error("emergency still latched after resolve")
	}
	if snap.EmergencyType != "" {
		t.Errorf("emergency type not cleared after resolve, got %q", snap.EmergencyType)
	}

	// Resolving again is a conflict, not a silent no-op.
	if err := store.ResolveEmergency(context.Background(), id, admin); err == nil {
		t.Error("expected error resolving a patient with no active emergency")
	}

	// After resolve, a fresh critical reading latches again.
	store.ReplaceAll(context.Background(), []PatientSnapshot{
		snapshot(id, risk.LevelCritical, true),
	})
	snap, _ = store.Get(id)
	if !snap.IsEmergency {
		t.Error("expected new emergency to latch after resolution")
	}
}

func TestResolveEmergencyUnknownPatient(t *testing.T) {
	store := NewSnapshotStore(nil, logger.NewNop())
	if err := store.ResolveEmergency(context.Background(), types.NewID(), types.NewID()); err == nil {
		t.Error("expected not-found error")
	}
}

func TestMarkEmergencyOutsidePollCycle(t *testing.T) {
	store := NewSnapshotStore(nil, logger.NewNop())
	id := types.NewID()

	store.MarkEmergency(id)

	snap, err := store.Get(id)
	if err != nil {
		t.Fatalf("expected snapshot created by mark, got %v", err)
	}
	if !snap.IsEmergency {
		t.Error("expected emergency latched")
	}
	if snap.EmergencyType != EmergencyManualSOS {
		t.Errorf("expected manual-sos emergency type, got %q", snap.EmergencyType)
	}
}

func TestManualSOSTypeSurvivesCriticalReadings(t *testing.T) {
	store := NewSnapshotStore(nil, logger.NewNop())
	id := types.NewID()

	store.MarkEmergency(id)

	// The next poll sees critical vitals; the episode keeps its cause.
	store.ReplaceAll(context.Background(), []PatientSnapshot{
		snapshot(id, risk.LevelCritical, true),
	})

	snap, _ := store.Get(id)
	if snap.EmergencyType != EmergencyManualSOS {
		t.Errorf("expected episode to keep manual-sos type, got %q", snap.EmergencyType)
	}
}

func TestListOrdersEmergenciesFirst(t *testing.T) {
	store := NewSnapshotStore(nil, logger.NewNop())
	low, high, emergency := types.NewID(), types.NewID(), types.NewID()

	store.ReplaceAll(context.Background(), []PatientSnapshot{
		snapshot(low, risk.LevelLow, false),
		snapshot(emergency, risk.LevelCritical, true),
		snapshot(high, risk.LevelHigh, false),
	})

	list := store.List()
	if list[0].PatientID != emergency {
		t.Error("expected emergency patient first")
	}
	if list[1].PatientID != high {
		t.Error("expected high-risk patient second")
	}
	if list[2].PatientID != low {
		t.Error("expected low-risk patient last")
	}
}
