package mission

import (
	"testing"
	"time"

	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/payloaderr"
	"github.com/skywave-sdr/payload/internal/store"
	"github.com/skywave-sdr/payload/internal/telemetry"
	"github.com/skywave-sdr/payload/internal/workmode"
)

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

type discardSender struct{}

func (discardSender) Send(mode workmode.Mode, entry workmode.Entry) error { return nil }

type fakeRequester struct{}

func (fakeRequester) RequestDataStreams(systemID, componentID uint8, rateHz int) error { return nil }

func newTestRig(t *testing.T) (*Executor, *modeswitcher.Switcher, *telemetry.Source) {
	t.Helper()
	reg := workmode.NewRegistry()
	workmode.RegisterReferenceAnalyzers(reg)

	st, err := store.Open(t.TempDir(), 5*time.Second, discardLogger{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	calib, err := calibration.NewEngine(t.TempDir(), discardLogger{})
	if err != nil {
		t.Fatalf("calibration.NewEngine: %v", err)
	}
	tel := telemetry.New(telemetry.Config{
		SystemID: 1, ComponentID: 1,
		DeviceTimeout:   10 * time.Second,
		ReqMessageRate:  5,
		StreamRequester: fakeRequester{},
		Logger:          discardLogger{},
	})
	sw := modeswitcher.New(modeswitcher.Config{
		Registry:    reg,
		Calibration: calib,
		Store:       st,
		Telemetry:   tel,
		Sender:      discardSender{},
		Logger:      discardLogger{},
	})
	return New(sw, tel, discardLogger{}), sw, tel
}

func TestStartMission_NotFound(t *testing.T) {
	ex, _, _ := newTestRig(t)
	ex.SetItems([]Item{{Seq: 0, Command: StopRecord}})
	err := ex.StartMission(5)
	if payloaderr.KindOf(err) != payloaderr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestStartMission_IdempotentWhileInProgress(t *testing.T) {
	ex, _, _ := newTestRig(t)
	ex.SetItems([]Item{
		{Seq: 0, Command: Delay, DelayMs: 200},
	})
	if err := ex.StartMission(0); err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	if err := ex.StartMission(0); err != nil {
		t.Fatalf("second StartMission while InProgress should be a no-op, got %v", err)
	}
	ex.StopMission()
}

func TestMission_FullSequence(t *testing.T) {
	ex, sw, tel := newTestRig(t)
	ex.SetItems([]Item{
		{Seq: 0, Command: SetMode, Mode: workmode.GP, Impl: "reference", Freq: 329150000, RateHz: 50, Ratio: 1, RefPower: -30},
		{Seq: 1, Command: StartRecord, Name: "m0"},
		{Seq: 2, Command: Delay, DelayMs: 150},
		{Seq: 3, Command: WaitVehicleWaypoint, WaypointIndex: 3},
		{Seq: 4, Command: StopRecord},
	})

	if err := ex.StartMission(0); err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	if ex.State() != InProgress {
		t.Fatalf("state = %v, want InProgress", ex.State())
	}

	time.Sleep(100 * time.Millisecond)
	tel.SetReachedWaypoint(3)

	deadline := time.Now().Add(2 * time.Second)
	for ex.State() == InProgress && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ex.State() != Idle {
		t.Fatalf("state after mission completion = %v, want Idle", ex.State())
	}

	id, hasRecord := sw.CurrentRecordId()
	if hasRecord {
		t.Fatalf("expected StopRecord to have closed the record, got open id %v", id)
	}
}

func TestMission_UnsupportedSetModeTransitionsToError(t *testing.T) {
	ex, _, _ := newTestRig(t)
	ex.SetItems([]Item{
		{Seq: 0, Command: SetMode, Mode: workmode.GP, Impl: "no-such-impl"},
	})
	if err := ex.StartMission(0); err != nil {
		t.Fatalf("StartMission: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for ex.State() == InProgress && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ex.State() != Error {
		t.Fatalf("state = %v, want Error", ex.State())
	}
}

func TestMission_UnknownCommandSkipped(t *testing.T) {
	ex, _, _ := newTestRig(t)
	ex.SetItems([]Item{
		{Seq: 0, Command: Command(99)},
		{Seq: 1, Command: Delay, DelayMs: 10},
	})
	if err := ex.StartMission(0); err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for ex.State() == InProgress && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ex.State() != Idle {
		t.Fatalf("state = %v, want Idle", ex.State())
	}
}

func TestStopMission_CancelsDelay(t *testing.T) {
	ex, _, _ := newTestRig(t)
	ex.SetItems([]Item{
		{Seq: 0, Command: Delay, DelayMs: 5000},
	})
	if err := ex.StartMission(0); err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	ex.StopMission()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("StopMission took too long to cancel the delay: %v", elapsed)
	}
	if ex.State() != Idle {
		t.Fatalf("state after StopMission = %v, want Idle", ex.State())
	}
}

func TestStopMission_IdempotentWhenIdle(t *testing.T) {
	ex, _, _ := newTestRig(t)
	ex.StopMission()
	if ex.State() != Idle {
		t.Fatalf("state = %v, want Idle", ex.State())
	}
}
