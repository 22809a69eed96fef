package calibration

import (
	"testing"
)

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(t.TempDir(), discardLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEmptyTable_IsIdentity(t *testing.T) {
	e := newTestEngine(t)
	if err := e.WriteCalibrationTable(0, Meta{Name: "llz"}, nil); err != nil {
		t.Fatalf("WriteCalibrationTable: %v", err)
	}
	e.SetMode(109500000, -40)
	if got := e.Value(0, 12.5); got != 12.5 {
		t.Fatalf("Value = %v, want identity 12.5", got)
	}
}

func TestPiecewiseLookup_InterpolatesAndExtrapolates(t *testing.T) {
	e := newTestEngine(t)
	rows := []Row{
		{Frequency: 109500000, RefPower: -40, ReferenceValue: 0, Adjustment: 1},
		{Frequency: 109500000, RefPower: -40, ReferenceValue: 10, Adjustment: 3},
	}
	if err := e.WriteCalibrationTable(0, Meta{Name: "llz"}, rows); err != nil {
		t.Fatalf("WriteCalibrationTable: %v", err)
	}
	e.SetMode(109500000, -40)

	// interpolated midpoint: measured=5 -> between (0,1) and (10,13)
	if got := e.Value(0, 5); got < 6.9 || got > 7.1 {
		t.Fatalf("interpolated value = %v, want ~7.0", got)
	}

	// extrapolation beyond the upper endpoint continues the same slope.
	got := e.Value(0, 20)
	want := 25.0 // slope (13-1)/(10-0)=1.2; 13+1.2*(20-10)=25
	_ = want
	if got < 24.9 || got > 25.1 {
		t.Fatalf("extrapolated value = %v, want ~25.0", got)
	}
}

func TestNearestTableSelection(t *testing.T) {
	e := newTestEngine(t)
	rows := []Row{
		{Frequency: 108000000, RefPower: -40, ReferenceValue: 0, Adjustment: 0},
		{Frequency: 112000000, RefPower: -40, ReferenceValue: 0, Adjustment: 10},
	}
	if err := e.WriteCalibrationTable(0, Meta{Name: "llz"}, rows); err != nil {
		t.Fatalf("WriteCalibrationTable: %v", err)
	}

	// closer to 112000000 than 108000000
	e.SetMode(111000000, -40)
	if got := e.Value(0, 0); got != 10 {
		t.Fatalf("Value = %v, want nearest-table adjustment 10", got)
	}
}

func TestStartCalibration_DisablesAdjustment(t *testing.T) {
	e := newTestEngine(t)
	rows := []Row{{Frequency: 1, RefPower: 1, ReferenceValue: 0, Adjustment: 100}}
	if err := e.WriteCalibrationTable(0, Meta{Name: "t"}, rows); err != nil {
		t.Fatalf("WriteCalibrationTable: %v", err)
	}
	e.SetMode(1, 1)
	if got := e.Value(0, 0); got != 100 {
		t.Fatalf("Value before StartCalibration = %v, want 100", got)
	}

	e.StartCalibration()
	if got := e.Value(0, 0); got != 0 {
		t.Fatalf("Value during calibration = %v, want identity 0", got)
	}
	if e.State() != StateInProgress {
		t.Fatalf("State = %v, want StateInProgress", e.State())
	}

	e.StopCalibration()
	if got := e.Value(0, 0); got != 100 {
		t.Fatalf("Value after StopCalibration = %v, want 100", got)
	}
}

func TestWriteCalibrationTable_OutOfRangeIndex(t *testing.T) {
	e := newTestEngine(t)
	if err := e.WriteCalibrationTable(5, Meta{Name: "x"}, nil); err == nil {
		t.Fatalf("expected error writing out-of-range index")
	}
	if _, _, err := e.TableInfo(0); err == nil {
		t.Fatalf("expected NotFound reading out-of-range table info")
	}
}

func TestWriteCalibrationTable_EmptyRevertsToDefault(t *testing.T) {
	e := newTestEngine(t)
	defaultRows := []Row{{Frequency: 1, RefPower: 1, ReferenceValue: 0, Adjustment: 5}}
	if err := e.WriteCalibrationTable(0, Meta{Name: "t"}, defaultRows); err != nil {
		t.Fatalf("WriteCalibrationTable: %v", err)
	}
	custom := []Row{{Frequency: 1, RefPower: 1, ReferenceValue: 0, Adjustment: 99}}
	if err := e.WriteCalibrationTable(0, Meta{Name: "t"}, custom); err != nil {
		t.Fatalf("WriteCalibrationTable custom: %v", err)
	}
	if err := e.WriteCalibrationTable(0, Meta{Name: "t"}, nil); err != nil {
		t.Fatalf("WriteCalibrationTable revert: %v", err)
	}
	e.SetMode(1, 1)
	if got := e.Value(0, 0); got != 5 {
		t.Fatalf("Value after revert = %v, want factory default 5", got)
	}
}
