package workmode

import (
	"testing"

	"github.com/skywave-sdr/payload/internal/payloaderr"
	"github.com/skywave-sdr/payload/internal/telemetry"
)

func TestRegistry_UnsupportedMode(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build(VOR, "reference", 1, 0)
	if payloaderr.KindOf(err) != payloaderr.Unsupported {
		t.Fatalf("expected Unsupported, got %v", err)
	}
}

func TestRegistry_SupportedModesMask(t *testing.T) {
	r := NewRegistry()
	RegisterReferenceAnalyzers(r)
	mask := r.SupportedModesMask()
	if mask&LLZ.Flag() == 0 || mask&GP.Flag() == 0 || mask&VOR.Flag() == 0 {
		t.Fatalf("mask %b missing a registered mode", mask)
	}
}

func TestComposeEntry_ZeroFillsAbsentTelemetry(t *testing.T) {
	r := NewRegistry()
	RegisterReferenceAnalyzers(r)
	a, err := r.Build(LLZ, "reference", 109500000, -40)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	e := ComposeEntry(nil, 0, a, [16]byte{1}, 3,
		telemetry.GNSS{}, false,
		telemetry.Attitude{}, false,
		telemetry.GlobalPosition{}, false,
	)

	if e.GNSSFixType != int32(telemetry.FixTypeNoGps) {
		t.Fatalf("GNSSFixType = %d, want NoGps", e.GNSSFixType)
	}
	if e.PageIndex != 3 {
		t.Fatalf("PageIndex = %d, want 3", e.PageIndex)
	}
}

func TestEntry_EncodeDecodeRoundTrip(t *testing.T) {
	e := Entry{PageIndex: 7, GNSSLatitude: 12.5, DDM: 0.01}
	e.RecordID = [16]byte{9, 8, 7}
	got := DecodeEntry(e.Encode())
	if got.PageIndex != 7 || got.GNSSLatitude != 12.5 || got.DDM != 0.01 || got.RecordID != e.RecordID {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
