package workmode

import (
	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/telemetry"
)

// Analyzer is the interface every non-Idle work mode's signal analyzer
// implements (spec §4.4). Construction doubles as Init: a Constructor
// performs whatever setup the analyzer needs and returns a ready
// Analyzer, modeling the source's "Init(...) → future" as a synchronous
// factory call — the Mode Switcher may run construction on its own
// goroutine if it must not block the state-machine mutex.
type Analyzer interface {
	// Mode reports the work mode this analyzer instance serves.
	Mode() Mode
	// Frequency reports the carrier frequency this analyzer was tuned to.
	Frequency() uint64
	// Overflow returns the latest signal-overflow reading, NaN if unknown.
	Overflow() float32
	// FillMeasurements populates e's mode-specific signal fields. Real
	// signal-processing math is out of scope (spec §1): this is a
	// collaborator interface, not an implementation of ILS/VOR DSP.
	FillMeasurements(e *Entry)
	// Close releases any resources held by the analyzer.
	Close()
}

// Constructor builds a ready Analyzer for one mode/frequency/reference
// power combination.
type Constructor func(freq uint64, refPower float32) (Analyzer, error)

// ComposeEntry builds the full record payload for one sample, following
// the five steps of spec §4.4 ReadData: record identity, telemetry
// fields (zero-filled when absent), analyzer measurements, and
// calibration lookup against the table selected for this mode.
func ComposeEntry(
	calib *calibration.Engine,
	tableIndex int,
	a Analyzer,
	recordID [16]byte,
	pageIndex uint32,
	gnss telemetry.GNSS, hasGNSS bool,
	att telemetry.Attitude, hasAtt bool,
	pos telemetry.GlobalPosition, hasPos bool,
) Entry {
	var e Entry
	e.RecordID = recordID
	e.PageIndex = pageIndex

	populateTelemetry(&e, gnss, hasGNSS, att, hasAtt, pos, hasPos)

	a.FillMeasurements(&e)

	if calib != nil {
		e.DDM = float32(calib.Value(tableIndex, float64(e.DDM)))
		e.SDM = float32(calib.Value(tableIndex, float64(e.SDM)))
		e.AM90 = float32(calib.Value(tableIndex, float64(e.AM90)))
		e.AM150 = float32(calib.Value(tableIndex, float64(e.AM150)))
		e.Radial = float32(calib.Value(tableIndex, float64(e.Radial)))
	}

	return e
}
