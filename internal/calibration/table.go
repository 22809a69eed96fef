// Package calibration implements the Calibration Engine (component C):
// piecewise-linear adjustment tables keyed by (frequency, reference-power),
// with nearest-table selection on mode change (spec §4.3).
package calibration

import "sort"

// Row is one calibration data point: at the given frequency and reference
// power, a measured value of ReferenceValue should be corrected to
// ReferenceValue+Adjustment.
type Row struct {
	Frequency      uint64  `yaml:"frequency"`
	RefPower       float64 `yaml:"refPower"`
	ReferenceValue float64 `yaml:"referenceValue"`
	Adjustment     float64 `yaml:"adjustment"`
}

// Meta carries the descriptive, non-row fields of a calibration table.
type Meta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Table holds one named calibration table: metadata plus an ordered set
// of rows. An empty table behaves as identity (spec §4.3 invariant).
type Table struct {
	Meta    Meta
	Rows    []Row
	Default []Row // factory row set, restored when WriteCalibrationTable is given an empty set
}

type point struct{ x, y float64 }

// piecewiseFunc is an interpolating function built from a sorted set of
// (measured, corrected) points; outside the range it extrapolates using
// the endpoint slopes.
type piecewiseFunc struct {
	points []point
}

func newIdentity() *piecewiseFunc { return nil }

func buildPiecewise(points []point) *piecewiseFunc {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].x < sorted[j].x })
	return &piecewiseFunc{points: sorted}
}

// value evaluates the piecewise function at measured, extrapolating past
// the endpoints using the slope of the nearest segment. A nil receiver is
// the identity function.
func (f *piecewiseFunc) value(measured float64) float64 {
	if f == nil || len(f.points) == 0 {
		return measured
	}
	pts := f.points
	if len(pts) == 1 {
		return pts[0].y + (measured - pts[0].x)
	}

	if measured <= pts[0].x {
		return extrapolate(pts[0], pts[1], measured)
	}
	if measured >= pts[len(pts)-1].x {
		return extrapolate(pts[len(pts)-2], pts[len(pts)-1], measured)
	}

	for i := 0; i < len(pts)-1; i++ {
		a, b := pts[i], pts[i+1]
		if measured >= a.x && measured <= b.x {
			if b.x == a.x {
				return a.y
			}
			t := (measured - a.x) / (b.x - a.x)
			return a.y + t*(b.y-a.y)
		}
	}
	return measured
}

func extrapolate(a, b point, x float64) float64 {
	if b.x == a.x {
		return a.y
	}
	slope := (b.y - a.y) / (b.x - a.x)
	return a.y + slope*(x-a.x)
}

// rowPoints selects the rows matching (freq, refPower) and converts them,
// in row order, into the points of their piecewise function;
// buildPiecewise sorts them.
func rowPoints(rows []Row, freq uint64, refPower float64) []point {
	pts := make([]point, 0, len(rows))
	for _, r := range rows {
		if r.Frequency == freq && r.RefPower == refPower {
			pts = append(pts, point{x: r.ReferenceValue, y: r.ReferenceValue + r.Adjustment})
		}
	}
	return pts
}

// nearestFrequency returns the frequency present in rows closest to target.
func nearestFrequency(rows []Row, target uint64) (uint64, bool) {
	have := false
	var best uint64
	var bestDiff uint64
	for _, r := range rows {
		diff := absDiffU64(r.Frequency, target)
		if !have || diff < bestDiff {
			best, bestDiff, have = r.Frequency, diff, true
		}
	}
	return best, have
}

// nearestRefPower returns the reference power, among rows matching freq,
// closest to target.
func nearestRefPower(rows []Row, freq uint64, target float64) (float64, bool) {
	have := false
	var best float64
	var bestDiff float64
	for _, r := range rows {
		if r.Frequency != freq {
			continue
		}
		diff := absDiffF64(r.RefPower, target)
		if !have || diff < bestDiff {
			best, bestDiff, have = r.RefPower, diff, true
		}
	}
	return best, have
}

func absDiffU64(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func absDiffF64(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
