package workmode

import (
	"encoding/binary"
	"math"

	"github.com/skywave-sdr/payload/internal/telemetry"
)

// Entry is the fixed-layout record payload composed on every sample tick:
// record identity, telemetry fields, and mode-specific signal
// measurements (spec §4.4 ReadData). It is serialized into the page
// payload region handed to store.EncodePage.
type Entry struct {
	RecordID [16]byte
	PageIndex uint32

	GNSSLatitude  float64
	GNSSLongitude float64
	GNSSAltitudeM float32
	GNSSFixType   int32
	GNSSAccuracyM float32

	Roll  float32
	Pitch float32
	Yaw   float32

	PosLatitude  float64
	PosLongitude float64
	PosRelAltM   float32
	PosHeading   float32

	DDM      float32
	SDM      float32
	AM90     float32
	AM150    float32
	Radial   float32
	Overflow float32
}

// EntrySize is the fixed wire size of Entry, well within store.PayloadSize.
const EntrySize = 16 + 4 + (8 + 8 + 4 + 4 + 4) + (4 + 4 + 4) + (8 + 8 + 4 + 4) + (4 * 6)

// Encode serializes the entry into a fresh byte slice.
func (e Entry) Encode() []byte {
	buf := make([]byte, EntrySize)
	off := 0
	put := func(v any) {
		switch x := v.(type) {
		case [16]byte:
			copy(buf[off:], x[:])
			off += 16
		case uint32:
			binary.BigEndian.PutUint32(buf[off:], x)
			off += 4
		case int32:
			binary.BigEndian.PutUint32(buf[off:], uint32(x))
			off += 4
		case float64:
			binary.BigEndian.PutUint64(buf[off:], math.Float64bits(x))
			off += 8
		case float32:
			binary.BigEndian.PutUint32(buf[off:], math.Float32bits(x))
			off += 4
		}
	}
	put(e.RecordID)
	put(e.PageIndex)
	put(e.GNSSLatitude)
	put(e.GNSSLongitude)
	put(e.GNSSAltitudeM)
	put(e.GNSSFixType)
	put(e.GNSSAccuracyM)
	put(e.Roll)
	put(e.Pitch)
	put(e.Yaw)
	put(e.PosLatitude)
	put(e.PosLongitude)
	put(e.PosRelAltM)
	put(e.PosHeading)
	put(e.DDM)
	put(e.SDM)
	put(e.AM90)
	put(e.AM150)
	put(e.Radial)
	put(e.Overflow)
	return buf
}

// DecodeEntry parses a byte slice produced by Encode.
func DecodeEntry(buf []byte) Entry {
	var e Entry
	off := 0
	get64 := func() float64 {
		v := math.Float64frombits(binary.BigEndian.Uint64(buf[off:]))
		off += 8
		return v
	}
	get32 := func() float32 {
		v := math.Float32frombits(binary.BigEndian.Uint32(buf[off:]))
		off += 4
		return v
	}
	getU32 := func() uint32 {
		v := binary.BigEndian.Uint32(buf[off:])
		off += 4
		return v
	}
	getI32 := func() int32 { return int32(getU32()) }

	copy(e.RecordID[:], buf[off:off+16])
	off += 16
	e.PageIndex = getU32()
	e.GNSSLatitude = get64()
	e.GNSSLongitude = get64()
	e.GNSSAltitudeM = get32()
	e.GNSSFixType = getI32()
	e.GNSSAccuracyM = get32()
	e.Roll = get32()
	e.Pitch = get32()
	e.Yaw = get32()
	e.PosLatitude = get64()
	e.PosLongitude = get64()
	e.PosRelAltM = get32()
	e.PosHeading = get32()
	e.DDM = get32()
	e.SDM = get32()
	e.AM90 = get32()
	e.AM150 = get32()
	e.Radial = get32()
	e.Overflow = get32()
	return e
}

// populateTelemetry fills the GNSS/attitude/global-position fields from a
// snapshot source, zero-filling (with FixType = NoGps) when a snapshot is
// absent, per spec §4.4 step 2-3.
func populateTelemetry(e *Entry, gnss telemetry.GNSS, hasGNSS bool, att telemetry.Attitude, hasAtt bool, pos telemetry.GlobalPosition, hasPos bool) {
	if hasGNSS {
		e.GNSSLatitude = gnss.Latitude
		e.GNSSLongitude = gnss.Longitude
		e.GNSSAltitudeM = gnss.AltitudeM
		e.GNSSFixType = int32(gnss.FixType)
		e.GNSSAccuracyM = gnss.AccuracyM
	} else {
		e.GNSSFixType = int32(telemetry.FixTypeNoGps)
	}

	if hasAtt {
		e.Roll = att.RollRad
		e.Pitch = att.PitchRad
		e.Yaw = att.YawRad
	}

	if hasPos {
		e.PosLatitude = pos.Latitude
		e.PosLongitude = pos.Longitude
		e.PosRelAltM = pos.RelativeAltM
		e.PosHeading = pos.HeadingDeg
	}
}
