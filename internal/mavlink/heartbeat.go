package mavlink

import (
	"math"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/skywave-sdr/payload/internal/calibration"
)

const heartbeatPeriod = 1 * time.Second

// publishHeartbeat periodically announces the payload's own identity
// and the published-state fields of spec §6, mirroring the teacher's
// ground-station HEARTBEAT ticker but carrying this controller's
// extended state as a trailing burst of NAMED_VALUE_FLOAT messages
// instead of a GCS identity frame (the common dialect has no single
// message wide enough for the full Published view).
func (t *Transport) publishHeartbeat() {
	defer close(t.done)

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.publishOnce()
		}
	}
}

func (t *Transport) publishOnce() {
	snap := t.switcher.Snapshot()

	baseMode := uint8(0)
	if snap.CurrentMode != 0 {
		baseMode = uint8(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED)
	}

	err := t.node.WriteMessageAll(&common.MessageHeartbeat{
		Type:           common.MAV_TYPE_ONBOARD_CONTROLLER,
		Autopilot:      common.MAV_AUTOPILOT_INVALID,
		BaseMode:       common.MAV_MODE_FLAG(baseMode),
		CustomMode:     uint32(snap.CurrentMode),
		SystemStatus:   common.MAV_STATE_ACTIVE,
		MavlinkVersion: 3,
	})
	if err != nil {
		t.logger.Printf("mavlink: error sending payload HEARTBEAT: %v", err)
	}

	now := uint32(time.Now().UnixMilli())
	t.sendNamedFloat(now, "SUPMODES", float32(snap.SupportedModes))
	t.sendNamedFloat(now, "RECCOUNT", float32(snap.RecordCount))
	t.sendNamedFloat(now, "SIZE", float32(snap.Size))
	t.sendNamedFloat(now, "REFPOWER", snap.RefPower)
	t.sendNamedFloat(now, "OVERFLOW", snap.SignalOverflow)
	t.sendNamedFloat(now, "CALIBST", float32(t.calibStateCode()))
	t.sendNamedFloat(now, "CALIBCNT", float32(t.calib.TableCount()))
	t.sendNamedFloat(now, "MISSIONST", float32(t.missionStateCode()))

	// CurrentRecordId is a 128-bit value, too wide for NAMED_VALUE_FLOAT;
	// it travels as a STATUSTEXT instead, the same workaround pagination.go
	// uses for record names and tag names.
	if snap.HasRecord {
		t.writeStatus("RECGUID:" + snap.CurrentRecordID.String())
	}
}

func (t *Transport) calibStateCode() int {
	if t.calib.State() == calibration.StateInProgress {
		return 2
	}
	return 1
}

func (t *Transport) missionStateCode() int {
	return int(t.mission.State())
}

func (t *Transport) sendNamedFloat(timeBootMs uint32, name string, value float32) {
	if math.IsNaN(float64(value)) {
		value = 0
	}
	if err := t.node.WriteMessageAll(&common.MessageNamedValueFloat{
		TimeBootMs: timeBootMs,
		Name:       name,
		Value:      value,
	}); err != nil {
		t.logger.Printf("mavlink: error sending NAMED_VALUE_FLOAT %s: %v", name, err)
	}
}
