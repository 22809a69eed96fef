package server

import (
	"encoding/json"
	"net/http"

	"github.com/skywave-sdr/payload/internal/calibration"
)

// statusView is the JSON shape served at /status: a flattened snapshot of
// every component the extended MAVLink heartbeat also carries, useful for
// an operator inspecting the payload over the debug HTTP surface without
// a MAVLink-capable ground station attached.
type statusView struct {
	CurrentMode       string  `json:"current_mode"`
	SupportedModes    uint32  `json:"supported_modes_mask"`
	RecordCount       int     `json:"record_count"`
	StoreSizeBytes    int64   `json:"store_size_bytes"`
	HasOpenRecord     bool    `json:"has_open_record"`
	OpenRecordName    string  `json:"open_record_name,omitempty"`
	CurrentRecordGuid string  `json:"current_record_guid,omitempty"`
	RefPower          float32 `json:"ref_power"`
	SignalOverflow    float32 `json:"signal_overflow"`
	SwitcherState     string  `json:"switcher_state"`
	TickSkipped       uint64  `json:"tick_skipped"`
	TickErrored       uint64  `json:"tick_errored"`
	TickCompleted     uint64  `json:"tick_completed"`
	CalibState        string  `json:"calibration_state"`
	CalibTableCount   int     `json:"calibration_table_count"`
	MissionState      string  `json:"mission_state"`
	LinkState         string  `json:"telemetry_link_state"`
}

func (d *Dependencies) buildStatus() statusView {
	snap := d.Switcher.Snapshot()
	counters := d.Switcher.Counters()

	calibState := "Ok"
	if d.Calibration.State() == calibration.StateInProgress {
		calibState = "InProgress"
	}

	guid := ""
	if snap.HasRecord {
		guid = snap.CurrentRecordID.String()
	}

	return statusView{
		CurrentMode:       snap.CurrentMode.String(),
		SupportedModes:    uint32(snap.SupportedModes),
		RecordCount:       snap.RecordCount,
		StoreSizeBytes:    snap.Size,
		HasOpenRecord:     snap.HasRecord,
		OpenRecordName:    snap.RecordName,
		CurrentRecordGuid: guid,
		RefPower:          snap.RefPower,
		SignalOverflow:    snap.SignalOverflow,
		SwitcherState:     d.Switcher.State().String(),
		TickSkipped:       counters.Skipped,
		TickErrored:       counters.Errored,
		TickCompleted:     counters.Completed,
		CalibState:        calibState,
		CalibTableCount:   d.Calibration.TableCount(),
		MissionState:      d.Mission.State().String(),
		LinkState:         d.Telemetry.LinkState().String(),
	}
}

// handleStatus serves a JSON snapshot of switcher/mission/calibration/
// telemetry state.
func (d *Dependencies) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.buildStatus()); err != nil {
		d.Logger.Printf("status: encode error: %v", err)
	}
}

// handleHealthz reports liveness; it never depends on link state so an
// operator can distinguish "process is up" from "autopilot is connected".
func (d *Dependencies) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
