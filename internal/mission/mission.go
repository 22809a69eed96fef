// Package mission implements the Mission Executor (component F): a
// single long-running task that walks a sequence of items, delegating
// each to the Mode Switcher or awaiting an external signal, and
// reporting its own progress as an observable state (spec §4.6).
package mission

import (
	"github.com/skywave-sdr/payload/internal/store"
	"github.com/skywave-sdr/payload/internal/workmode"
)

// Command is the verb of one mission Item.
type Command int

const (
	SetMode Command = iota
	StartRecord
	StopRecord
	SetRecordTag
	Delay
	WaitVehicleWaypoint
	Unknown
)

func (c Command) String() string {
	switch c {
	case SetMode:
		return "SetMode"
	case StartRecord:
		return "StartRecord"
	case StopRecord:
		return "StopRecord"
	case SetRecordTag:
		return "SetRecordTag"
	case Delay:
		return "Delay"
	case WaitVehicleWaypoint:
		return "WaitVehicleWaypoint"
	default:
		return "Unknown"
	}
}

// Item is one step of a mission. After an item completes the executor
// looks up the next item by Seq == currentSeq+1 (spec §4.6); when there
// is none the mission finishes, so a gap in the Seq numbers ends the
// mission at that point.
type Item struct {
	Seq     int
	Command Command

	// SetMode
	Mode     workmode.Mode
	Impl     string
	Freq     uint64
	RateHz   float32
	Ratio    uint32
	RefPower float32

	// StartRecord
	Name string

	// SetRecordTag
	TagKind  store.TagKind
	TagValue any

	// Delay, in milliseconds
	DelayMs int

	// WaitVehicleWaypoint
	WaypointIndex uint16
}

// State is the mission executor's own published state (spec §6's
// MissionState).
type State int

const (
	Idle State = iota
	InProgress
	Error
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "InProgress"
	case Error:
		return "Error"
	default:
		return "Idle"
	}
}

func findBySeq(items []Item, seq int) (Item, bool) {
	for _, it := range items {
		if it.Seq == seq {
			return it, true
		}
	}
	return Item{}, false
}
