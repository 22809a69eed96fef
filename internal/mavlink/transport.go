// Package mavlink is the payload controller's MAVLink transport: a
// gomavlib node that ingests autopilot telemetry, answers the command
// surface of spec §6, and publishes the payload's own extended
// heartbeat. Every other component only ever sees the narrow collaborator
// interfaces it declares (telemetry.StreamRequester, modeswitcher.Sender,
// modeswitcher.ResponseSink); Transport is the one concrete adapter that
// implements all three against a real link.
package mavlink

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/mission"
	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/telemetry"
)

// Config configures the serial endpoint and the payload's own MAVLink
// identity.
type Config struct {
	Port        string
	BaudRate    int
	SystemID    uint8
	ComponentID uint8
	// SendDelay paces inter-item delivery on paginated list responses
	// (spec §6 RecordSendDelayMs).
	SendDelay time.Duration
	Logger    *log.Logger
}

// Transport owns the gomavlib node and routes inbound frames to the
// telemetry source and the command dispatcher, and routes outbound
// samples/responses/heartbeats back onto the link.
type Transport struct {
	node   *gomavlib.Node
	cfg    Config
	logger *log.Logger

	telemetry *telemetry.Source
	switcher  *modeswitcher.Switcher
	calib     *calibration.Engine
	mission   *mission.Executor

	analyzerConfig func(mode string) string
	pending        pendingText
	encapSeq       atomic.Uint32

	mu        sync.RWMutex
	gcsSysID  uint8
	gcsCompID uint8

	stop chan struct{}
	done chan struct{}
}

// Deps wires Transport's collaborators, constructed once by main and
// passed in so Transport never reaches for globals. AnalyzerConfig
// resolves the configured analyzer implementation name for a mode
// (config.Config.EnabledAnalyzer) since SetMode's wire form carries no
// string argument.
type Deps struct {
	Telemetry      *telemetry.Source
	Switcher       *modeswitcher.Switcher
	Calib          *calibration.Engine
	Mission        *mission.Executor
	AnalyzerConfig func(mode string) string
}

// New opens the serial link and starts the listener, the outbound
// heartbeat ticker, and the command surface.
func New(cfg Config, deps Deps) (*Transport, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointSerial{
				Device: cfg.Port,
				Baud:   cfg.BaudRate,
			},
		},
		Dialect:        common.Dialect,
		OutVersion:     gomavlib.V2,
		OutSystemID:    cfg.SystemID,
		OutComponentID: cfg.ComponentID,
	})
	if err != nil {
		return nil, err
	}

	t := &Transport{
		node:           node,
		cfg:            cfg,
		logger:         cfg.Logger,
		telemetry:      deps.Telemetry,
		switcher:       deps.Switcher,
		calib:          deps.Calib,
		mission:        deps.Mission,
		analyzerConfig: deps.AnalyzerConfig,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	go t.listen()
	go t.publishHeartbeat()

	return t, nil
}

// Close stops the heartbeat ticker and the underlying node.
func (t *Transport) Close() error {
	close(t.stop)
	select {
	case <-t.done:
	case <-time.After(2 * time.Second):
		t.logger.Printf("mavlink: heartbeat ticker stop timed out")
	}
	t.node.Close()
	return nil
}

func (t *Transport) listen() {
	for evt := range t.node.Events() {
		frm, ok := evt.(*gomavlib.EventFrame)
		if !ok {
			continue
		}
		t.handleMessage(frm.Message(), frm.SystemID(), frm.ComponentID())
	}
}

func (t *Transport) handleMessage(msg message.Message, sysID, compID uint8) {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		if t.telemetry.Matches(sysID, compID) {
			t.telemetry.OnHeartbeat()
		}
	case *common.MessageGlobalPositionInt:
		t.handleGlobalPosition(m)
	case *common.MessageAttitude:
		t.handleAttitude(m)
	case *common.MessageGpsRawInt:
		t.handleGpsRaw(m)
	case *common.MessageMissionItemReached:
		t.telemetry.SetReachedWaypoint(uint16(m.Seq))
	case *common.MessageCommandLong:
		t.rememberGCS(sysID, compID)
		t.handleCommandLong(m)
	case *common.MessageStatustext:
		t.pending.set(m.Text)
		t.logger.Printf("mavlink: remote status[%d]: %s", m.Severity, m.Text)
	}
}

func (t *Transport) handleGlobalPosition(m *common.MessageGlobalPositionInt) {
	t.telemetry.SetGlobalPosition(telemetry.GlobalPosition{
		Latitude:     float64(m.Lat) / 1e7,
		Longitude:    float64(m.Lon) / 1e7,
		RelativeAltM: float32(m.RelativeAlt) / 1000,
		HeadingDeg:   float32(m.Hdg) / 100,
	})
}

func (t *Transport) handleAttitude(m *common.MessageAttitude) {
	t.telemetry.SetAttitude(telemetry.Attitude{
		RollRad:  m.Roll,
		PitchRad: m.Pitch,
		YawRad:   m.Yaw,
	})
}

func (t *Transport) handleGpsRaw(m *common.MessageGpsRawInt) {
	fix := telemetry.FixTypeNoFix
	switch {
	case m.FixType >= 3:
		fix = telemetry.FixType3D
	case m.FixType == 2:
		fix = telemetry.FixType2D
	case m.FixType == 0:
		fix = telemetry.FixTypeNoGps
	}
	t.telemetry.SetGNSS(telemetry.GNSS{
		Latitude:  float64(m.Lat) / 1e7,
		Longitude: float64(m.Lon) / 1e7,
		AltitudeM: float32(m.Alt) / 1000,
		FixType:   fix,
		AccuracyM: float32(m.Eph) / 100,
	})
}

// RequestDataStreams implements telemetry.StreamRequester by asking the
// autopilot for the full data-stream set at rateHz, mirroring the
// ground-station request the teacher issued on connect.
func (t *Transport) RequestDataStreams(systemID, componentID uint8, rateHz int) error {
	return t.node.WriteMessageAll(&common.MessageRequestDataStream{
		TargetSystem:    systemID,
		TargetComponent: componentID,
		ReqStreamId:     uint8(common.MAV_DATA_STREAM_ALL),
		ReqMessageRate:  uint16(rateHz),
		StartStop:       1,
	})
}

// rememberGCS records the (system, component) of the most recent command
// sender so pagination/ACK responses can be addressed back to it —
// there is exactly one ground-station peer at a time in this design.
func (t *Transport) rememberGCS(sysID, compID uint8) {
	t.mu.Lock()
	t.gcsSysID = sysID
	t.gcsCompID = compID
	t.mu.Unlock()
}

func (t *Transport) gcsTarget() (uint8, uint8) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gcsSysID, t.gcsCompID
}
