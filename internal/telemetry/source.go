// Package telemetry implements Telemetry Source (component A): it
// subscribes to a filtered autopilot packet stream, publishes the latest
// GNSS/attitude/global-position snapshots, and tracks link health
// (spec §4.1).
package telemetry

import (
	"sync"
	"time"

	"github.com/skywave-sdr/payload/internal/signal"
)

// LinkState is the three-state link indicator driven by heartbeat
// frequency.
type LinkState int

const (
	Disconnected LinkState = iota
	Degraded
	Connected
)

func (s LinkState) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Degraded:
		return "Degraded"
	default:
		return "Disconnected"
	}
}

// StreamRequester sends a request-data-stream message to the autopilot.
// Implemented by the MAVLink transport; Source calls it on reconnect.
type StreamRequester interface {
	RequestDataStreams(systemID, componentID uint8, rateHz int) error
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// Source owns the autopilot telemetry subscription. All I/O errors are
// logged and ignored — callers read the current snapshot, which may be
// stale (spec §4.1 error semantics).
type Source struct {
	systemID    uint8
	componentID uint8
	timeout     time.Duration
	reqRateHz   int
	requester   StreamRequester
	logger      Logger

	gnss     *signal.Cell[GNSS]
	attitude *signal.Cell[Attitude]
	position *signal.Cell[GlobalPosition]
	link     *signal.Cell[LinkState]
	waypoint *signal.Cell[uint16]

	mu              sync.Mutex
	lastHeartbeat   time.Time
	heartbeatCount  int
	windowStart     time.Time
	pendingRequest  bool
	requestInFlight bool
	nowOffset       time.Duration
}

// Config configures a new Source.
type Config struct {
	SystemID        uint8
	ComponentID     uint8
	DeviceTimeout   time.Duration
	ReqMessageRate  int
	StreamRequester StreamRequester
	Logger          Logger
}

// New constructs a Source in the Disconnected state.
func New(cfg Config) *Source {
	s := &Source{
		systemID:    cfg.SystemID,
		componentID: cfg.ComponentID,
		timeout:     cfg.DeviceTimeout,
		reqRateHz:   cfg.ReqMessageRate,
		requester:   cfg.StreamRequester,
		logger:      cfg.Logger,
		gnss:        signal.NewCell[GNSS](),
		attitude:    signal.NewCell[Attitude](),
		position:    signal.NewCell[GlobalPosition](),
		link:        signal.NewCell[LinkState](),
		waypoint:    signal.NewCell[uint16](),
	}
	s.link.Set(Disconnected)
	return s
}

// Matches reports whether a packet's (system, component) pair is the one
// this source subscribes to.
func (s *Source) Matches(systemID, componentID uint8) bool {
	return systemID == s.systemID && componentID == s.componentID
}

// GNSS returns the latest GNSS fix, if any has been received.
func (s *Source) GNSS() (GNSS, bool) { return s.gnss.Get() }

// Attitude returns the latest attitude.
func (s *Source) Attitude() (Attitude, bool) { return s.attitude.Get() }

// GlobalPosition returns the latest global position.
func (s *Source) GlobalPosition() (GlobalPosition, bool) { return s.position.Get() }

// LinkState returns the current link indicator.
func (s *Source) LinkState() LinkState {
	v, ok := s.link.Get()
	if !ok {
		return Disconnected
	}
	return v
}

// ReachedWaypointIndex returns the last mission-item-reached index, if any.
func (s *Source) ReachedWaypointIndex() (uint16, bool) { return s.waypoint.Get() }

// WatchReachedWaypoint subscribes to reached-waypoint-index updates.
func (s *Source) WatchReachedWaypoint() (<-chan uint16, func()) { return s.waypoint.Watch() }

// SetGNSS publishes a new GNSS fix.
func (s *Source) SetGNSS(v GNSS) { s.gnss.Set(v) }

// SetAttitude publishes a new attitude.
func (s *Source) SetAttitude(v Attitude) { s.attitude.Set(v) }

// SetGlobalPosition publishes a new global position.
func (s *Source) SetGlobalPosition(v GlobalPosition) { s.position.Set(v) }

// SetReachedWaypoint publishes a mission-item-reached event.
func (s *Source) SetReachedWaypoint(idx uint16) { s.waypoint.Set(idx) }

// SetTimeOffset adjusts the offset applied by Now, for time
// synchronization to GNSS UTC.
func (s *Source) SetTimeOffset(d time.Duration) {
	s.mu.Lock()
	s.nowOffset = d
	s.mu.Unlock()
}

// Now returns wall-clock time corrected by the configured offset.
func (s *Source) Now() time.Time {
	s.mu.Lock()
	off := s.nowOffset
	s.mu.Unlock()
	return time.Now().Add(off)
}

// OnHeartbeat records a heartbeat from the subscribed system, updating
// link state and firing a data-stream request on Disconnected→Connected
// transitions.
func (s *Source) OnHeartbeat() {
	s.mu.Lock()
	now := time.Now()
	prev := s.currentLinkLocked()

	if s.windowStart.IsZero() || now.Sub(s.windowStart) > time.Second {
		s.windowStart = now
		s.heartbeatCount = 0
	}
	s.heartbeatCount++
	s.lastHeartbeat = now

	next := s.computeLinkLocked(now)
	pending := prev == Disconnected && next != Disconnected
	if pending {
		s.pendingRequest = true
	}
	doRequest := pending && s.pendingRequest && !s.requestInFlight
	if doRequest {
		s.requestInFlight = true
		s.pendingRequest = false
	}
	s.mu.Unlock()

	s.link.Set(next)

	if doRequest {
		s.fireStreamRequest()
	}
}

// Tick re-evaluates link state against wall-clock time, in case
// heartbeats have stopped arriving entirely; callers should invoke this
// periodically (e.g. from the same scheduler driving the sample tick).
func (s *Source) Tick() {
	s.mu.Lock()
	next := s.computeLinkLocked(time.Now())
	s.mu.Unlock()
	s.link.Set(next)
}

func (s *Source) currentLinkLocked() LinkState {
	return s.computeLinkLocked(time.Now())
}

func (s *Source) computeLinkLocked(now time.Time) LinkState {
	if s.lastHeartbeat.IsZero() || now.Sub(s.lastHeartbeat) > s.timeout {
		return Disconnected
	}
	expected := s.reqRateHz
	if expected <= 0 {
		expected = 1
	}
	if s.heartbeatCount < expected/2 && s.heartbeatCount > 0 {
		return Degraded
	}
	return Connected
}

func (s *Source) fireStreamRequest() {
	err := s.requester.RequestDataStreams(s.systemID, s.componentID, s.reqRateHz)
	s.mu.Lock()
	s.requestInFlight = false
	s.mu.Unlock()
	if err != nil {
		s.logger.Printf("telemetry: data-stream request failed, retrying in 5ms: %v", err)
		time.AfterFunc(5*time.Millisecond, func() {
			s.mu.Lock()
			already := s.requestInFlight
			if !already {
				s.requestInFlight = true
			}
			s.mu.Unlock()
			if already {
				return
			}
			if err := s.requester.RequestDataStreams(s.systemID, s.componentID, s.reqRateHz); err != nil {
				s.logger.Printf("telemetry: data-stream retry failed: %v", err)
			}
			s.mu.Lock()
			s.requestInFlight = false
			s.mu.Unlock()
		})
	}
}
