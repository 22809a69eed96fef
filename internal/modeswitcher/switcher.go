// Package modeswitcher implements the Mode Switcher (component E): the
// core state machine coordinating work-mode lifecycle, the periodic
// sample tick with single-flight semantics and save/send thinning, the
// current-record lifecycle, and the MAVLink request handlers (spec §4.5).
package modeswitcher

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/payloaderr"
	"github.com/skywave-sdr/payload/internal/store"
	"github.com/skywave-sdr/payload/internal/telemetry"
	"github.com/skywave-sdr/payload/internal/workmode"
)

// State is one of the four Mode Switcher states (spec §4.5).
type State int

const (
	StateIdle State = iota
	StateActive
	StateRecording
	StateErroring
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateRecording:
		return "Recording"
	case StateErroring:
		return "Erroring"
	default:
		return "Idle"
	}
}

// Sender transmits one composed sample to the MAVLink peer. It is called
// only for samples selected by the send-thinning ratio (spec §4.5 step 4).
type Sender interface {
	Send(mode workmode.Mode, entry workmode.Entry) error
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// TableIndexer resolves which calibration table index applies to a mode.
type TableIndexer func(mode workmode.Mode) int

// Config wires a Switcher's collaborators.
type Config struct {
	Registry     *workmode.Registry
	Calibration  *calibration.Engine
	Store        *store.Store
	Telemetry    *telemetry.Source
	Sender       Sender
	TableIndexer TableIndexer
	Logger       Logger
}

// Switcher is the Mode Switcher state machine. opMu serializes
// SetMode/StartRecord/StopRecord against each other (spec §5 ordering
// guarantee 2); fieldsMu guards the fields the tick path reads, held only
// briefly (never across I/O or the Send await), per the design note that
// the single-flight busy flag — not a mutex — gates tick re-entrancy.
type Switcher struct {
	registry     *workmode.Registry
	calib        *calibration.Engine
	store        *store.Store
	telemetry    *telemetry.Source
	sender       Sender
	tableIndexer TableIndexer
	logger       Logger

	opMu sync.Mutex

	fieldsMu  sync.Mutex
	state     State
	mode      workmode.Mode
	analyzer  workmode.Analyzer
	freq      uint64
	refPower  float32
	rate      float32
	ratio     uint32
	overflow  float32
	timer     *cooperativeTicker
	writer    *store.Writer
	recordID  *store.RecordId
	recordAt  time.Time

	busy      atomic.Bool
	sampleSeq atomic.Uint64
	skipped   atomic.Uint64
	errored   atomic.Uint64
	completed atomic.Uint64

	ring latencyRing
}

// New constructs a Switcher in the Idle state.
func New(cfg Config) *Switcher {
	indexer := cfg.TableIndexer
	if indexer == nil {
		indexer = func(m workmode.Mode) int { return int(m) - 1 }
	}
	return &Switcher{
		registry:     cfg.Registry,
		calib:        cfg.Calibration,
		store:        cfg.Store,
		telemetry:    cfg.Telemetry,
		sender:       cfg.Sender,
		tableIndexer: indexer,
		logger:       cfg.Logger,
		state:        StateIdle,
		mode:         workmode.Idle,
		refPower:     float32(math.NaN()),
		overflow:     float32(math.NaN()),
	}
}

// State returns the current state.
func (s *Switcher) State() State {
	s.fieldsMu.Lock()
	defer s.fieldsMu.Unlock()
	return s.state
}

// Mode returns the current work mode.
func (s *Switcher) Mode() workmode.Mode {
	s.fieldsMu.Lock()
	defer s.fieldsMu.Unlock()
	return s.mode
}

// SetMode transitions the switcher to mode, per the transition table of
// spec §4.5. SetMode(Idle) from Idle is a no-op. Any error during
// transition resets the switcher to Idle and publishes RefPower and
// SignalOverflow as NaN.
func (s *Switcher) SetMode(mode workmode.Mode, impl string, freq uint64, rateHz float32, ratio uint32, refPower float32) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.fieldsMu.Lock()
	curState := s.state
	curMode := s.mode
	s.fieldsMu.Unlock()

	if mode == workmode.Idle && curMode == workmode.Idle {
		return nil
	}

	if curState == StateRecording {
		if err := s.stopRecordNoLock(); err != nil {
			s.logger.Printf("modeswitcher: implicit StopRecord during SetMode failed: %v", err)
		}
	}

	s.fieldsMu.Lock()
	oldTimer := s.timer
	s.timer = nil
	s.fieldsMu.Unlock()
	if oldTimer != nil {
		oldTimer.Stop()
	}

	s.fieldsMu.Lock()
	oldAnalyzer := s.analyzer
	s.fieldsMu.Unlock()
	if oldAnalyzer != nil {
		oldAnalyzer.Close()
	}

	if mode == workmode.Idle {
		s.fieldsMu.Lock()
		s.mode = workmode.Idle
		s.analyzer = nil
		s.state = StateIdle
		s.fieldsMu.Unlock()
		return nil
	}

	analyzer, err := s.registry.Build(mode, impl, freq, refPower)
	if err != nil {
		s.resetToIdle()
		return err
	}

	s.calib.SetMode(freq, float64(refPower))
	ratio = clampRatio(ratio)
	period := clampPeriod(rateHz)

	s.fieldsMu.Lock()
	s.mode = mode
	s.analyzer = analyzer
	s.freq = freq
	s.refPower = refPower
	s.rate = rateHz
	s.ratio = ratio
	s.state = StateActive
	s.fieldsMu.Unlock()

	s.timer = startTicker(period, s.tick)
	return nil
}

// resetToIdle is the error-path fallback of spec §4.5: "error in
// transition -> reset to Idle; publish RefPower=NaN, SignalOverflow=NaN".
func (s *Switcher) resetToIdle() {
	s.fieldsMu.Lock()
	s.state = StateIdle
	s.mode = workmode.Idle
	s.analyzer = nil
	s.refPower = float32(math.NaN())
	s.overflow = float32(math.NaN())
	s.fieldsMu.Unlock()
}

// StartRecord allocates a new record and opens it for writing. Denied
// when the current mode is Idle (spec §6).
func (s *Switcher) StartRecord(name string) (store.RecordId, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startRecordNoLock(name)
}

func (s *Switcher) startRecordNoLock(name string) (store.RecordId, error) {
	s.fieldsMu.Lock()
	mode := s.mode
	state := s.state
	freq := s.freq
	s.fieldsMu.Unlock()

	if mode == workmode.Idle || state == StateIdle {
		return store.RecordId{}, payloaderr.New(payloaderr.Denied, "cannot start record while mode is Idle")
	}

	id, err := store.NewRecordId()
	if err != nil {
		return store.RecordId{}, err
	}
	w, err := s.store.CreateFile(id, name, mode.String(), freq)
	if err != nil {
		return store.RecordId{}, err
	}

	s.fieldsMu.Lock()
	s.writer = w
	s.recordID = &id
	s.recordAt = time.Now()
	s.state = StateRecording
	s.fieldsMu.Unlock()

	return id, nil
}

// StopRecord closes the current record, finalizing its metadata.
// Idempotent when no record is open.
func (s *Switcher) StopRecord() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopRecordNoLock()
}

// stopRecordNoLock implements the Open Question fix from spec §9: it
// clears the current writer so no later tick can pick it up, then awaits
// the single-flight busy flag clearing before disposing of the writer,
// instead of racing a captured writer reference against an in-flight
// tick.
func (s *Switcher) stopRecordNoLock() error {
	s.fieldsMu.Lock()
	w := s.writer
	if w == nil {
		s.fieldsMu.Unlock()
		return nil
	}
	s.writer = nil
	s.recordID = nil
	if s.state == StateRecording {
		s.state = StateActive
	}
	s.fieldsMu.Unlock()

	s.awaitTickIdle()
	return w.Close()
}

func (s *Switcher) awaitTickIdle() {
	for s.busy.Load() {
		time.Sleep(100 * time.Microsecond)
	}
}

// CurrentRecordSetTag tags the current open record. Denied when no
// record is open (spec §6).
func (s *Switcher) CurrentRecordSetTag(kind store.TagKind, name string, value any) (store.TagId, error) {
	s.fieldsMu.Lock()
	w := s.writer
	s.fieldsMu.Unlock()
	if w == nil {
		return store.TagId{}, payloaderr.New(payloaderr.Denied, "no record is currently open")
	}
	return w.WriteTag(kind, name, value)
}

// CurrentRecordId returns the id of the record currently being written,
// if any.
func (s *Switcher) CurrentRecordId() (store.RecordId, bool) {
	s.fieldsMu.Lock()
	defer s.fieldsMu.Unlock()
	if s.recordID == nil {
		return store.RecordId{}, false
	}
	return *s.recordID, true
}

// Counters is a snapshot of tick accounting (spec §8's Skipped+Errored+
// Completed=total identity).
type Counters struct {
	Skipped   uint64
	Errored   uint64
	Completed uint64
}

// Counters returns the current tick accounting snapshot.
func (s *Switcher) Counters() Counters {
	return Counters{
		Skipped:   s.skipped.Load(),
		Errored:   s.errored.Load(),
		Completed: s.completed.Load(),
	}
}

// LatencySnapshot returns the 100-slot tick latency ring buffer.
func (s *Switcher) LatencySnapshot() []time.Duration { return s.ring.Snapshot() }

// Published is the subset of Switcher state reported on the SDR extended
// heartbeat (spec §6). CalibState/CalibTableCount/MissionState are
// assembled by the caller from the calibration engine and mission
// executor respectively; Switcher only reports its own fields here.
type Published struct {
	CurrentMode     workmode.Mode
	SupportedModes  workmode.Flag
	RecordCount     int
	Size            int64
	CurrentRecordID store.RecordId
	HasRecord       bool
	RecordName      string
	RefPower        float32
	SignalOverflow  float32
}

// Snapshot assembles the published-state view.
func (s *Switcher) Snapshot() Published {
	s.fieldsMu.Lock()
	mode := s.mode
	refPower := s.refPower
	overflow := s.overflow
	analyzer := s.analyzer
	recID := s.recordID
	w := s.writer
	s.fieldsMu.Unlock()

	if analyzer != nil {
		overflow = analyzer.Overflow()
	}

	p := Published{
		CurrentMode:    mode,
		SupportedModes: s.registry.SupportedModesMask(),
		RecordCount:    s.store.Count(),
		Size:           s.store.Size(),
		RefPower:       refPower,
		SignalOverflow: overflow,
	}
	if recID != nil {
		p.HasRecord = true
		p.CurrentRecordID = *recID
		if w != nil {
			p.RecordName = w.Metadata().Name
		}
	}
	return p
}

// tick is the periodic sample tick of spec §4.5. It runs single-flight
// (gated by the busy flag, never a mutex, so that the awaited Send call
// never happens while holding a lock) and never propagates an error out.
func (s *Switcher) tick() {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return
	}
	defer s.busy.Store(false)

	start := time.Now()
	defer func() { s.ring.push(time.Since(start)) }()

	s.fieldsMu.Lock()
	mode := s.mode
	analyzer := s.analyzer
	writer := s.writer
	recID := s.recordID
	ratio := s.ratio
	if ratio == 0 {
		ratio = 1
	}
	s.fieldsMu.Unlock()

	if mode == workmode.Idle || analyzer == nil {
		return
	}

	idx := s.sampleSeq.Add(1) - 1

	err := s.runTick(mode, analyzer, writer, recID, idx, ratio)
	if err != nil {
		s.errored.Add(1)
		s.logger.Printf("modeswitcher: tick %d error: %v", idx, err)
		return
	}
	s.completed.Add(1)
}

func (s *Switcher) runTick(mode workmode.Mode, analyzer workmode.Analyzer, writer *store.Writer, recID *store.RecordId, idx uint64, ratio uint32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = payloaderr.New(payloaderr.Failed, "panic in sample tick")
		}
	}()

	gnss, hasGNSS := s.telemetry.GNSS()
	att, hasAtt := s.telemetry.Attitude()
	pos, hasPos := s.telemetry.GlobalPosition()

	var rid [16]byte
	if recID != nil {
		rid = *recID
	}
	tableIdx := s.tableIndexer(mode)

	entry := workmode.ComposeEntry(s.calib, tableIdx, analyzer, rid, uint32(idx), gnss, hasGNSS, att, hasAtt, pos, hasPos)

	s.fieldsMu.Lock()
	s.overflow = analyzer.Overflow()
	s.fieldsMu.Unlock()

	if idx%uint64(ratio) == 0 {
		if err := s.sender.Send(mode, entry); err != nil {
			return err
		}
	}

	if writer != nil {
		return writer.Write(uint32(idx), entry.Encode())
	}
	return nil
}
