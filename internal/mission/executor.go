package mission

import (
	"context"
	"sync"
	"time"

	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/payloaderr"
	"github.com/skywave-sdr/payload/internal/signal"
	"github.com/skywave-sdr/payload/internal/telemetry"
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// Executor runs one mission item sequence at a time (spec §4.6). Items
// are held in an observable collection so a caller can push a new
// mission while one is not InProgress; StartMission/StopMission are
// mutually exclusive via mu.
type Executor struct {
	switcher  *modeswitcher.Switcher
	telemetry *telemetry.Source
	logger    Logger

	mu     sync.Mutex
	items  *signal.Cell[[]Item]
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	current *signal.Cell[int]
	reached *signal.Cell[int]
}

// New constructs an idle Executor.
func New(switcher *modeswitcher.Switcher, tel *telemetry.Source, logger Logger) *Executor {
	return &Executor{
		switcher:  switcher,
		telemetry: tel,
		logger:    logger,
		state:     Idle,
		items:     signal.NewCell[[]Item](),
		current:   signal.NewCell[int](),
		reached:   signal.NewCell[int](),
	}
}

// SetItems replaces the mission item collection. The executor re-reads
// items.Get() on every step rather than capturing a snapshot at
// StartMission time, so a SetItems call during InProgress reshapes the
// in-flight mission too (spec §4.6: "bound to a shared observable
// collection, refreshed on change").
func (e *Executor) SetItems(items []Item) {
	e.items.Set(items)
}

// State returns the current mission state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// WatchCurrent subscribes to "current item" notifications (seq number).
func (e *Executor) WatchCurrent() (<-chan int, func()) { return e.current.Watch() }

// WatchReached subscribes to "reached item" notifications (seq number).
func (e *Executor) WatchReached() (<-chan int, func()) { return e.reached.Watch() }

// StartMission begins executing from the item whose Seq equals index.
// Idempotent (returns nil) if a mission is already InProgress (spec
// §4.6: "Accepted"). Fails with NotFound if no such item exists.
func (e *Executor) StartMission(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == InProgress {
		return nil
	}

	items, _ := e.items.Get()
	if _, ok := findBySeq(items, index); !ok {
		return payloaderr.New(payloaderr.NotFound, "no mission item with the requested sequence number")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.state = InProgress
	done := make(chan struct{})
	e.done = done
	go e.run(ctx, done, index)
	return nil
}

// StopMission cancels the in-flight task and blocks until it exits.
// Idempotent when already Idle.
func (e *Executor) StopMission() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	e.mu.Lock()
	if e.state == InProgress {
		e.state = Idle
	}
	e.mu.Unlock()
}

func (e *Executor) run(ctx context.Context, done chan struct{}, startSeq int) {
	defer close(done)

	seq := startSeq
	for {
		items, _ := e.items.Get()
		item, ok := findBySeq(items, seq)
		if !ok {
			e.finish(Idle)
			return
		}

		e.current.Set(seq)
		cancelled, err := e.execute(ctx, item)
		if cancelled {
			return
		}
		if err != nil {
			e.logger.Printf("mission: item seq=%d (%s) failed: %v", seq, item.Command, err)
			e.finish(Error)
			return
		}
		e.reached.Set(seq)
		seq++
	}
}

func (e *Executor) finish(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// execute dispatches one item. cancelled=true means ctx was cancelled
// mid-item; the caller must not treat that as an Error-state outcome
// (spec §5: cancellation completes outstanding awaits without leaving
// partial recorded work).
func (e *Executor) execute(ctx context.Context, item Item) (cancelled bool, err error) {
	switch item.Command {
	case SetMode:
		return false, e.switcher.SetMode(item.Mode, item.Impl, item.Freq, item.RateHz, item.Ratio, item.RefPower)
	case StartRecord:
		_, err := e.switcher.StartRecord(item.Name)
		return false, err
	case StopRecord:
		return false, e.switcher.StopRecord()
	case SetRecordTag:
		_, err := e.switcher.CurrentRecordSetTag(item.TagKind, item.Name, item.TagValue)
		return false, err
	case Delay:
		return e.cancellableSleep(ctx, time.Duration(item.DelayMs)*time.Millisecond), nil
	case WaitVehicleWaypoint:
		return e.waitWaypoint(ctx, item.WaypointIndex), nil
	default:
		e.logger.Printf("mission: item seq=%d command=%v unknown, skipped", item.Seq, item.Command)
		return false, nil
	}
}

func (e *Executor) cancellableSleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}

func (e *Executor) waitWaypoint(ctx context.Context, want uint16) bool {
	if got, ok := e.telemetry.ReachedWaypointIndex(); ok && got == want {
		return false
	}
	ch, cancelWatch := e.telemetry.WatchReachedWaypoint()
	defer cancelWatch()
	for {
		select {
		case <-ctx.Done():
			return true
		case got := <-ch:
			if got == want {
				return false
			}
		}
	}
}
