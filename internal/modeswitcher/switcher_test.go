package modeswitcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/payloaderr"
	"github.com/skywave-sdr/payload/internal/store"
	"github.com/skywave-sdr/payload/internal/telemetry"
	"github.com/skywave-sdr/payload/internal/workmode"
)

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

type countingSender struct {
	sent atomic.Int64
}

func (c *countingSender) Send(mode workmode.Mode, entry workmode.Entry) error {
	c.sent.Add(1)
	return nil
}

type fakeRequester struct{}

func (fakeRequester) RequestDataStreams(systemID, componentID uint8, rateHz int) error { return nil }

func newTestSwitcher(t *testing.T, sender Sender) *Switcher {
	t.Helper()
	reg := workmode.NewRegistry()
	workmode.RegisterReferenceAnalyzers(reg)

	st, err := store.Open(t.TempDir(), 5*time.Second, discardLogger{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	calib, err := calibration.NewEngine(t.TempDir(), discardLogger{})
	if err != nil {
		t.Fatalf("calibration.NewEngine: %v", err)
	}
	tel := telemetry.New(telemetry.Config{
		SystemID: 1, ComponentID: 1,
		DeviceTimeout:   10 * time.Second,
		ReqMessageRate:  5,
		StreamRequester: fakeRequester{},
		Logger:          discardLogger{},
	})

	return New(Config{
		Registry:    reg,
		Calibration: calib,
		Store:       st,
		Telemetry:   tel,
		Sender:      sender,
		Logger:      discardLogger{},
	})
}

func TestSetMode_IdleNoOp(t *testing.T) {
	s := newTestSwitcher(t, &countingSender{})
	if err := s.SetMode(workmode.Idle, "", 0, 0, 0, 0); err != nil {
		t.Fatalf("SetMode(Idle): %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v, want Idle", s.State())
	}
}

func TestSetMode_UnsupportedImpl(t *testing.T) {
	s := newTestSwitcher(t, &countingSender{})
	err := s.SetMode(workmode.LLZ, "nonexistent", 109500000, 10, 2, -40)
	if payloaderr.KindOf(err) != payloaderr.Unsupported {
		t.Fatalf("expected Unsupported, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state after failed SetMode = %v, want Idle", s.State())
	}
}

func TestSetMode_ActivatesAndTicks(t *testing.T) {
	sender := &countingSender{}
	s := newTestSwitcher(t, sender)
	if err := s.SetMode(workmode.LLZ, "reference", 109500000, 20, 1, -40); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if s.Mode() != workmode.LLZ {
		t.Fatalf("mode = %v, want LLZ", s.Mode())
	}
	time.Sleep(300 * time.Millisecond)

	c := s.Counters()
	total := c.Skipped + c.Errored + c.Completed
	if total == 0 {
		t.Fatalf("expected some ticks attempted")
	}
	if c.Skipped+c.Errored != total-c.Completed {
		t.Fatalf("accounting identity broken: %+v", c)
	}

	if err := s.SetMode(workmode.Idle, "", 0, 0, 0, 0); err != nil {
		t.Fatalf("SetMode(Idle): %v", err)
	}
	before := s.Counters()
	time.Sleep(100 * time.Millisecond)
	after := s.Counters()
	if before != after {
		t.Fatalf("ticks continued after SetMode(Idle): before=%+v after=%+v", before, after)
	}
}

func TestStartStopRecord_DataCountMatchesTicks(t *testing.T) {
	s := newTestSwitcher(t, &countingSender{})
	if err := s.SetMode(workmode.LLZ, "reference", 109500000, 50, 2, -40); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	id, err := s.StartRecord("flight-01")
	if err != nil {
		t.Fatalf("StartRecord: %v", err)
	}

	time.Sleep(250 * time.Millisecond)

	if err := s.StopRecord(); err != nil {
		t.Fatalf("StopRecord: %v", err)
	}

	entry, ok := s.storeEntry(id)
	if !ok {
		t.Fatalf("record not found after StopRecord")
	}
	if entry.Name != "flight-01" || entry.Mode != "LLZ" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.DataCount == 0 {
		t.Fatalf("expected some pages written")
	}
	if int64(entry.DataCount)*store.PageSize != entry.SizeBytes {
		t.Fatalf("DataCount*PageSize = %d, file size = %d", int64(entry.DataCount)*store.PageSize, entry.SizeBytes)
	}
}

func TestStartRecord_DeniedInIdle(t *testing.T) {
	s := newTestSwitcher(t, &countingSender{})
	_, err := s.StartRecord("x")
	if payloaderr.KindOf(err) != payloaderr.Denied {
		t.Fatalf("expected Denied, got %v", err)
	}
}

func TestCurrentRecordSetTag(t *testing.T) {
	s := newTestSwitcher(t, &countingSender{})
	if err := s.SetMode(workmode.LLZ, "reference", 109500000, 20, 1, -40); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	id, err := s.StartRecord("tagged")
	if err != nil {
		t.Fatalf("StartRecord: %v", err)
	}
	tagID, err := s.CurrentRecordSetTag(store.TagString, "note", "glide-check")
	if err != nil {
		t.Fatalf("CurrentRecordSetTag: %v", err)
	}
	want := store.DeriveTagId("note", id)
	if tagID != want {
		t.Fatalf("tagID = %v, want %v", tagID, want)
	}
	s.StopRecord()
}

func TestConcurrentListRecords_NoDeadlock(t *testing.T) {
	s := newTestSwitcher(t, &countingSender{})
	if err := s.SetMode(workmode.LLZ, "reference", 109500000, 20, 1, -40); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if _, err := s.StartRecord("concurrent"); err != nil {
		t.Fatalf("StartRecord: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink := &captureSink{}
			s.ListRecords(context.Background(), 0, 10, sink, time.Millisecond)
		}()
	}
	wg.Wait()
	time.Sleep(100 * time.Millisecond)
	if err := s.StopRecord(); err != nil {
		t.Fatalf("StopRecord: %v", err)
	}
}

// storeEntry is a test-only helper reaching into the switcher's store.
func (s *Switcher) storeEntry(id store.RecordId) (store.Entry, bool) {
	return s.store.TryGetEntry(id)
}

type captureSink struct {
	mu      sync.Mutex
	success int
	fails   []string
	records []store.Entry
}

func (c *captureSink) Fail(kind payloaderr.Kind, statusText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fails = append(c.fails, statusText)
}
func (c *captureSink) Success(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.success = n
}
func (c *captureSink) RecordItem(e store.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, e)
}
func (c *captureSink) TagItem(t store.Tag)                   {}
func (c *captureSink) DataItem(pageIndex uint32, buf []byte) {}
