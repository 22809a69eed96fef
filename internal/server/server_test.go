package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/config"
	"github.com/skywave-sdr/payload/internal/mission"
	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/store"
	"github.com/skywave-sdr/payload/internal/telemetry"
	"github.com/skywave-sdr/payload/internal/workmode"
)

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

type fakeRequester struct{}

func (fakeRequester) RequestDataStreams(systemID, componentID uint8, rateHz int) error { return nil }

type discardSender struct{}

func (discardSender) Send(mode workmode.Mode, entry workmode.Entry) error { return nil }

func newTestServer(t *testing.T) *Server {
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
	sw := modeswitcher.New(modeswitcher.Config{
		Registry:    reg,
		Calibration: calib,
		Store:       st,
		Telemetry:   tel,
		Sender:      discardSender{},
		Logger:      discardLogger{},
	})
	mis := mission.New(sw, tel, discardLogger{})

	cfg := config.Default()
	return New(cfg, sw, calib, mis, tel)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.buildHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t)
	if err := s.Dependencies().Switcher.SetMode(workmode.LLZ, "reference", 109500000, 20, 1, -40); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.buildHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got statusView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CurrentMode != "LLZ" {
		t.Fatalf("current_mode = %q, want LLZ", got.CurrentMode)
	}
	if got.SwitcherState == "" {
		t.Fatalf("switcher_state is empty")
	}
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.buildHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "payload_record_count") {
		t.Fatalf("expected payload_record_count in metrics output")
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "https://operator.example")
	rec := httptest.NewRecorder()
	s.buildHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://operator.example" {
		t.Fatalf("missing CORS allow-origin header: %v", rec.Header())
	}
}
