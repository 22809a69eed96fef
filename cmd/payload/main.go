// Command payload runs the SDR payload controller: it opens the
// autopilot MAVLink link, starts the Mode Switcher's sample tick, and
// serves a local debug HTTP surface, following the same
// config-then-construct-then-serve shape as the teacher's cmd/server.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/config"
	"github.com/skywave-sdr/payload/internal/mavlink"
	"github.com/skywave-sdr/payload/internal/mission"
	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/server"
	"github.com/skywave-sdr/payload/internal/store"
	"github.com/skywave-sdr/payload/internal/telemetry"
	"github.com/skywave-sdr/payload/internal/workmode"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stderr, "[payload] ", log.LstdFlags|log.Lshortfile)

	st, err := store.Open(cfg.Record.SdrRecordStoreFolder, time.Duration(cfg.Record.FileCacheTimeMs)*time.Millisecond, logger)
	if err != nil {
		log.Fatalf("record store: %v", err)
	}

	calib, err := calibration.NewEngine(cfg.Calibration.CalibrationFolder, logger)
	if err != nil {
		log.Fatalf("calibration engine: %v", err)
	}

	registry := workmode.NewRegistry()
	workmode.RegisterReferenceAnalyzers(registry)

	requester := &lazyRequester{}
	tel := telemetry.New(telemetry.Config{
		SystemID:        uint8(cfg.Telemetry.GnssSystemId),
		ComponentID:     uint8(cfg.Telemetry.GnssComponentId),
		DeviceTimeout:   time.Duration(cfg.Telemetry.DeviceTimeoutMs) * time.Millisecond,
		ReqMessageRate:  cfg.Telemetry.ReqMessageRate,
		StreamRequester: requester,
		Logger:          logger,
	})

	sender := &lazySender{}
	sw := modeswitcher.New(modeswitcher.Config{
		Registry:    registry,
		Calibration: calib,
		Store:       st,
		Telemetry:   tel,
		Sender:      sender,
		Logger:      logger,
	})

	mis := mission.New(sw, tel, logger)

	transport, err := mavlink.New(mavlink.Config{
		Port:        cfg.MAVLink.DefaultPort,
		BaudRate:    cfg.MAVLink.DefaultBaudRate,
		SystemID:    uint8(cfg.MAVLink.SystemID),
		ComponentID: uint8(cfg.MAVLink.ComponentID),
		SendDelay:   time.Duration(cfg.Record.RecordSendDelayMs) * time.Millisecond,
		Logger:      logger,
	}, mavlink.Deps{
		Telemetry:      tel,
		Switcher:       sw,
		Calib:          calib,
		Mission:        mis,
		AnalyzerConfig: cfg.EnabledAnalyzer,
	})
	if err != nil {
		log.Fatalf("mavlink transport: %v", err)
	}
	requester.bind(transport)
	sender.bind(transport)

	srv := server.New(cfg, sw, calib, mis, tel)

	go handleShutdown(logger, transport)

	if err := srv.Start(); err != nil {
		log.Fatalf("debug server: %v", err)
	}
}

// handleShutdown closes the MAVLink link on SIGINT/SIGTERM, mirroring the
// teacher's signal-driven shutdown goroutine.
func handleShutdown(logger *log.Logger, transport *mavlink.Transport) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Printf("shutting down")

	if err := transport.Close(); err != nil {
		logger.Printf("mavlink transport close: %v", err)
	}

	os.Exit(0)
}
