package server

import (
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/config"
	"github.com/skywave-sdr/payload/internal/mission"
	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/telemetry"
)

// Dependencies holds the shared components the debug HTTP surface reports
// on; main constructs each of these once and wires the same instances
// into the MAVLink transport.
type Dependencies struct {
	Config      *config.Config
	Logger      *log.Logger
	Switcher    *modeswitcher.Switcher
	Calibration *calibration.Engine
	Mission     *mission.Executor
	Telemetry   *telemetry.Source
	Registry    *prometheus.Registry
	Metrics     *Metrics
}

// NewDependencies builds Dependencies around already-constructed
// components; Server never constructs its own component graph.
func NewDependencies(cfg *config.Config, sw *modeswitcher.Switcher, calib *calibration.Engine, mis *mission.Executor, tel *telemetry.Source) *Dependencies {
	logger := log.New(os.Stderr, "[payload] ", log.LstdFlags|log.Lshortfile)
	reg := prometheus.NewRegistry()

	return &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Switcher:    sw,
		Calibration: calib,
		Mission:     mis,
		Telemetry:   tel,
		Registry:    reg,
		Metrics:     NewMetrics(reg),
	}
}
