package config

import (
	"fmt"
)

// Config holds the full runtime configuration of the payload controller,
// following the keys enumerated in spec §6.
type Config struct {
	Server      ServerConfig
	MAVLink     MAVLinkConfig
	Telemetry   TelemetryConfig
	Record      RecordConfig
	Calibration CalibrationConfig
	Logging     LoggingConfig
}

// ServerConfig configures the local operator/debug HTTP surface
// (/healthz, /status, /metrics) — the payload's only outward HTTP
// presence; the MAVLink link is the real control/telemetry surface.
type ServerConfig struct {
	Host string
	Port int
	// CORSOrigins lists the origins allowed to reach the debug surface
	// from a browser-based operator console; "*" allows any origin.
	CORSOrigins []string
}

// MAVLinkConfig configures the autopilot link endpoint and the payload's
// own MAVLink identity (distinct from the autopilot's system id).
type MAVLinkConfig struct {
	DefaultPort     string
	DefaultBaudRate int
	// SystemID/ComponentID identify the payload controller itself on the
	// link; MAV_COMP_ID_CAMERA is the closest standard component id for a
	// sensor payload riding alongside the autopilot.
	SystemID    int
	ComponentID int
}

// TelemetryConfig configures Telemetry Source (A) and the autopilot link.
type TelemetryConfig struct {
	// DeviceTimeoutMs is the autopilot link timeout to enter Disconnected.
	DeviceTimeoutMs int
	// GnssSystemId/GnssComponentId filter which (system, component) pair
	// Telemetry Source subscribes to.
	GnssSystemId    int
	GnssComponentId int
	// ReqMessageRate is the stream rate requested from the autopilot.
	ReqMessageRate int
}

// RecordConfig configures the Record Store and its MAVLink-facing pagination.
type RecordConfig struct {
	// RecordSendDelayMs paces inter-item delivery on paginated responses.
	RecordSendDelayMs int
	// SdrRecordStoreFolder is the root directory for the Record Store.
	SdrRecordStoreFolder string
	// FileCacheTimeMs is the reader-handle cache lifetime.
	FileCacheTimeMs int
	// Analyzers maps a work mode name to the set of candidate analyzer
	// implementations and whether each is enabled; exactly one entry
	// per mode is expected to be enabled (spec §4.4, §6).
	Analyzers map[string]map[string]bool
}

// CalibrationConfig configures the Calibration Engine.
type CalibrationConfig struct {
	// CalibrationFolder is the root for on-disk calibration tables.
	CalibrationFolder string
}

type LoggingConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "text"
}

// Default returns a Config populated with the defaults from spec §6.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8088,
			CORSOrigins: []string{"*"},
		},
		MAVLink: MAVLinkConfig{
			DefaultPort:     "/dev/ttyUSB0",
			DefaultBaudRate: 57600,
			SystemID:        1,
			ComponentID:     100,
		},
		Telemetry: TelemetryConfig{
			DeviceTimeoutMs: 10000,
			GnssSystemId:    1,
			GnssComponentId: 1,
			ReqMessageRate:  5,
		},
		Record: RecordConfig{
			RecordSendDelayMs:    30,
			SdrRecordStoreFolder: "records",
			FileCacheTimeMs:      5000,
			Analyzers: map[string]map[string]bool{
				"LLZ": {"reference": true},
				"GP":  {"reference": true},
				"VOR": {"reference": true},
			},
		},
		Calibration: CalibrationConfig{
			CalibrationFolder: "calibration",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Telemetry.DeviceTimeoutMs <= 0 {
		return fmt.Errorf("invalid DeviceTimeoutMs: %d", c.Telemetry.DeviceTimeoutMs)
	}

	if c.Record.RecordSendDelayMs < 0 {
		return fmt.Errorf("invalid RecordSendDelayMs: %d", c.Record.RecordSendDelayMs)
	}

	for mode, impls := range c.Record.Analyzers {
		enabled := 0
		for _, on := range impls {
			if on {
				enabled++
			}
		}
		if enabled > 1 {
			return fmt.Errorf("mode %s: more than one analyzer implementation enabled", mode)
		}
	}

	return nil
}

// ServerAddr returns the server address as host:port.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// EnabledAnalyzer returns the single enabled implementation name for mode,
// or "" if none is enabled.
func (c *Config) EnabledAnalyzer(mode string) string {
	for name, on := range c.Record.Analyzers[mode] {
		if on {
			return name
		}
	}
	return ""
}
