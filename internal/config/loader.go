package config

import (
	"log"
	"os"
	"strconv"
)

// Load loads configuration from environment variables, falling back to
// defaults for any missing values.
func Load() *Config {
	cfg := Default()

	if port := os.Getenv("PAYLOAD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if host := os.Getenv("PAYLOAD_HOST"); host != "" {
		cfg.Server.Host = host
	}

	if logLevel := os.Getenv("PAYLOAD_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if mavPort := os.Getenv("PAYLOAD_MAVLINK_PORT"); mavPort != "" {
		cfg.MAVLink.DefaultPort = mavPort
	}

	if mavBaud := os.Getenv("PAYLOAD_MAVLINK_BAUD"); mavBaud != "" {
		if b, err := strconv.Atoi(mavBaud); err == nil {
			cfg.MAVLink.DefaultBaudRate = b
		}
	}

	if folder := os.Getenv("PAYLOAD_RECORD_STORE_FOLDER"); folder != "" {
		cfg.Record.SdrRecordStoreFolder = folder
	}

	if folder := os.Getenv("PAYLOAD_CALIBRATION_FOLDER"); folder != "" {
		cfg.Calibration.CalibrationFolder = folder
	}

	if rate := os.Getenv("PAYLOAD_REQ_MESSAGE_RATE"); rate != "" {
		if r, err := strconv.Atoi(rate); err == nil {
			cfg.Telemetry.ReqMessageRate = r
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}
