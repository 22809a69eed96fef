package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skywave-sdr/payload/internal/calibration"
	"github.com/skywave-sdr/payload/internal/mission"
	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/telemetry"
)

// Metrics holds the Prometheus collectors for the published-state table
// of spec §6: RefPower and SignalOverflow are GaugeVecs carrying a "mode"
// label in place of neshmi-septentrino-exporter's "station" label, the
// other fields and the tick counters are plain Gauges, and tick latency
// is a Histogram.
type Metrics struct {
	recordCount    prometheus.Gauge
	recordSize     prometheus.Gauge
	refPower       *prometheus.GaugeVec
	signalOverflow *prometheus.GaugeVec
	supportedMask  prometheus.Gauge
	calibState     prometheus.Gauge
	calibTableCnt  prometheus.Gauge
	missionState   prometheus.Gauge
	linkState      prometheus.Gauge
	tickSkipped    prometheus.Gauge
	tickErrored    prometheus.Gauge
	tickCompleted  prometheus.Gauge
	tickLatency    prometheus.Histogram
}

// NewMetrics builds and registers the collectors against reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		recordCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_record_count", Help: "Number of records currently in the store.",
		}),
		recordSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_record_store_bytes", Help: "Total size of all records in the store.",
		}),
		refPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "payload_ref_power_dbm", Help: "Configured reference power by active mode.",
		}, []string{"mode"}),
		signalOverflow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "payload_signal_overflow_ratio", Help: "Signal overflow indicator by active mode.",
		}, []string{"mode"}),
		supportedMask: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_supported_modes_mask", Help: "Bitmask of modes with a registered analyzer.",
		}),
		calibState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_calibration_state", Help: "0=Ok, 1=InProgress.",
		}),
		calibTableCnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_calibration_table_count", Help: "Number of calibration tables loaded.",
		}),
		missionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_mission_state", Help: "0=Idle, 1=InProgress, 2=Error.",
		}),
		linkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_link_state", Help: "0=Disconnected, 1=Degraded, 2=Connected.",
		}),
		tickSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_tick_skipped_total", Help: "Sample ticks skipped because the prior tick was still running.",
		}),
		tickErrored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_tick_errored_total", Help: "Sample ticks that failed.",
		}),
		tickCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payload_tick_completed_total", Help: "Sample ticks completed successfully.",
		}),
		tickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payload_tick_latency_seconds",
			Help:    "Sample tick latency, drawn from the 100-slot latency ring.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.recordCount, m.recordSize, m.refPower, m.signalOverflow,
		m.supportedMask, m.calibState, m.calibTableCnt, m.missionState, m.linkState,
		m.tickSkipped, m.tickErrored, m.tickCompleted, m.tickLatency,
	)
	return m
}

// Update refreshes every collector from the live component state. It is
// called once per /metrics scrape rather than on a background ticker, so
// gauges never lag behind an operator's request.
func (m *Metrics) Update(sw *modeswitcher.Switcher, calib *calibration.Engine, mis *mission.Executor, tel *telemetry.Source) {
	snap := sw.Snapshot()
	counters := sw.Counters()
	mode := snap.CurrentMode.String()

	m.recordCount.Set(float64(snap.RecordCount))
	m.recordSize.Set(float64(snap.Size))
	m.refPower.WithLabelValues(mode).Set(float64(snap.RefPower))
	m.signalOverflow.WithLabelValues(mode).Set(float64(snap.SignalOverflow))
	m.supportedMask.Set(float64(snap.SupportedModes))

	calibCode := 0
	if calib.State() == calibration.StateInProgress {
		calibCode = 1
	}
	m.calibState.Set(float64(calibCode))
	m.calibTableCnt.Set(float64(calib.TableCount()))

	m.missionState.Set(float64(mis.State()))
	m.linkState.Set(float64(tel.LinkState()))

	m.tickSkipped.Set(float64(counters.Skipped))
	m.tickErrored.Set(float64(counters.Errored))
	m.tickCompleted.Set(float64(counters.Completed))

	for _, d := range sw.LatencySnapshot() {
		m.tickLatency.Observe(d.Seconds())
	}
}
