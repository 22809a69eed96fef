package calibration

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/skywave-sdr/payload/internal/payloaderr"
)

// State reports whether calibration is idle (Ok) or in progress, feeding
// the CalibState field of the published heartbeat (spec §6). It has no
// value for an engine that does not support calibration.
type State int

const (
	StateOk State = iota
	StateInProgress
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// Engine owns all calibration tables, rebuilding selected interpolating
// functions under its own lock whenever SetMode is called; lookups via
// Value are read-only against the last-selected functions (spec §4.3,
// §5).
type Engine struct {
	mu       sync.RWMutex
	folder   string
	logger   Logger
	tables   []*Table
	selected []*piecewiseFunc
	progress bool
}

// NewEngine constructs an engine rooted at folder, loading any persisted
// tables found there. Tables not yet known to the engine may be added via
// WriteCalibrationTable.
func NewEngine(folder string, logger Logger) (*Engine, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("create calibration folder: %w", err)
	}
	e := &Engine{folder: folder, logger: logger}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("scan calibration folder: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".yaml" {
			continue
		}
		t, err := loadTableFile(filepath.Join(folder, de.Name()))
		if err != nil {
			logger.Printf("calibration: skipping unreadable table %s: %v", de.Name(), err)
			continue
		}
		t.Default = append([]Row(nil), t.Rows...)
		e.tables = append(e.tables, t)
	}
	e.selected = make([]*piecewiseFunc, len(e.tables))
	return e, nil
}

// currentSchemaVersion is written to every table file persisted by this
// engine. A file with a higher version than the engine understands is
// skipped rather than misread (spec §9 Open Question: calibration file
// format evolution).
const currentSchemaVersion = 1

type tableFile struct {
	SchemaVersion int   `yaml:"schemaVersion"`
	Meta          Meta  `yaml:"meta"`
	Rows          []Row `yaml:"rows"`
}

func loadTableFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, err
	}
	if tf.SchemaVersion > currentSchemaVersion {
		return nil, fmt.Errorf("table %s: schema version %d newer than supported %d", path, tf.SchemaVersion, currentSchemaVersion)
	}
	return &Table{Meta: tf.Meta, Rows: tf.Rows}, nil
}

func (e *Engine) tableFilePath(t *Table) string {
	return filepath.Join(e.folder, t.Meta.Name+".yaml")
}

func (e *Engine) persist(t *Table) error {
	data, err := yaml.Marshal(tableFile{SchemaVersion: currentSchemaVersion, Meta: t.Meta, Rows: t.Rows})
	if err != nil {
		return fmt.Errorf("marshal calibration table: %w", err)
	}
	if err := os.WriteFile(e.tableFilePath(t), data, 0o644); err != nil {
		return fmt.Errorf("write calibration table: %w", err)
	}
	return nil
}

// SetMode rebuilds, per table, the selected interpolating function using
// two-step nearest-neighbor selection: nearest frequency, then nearest
// reference power within that frequency.
func (e *Engine) SetMode(freq uint64, refPower float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, t := range e.tables {
		if len(t.Rows) == 0 {
			e.selected[i] = nil
			continue
		}
		nf, ok := nearestFrequency(t.Rows, freq)
		if !ok {
			e.selected[i] = nil
			continue
		}
		nrp, ok := nearestRefPower(t.Rows, nf, refPower)
		if !ok {
			e.selected[i] = nil
			continue
		}
		e.selected[i] = buildPiecewise(rowPoints(t.Rows, nf, nrp))
	}
}

// Value applies the selected function of tableIndex to measured. Returns
// measured unchanged if calibration is in progress, the index is
// out-of-range, or the table has no rows (identity).
func (e *Engine) Value(tableIndex int, measured float64) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.progress || tableIndex < 0 || tableIndex >= len(e.selected) {
		return measured
	}
	return e.selected[tableIndex].value(measured)
}

// StartCalibration / StopCalibration toggle the global in-progress flag
// that temporarily disables all tables' adjustment.
func (e *Engine) StartCalibration() {
	e.mu.Lock()
	e.progress = true
	e.mu.Unlock()
}

func (e *Engine) StopCalibration() {
	e.mu.Lock()
	e.progress = false
	e.mu.Unlock()
}

// State reports whether calibration is currently in progress.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.progress {
		return StateInProgress
	}
	return StateOk
}

// TableCount returns the number of registered calibration tables.
func (e *Engine) TableCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tables)
}

// TableInfo returns the metadata and row count of the table at index.
func (e *Engine) TableInfo(index int) (Meta, int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index < 0 || index >= len(e.tables) {
		return Meta{}, 0, payloaderr.New(payloaderr.NotFound, "no such calibration table")
	}
	return e.tables[index].Meta, len(e.tables[index].Rows), nil
}

// TableRow returns one row of the table at index.
func (e *Engine) TableRow(index, rowIndex int) (Row, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index < 0 || index >= len(e.tables) {
		return Row{}, payloaderr.New(payloaderr.NotFound, "no such calibration table")
	}
	t := e.tables[index]
	if rowIndex < 0 || rowIndex >= len(t.Rows) {
		return Row{}, payloaderr.New(payloaderr.NotFound, "no such row")
	}
	return t.Rows[rowIndex], nil
}

// WriteCalibrationTable replaces the rows of the table at index (or
// creates a new table if index equals TableCount) and persists it to
// disk. It does not recompute the selected functions: the table keeps its
// previous selection (none, for a new table) until the next SetMode call.
// An empty row set reverts the table to its factory default rows.
func (e *Engine) WriteCalibrationTable(index int, meta Meta, rows []Row) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var t *Table
	switch {
	case index == len(e.tables):
		t = &Table{Meta: meta}
		e.tables = append(e.tables, t)
		e.selected = append(e.selected, nil)
	case index >= 0 && index < len(e.tables):
		t = e.tables[index]
		t.Meta = meta
	default:
		return payloaderr.New(payloaderr.NotFound, "no such calibration table")
	}

	if len(rows) == 0 {
		t.Rows = append([]Row(nil), t.Default...)
	} else {
		t.Rows = append([]Row(nil), rows...)
		if t.Default == nil {
			t.Default = append([]Row(nil), rows...)
		}
	}

	return e.persist(t)
}
