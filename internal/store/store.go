// Package store implements the Record Store (component B): a hierarchical,
// file-backed store of records, each a JSON metadata blob plus a
// fixed-size page file, with tag CRUD and concurrent reader/single-writer
// control (spec §4.2).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/skywave-sdr/payload/internal/payloaderr"
)

const (
	metadataFile = "metadata.json"
	dataFile     = "data.bin"
)

// Entry is the summary view returned by TryGetEntry.
type Entry struct {
	Id            RecordId
	Name          string
	Mode          string
	Frequency     uint64
	CreatedUnixUs int64
	DurationSec   float64
	DataCount     uint32
	SizeBytes     int64
}

// Store is the Record Store: a single internal lock guards the
// open-handles table and metadata edits, per spec §4.2's concurrency
// invariant. Per-file I/O is serialized within one writer/reader handle.
type Store struct {
	mu       sync.Mutex
	root     string
	cacheTTL time.Duration
	logger   interface{ Printf(string, ...any) }

	writerID *RecordId
	writer   *Writer

	readers map[RecordId]*cachedReader

	order []RecordId // creation order, rebuilt from disk at Open
	count int
	size  int64
}

type cachedReader struct {
	reader *Reader
	timer  *time.Timer
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// Open opens (creating if absent) a Record Store rooted at dir, rebuilding
// its in-memory index (creation order, counters) from the on-disk layout.
func Open(dir string, cacheTTL time.Duration, logger Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record store root: %w", err)
	}
	s := &Store{
		root:     dir,
		cacheTTL: cacheTTL,
		logger:   logger,
		readers:  make(map[RecordId]*cachedReader),
	}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) rebuildIndex() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("scan record store root: %w", err)
	}

	type indexed struct {
		id      RecordId
		created int64
		size    int64
	}
	var found []indexed
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		id, err := ParseRecordId(de.Name())
		if err != nil {
			continue
		}
		meta, err := s.readMetadata(id)
		if err != nil {
			continue
		}
		sz, _ := s.dataSize(id)
		found = append(found, indexed{id: id, created: meta.CreatedUnixUs, size: sz})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].created < found[j].created })

	s.order = s.order[:0]
	s.count = 0
	s.size = 0
	for _, f := range found {
		s.order = append(s.order, f.id)
		s.count++
		s.size += f.size
	}
	return nil
}

func (s *Store) recordDir(id RecordId) string {
	return filepath.Join(s.root, id.String())
}

func (s *Store) dataSize(id RecordId) (int64, error) {
	fi, err := os.Stat(filepath.Join(s.recordDir(id), dataFile))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (s *Store) readMetadata(id RecordId) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(filepath.Join(s.recordDir(id), metadataFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	m.withDefaultSchema()
	return m, nil
}

func writeMetadataFile(dir string, m Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tmp := filepath.Join(dir, metadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, metadataFile))
}

// Count returns the number of records currently in the store.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Size returns the total byte size of all record data files.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// CreateFile reserves id, creating its on-disk directory and an empty
// data file, and returns the unique Writer mutator. Fails if id already
// exists or any writer is currently open (spec §4.2).
func (s *Store) CreateFile(id RecordId, name, mode string, freq uint64) (*Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer != nil {
		return nil, payloaderr.New(payloaderr.Busy, "a writer is already open")
	}

	dir := s.recordDir(id)
	if _, err := os.Stat(dir); err == nil {
		return nil, payloaderr.New(payloaderr.Denied, "record id already exists")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}

	meta := Metadata{
		SchemaVersion: MetadataSchemaVersion,
		Name:          name,
		Mode:          mode,
		Frequency:     freq,
		CreatedUnixUs: time.Now().UnixMicro(),
	}
	if err := writeMetadataFile(dir, meta); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, dataFile), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create data file: %w", err)
	}

	w := &Writer{
		store:   s,
		id:      id,
		dir:     dir,
		data:    f,
		meta:    meta,
		started: time.Now(),
	}
	s.writer = w
	s.writerID = &id
	s.order = append(s.order, id)
	s.count++

	return w, nil
}

// OpenFile returns a reader for id. Multiple concurrent readers are
// permitted; fails if no such record, or if a writer currently holds id.
func (s *Store) OpenFile(id RecordId) (*Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writerID != nil && *s.writerID == id {
		return nil, payloaderr.New(payloaderr.Busy, "writer is open for this record")
	}

	if cr, ok := s.readers[id]; ok {
		cr.timer.Reset(s.cacheTTL)
		return cr.reader, nil
	}

	dir := s.recordDir(id)
	if _, err := os.Stat(dir); err != nil {
		return nil, payloaderr.New(payloaderr.NotFound, "no such record")
	}
	meta, err := s.readMetadata(id)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	f, err := os.Open(filepath.Join(dir, dataFile))
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	r := &Reader{id: id, data: f, meta: meta}
	cr := &cachedReader{reader: r}
	cr.timer = time.AfterFunc(s.cacheTTL, func() { s.evictReader(id, cr) })
	s.readers[id] = cr

	return r, nil
}

func (s *Store) evictReader(id RecordId, cr *cachedReader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readers[id] != cr {
		return
	}
	delete(s.readers, id)
	cr.reader.data.Close()
}

// DeleteFile removes id's on-disk directory entirely. Fails if a writer
// for id is currently open.
func (s *Store) DeleteFile(id RecordId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writerID != nil && *s.writerID == id {
		return payloaderr.New(payloaderr.Busy, "cannot delete: writer is open for this record")
	}

	dir := s.recordDir(id)
	if _, err := os.Stat(dir); err != nil {
		return payloaderr.New(payloaderr.NotFound, "no such record")
	}

	if cr, ok := s.readers[id]; ok {
		cr.timer.Stop()
		cr.reader.data.Close()
		delete(s.readers, id)
	}

	sz, _ := s.dataSize(id)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete record dir: %w", err)
	}

	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.count--
	s.size -= sz

	return nil
}

// GetFiles returns all record ids in creation order.
func (s *Store) GetFiles() []RecordId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordId, len(s.order))
	copy(out, s.order)
	return out
}

// TryGetEntry returns the summary view of id, or false if it does not exist.
func (s *Store) TryGetEntry(id RecordId) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMetadata(id)
	if err != nil {
		return Entry{}, false
	}
	sz, _ := s.dataSize(id)
	return Entry{
		Id:            id,
		Name:          meta.Name,
		Mode:          meta.Mode,
		Frequency:     meta.Frequency,
		CreatedUnixUs: meta.CreatedUnixUs,
		DurationSec:   meta.DurationSec,
		DataCount:     meta.DataCount,
		SizeBytes:     sz,
	}, true
}

// addSize adjusts the store-wide size counter when a writer grows its file.
func (s *Store) addSize(delta int64) {
	s.mu.Lock()
	s.size += delta
	s.mu.Unlock()
}

// closeWriter clears the open-writer handle, called by Writer.Close.
func (s *Store) closeWriter(id RecordId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writerID != nil && *s.writerID == id {
		s.writerID = nil
		s.writer = nil
	}
}
