package store

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/skywave-sdr/payload/internal/payloaderr"
)

// Writer is the unique mutator for one record, returned by
// Store.CreateFile. Per-file I/O is serialized within the handle (spec
// §4.2).
type Writer struct {
	store *Store
	id    RecordId
	dir   string

	mu      sync.Mutex
	data    *os.File
	meta    Metadata
	started time.Time
	closed  bool
}

// Write performs a random-access page write: serializes payload, prefixes
// its CRC, and writes it at pageIndex*PageSize. DataCount grows to track
// the highest page index written plus one.
func (w *Writer) Write(pageIndex uint32, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return payloaderr.New(payloaderr.Denied, "writer is closed")
	}

	page, err := EncodePage(payload)
	if err != nil {
		return err
	}

	offset := int64(pageIndex) * PageSize
	priorEnd, _ := w.data.Seek(0, io.SeekEnd)
	if _, err := w.data.WriteAt(page, offset); err != nil {
		return payloaderr.Wrap(payloaderr.Failed, "page write failed", err)
	}
	newEnd := offset + PageSize
	if newEnd > priorEnd {
		w.store.addSize(newEnd - priorEnd)
	}

	if pageIndex+1 > w.meta.DataCount {
		w.meta.DataCount = pageIndex + 1
	}
	return nil
}

// WriteTag appends a new tag. A tag-id collision against an existing tag
// in this record is rejected rather than silently overwritten (spec §3
// invariant: "same name re-tagged = overwrite-denied").
func (w *Writer) WriteTag(kind TagKind, name string, value any) (TagId, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return TagId{}, payloaderr.New(payloaderr.Denied, "writer is closed")
	}

	tagID := DeriveTagId(name, w.id)
	for _, t := range w.meta.Tags {
		if t.Id == tagID {
			return TagId{}, payloaderr.New(payloaderr.Denied, "tag name already exists on this record")
		}
	}

	buf, err := EncodeTagValue(kind, value)
	if err != nil {
		return TagId{}, err
	}

	w.meta.Tags = append(w.meta.Tags, Tag{Id: tagID, Kind: kind, Name: name, Value: buf})
	if err := writeMetadataFile(w.dir, w.meta); err != nil {
		return TagId{}, err
	}
	return tagID, nil
}

// DeleteTag removes a tag by id.
func (w *Writer) DeleteTag(id TagId) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return payloaderr.New(payloaderr.Denied, "writer is closed")
	}

	for i, t := range w.meta.Tags {
		if t.Id == id {
			w.meta.Tags = append(w.meta.Tags[:i], w.meta.Tags[i+1:]...)
			return writeMetadataFile(w.dir, w.meta)
		}
	}
	return payloaderr.New(payloaderr.NotFound, "no such tag")
}

// EditMetadata applies fn to the in-memory metadata under the writer's
// lock and persists the result atomically.
func (w *Writer) EditMetadata(fn func(*Metadata)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return payloaderr.New(payloaderr.Denied, "writer is closed")
	}

	fn(&w.meta)
	return writeMetadataFile(w.dir, w.meta)
}

// Metadata returns a copy of the writer's current in-memory metadata.
func (w *Writer) Metadata() Metadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.meta
}

// Id returns the record id this writer mutates.
func (w *Writer) Id() RecordId { return w.id }

// Close finalizes metadata (duration = now - start) and releases the
// handle back to the store, allowing future writers/readers for this id.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.meta.DurationSec = time.Since(w.started).Seconds()
	err := writeMetadataFile(w.dir, w.meta)
	closeErr := w.data.Close()
	w.closed = true
	w.mu.Unlock()

	w.store.closeWriter(w.id)

	if err != nil {
		return err
	}
	return closeErr
}
