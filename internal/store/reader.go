package store

import (
	"os"

	"github.com/skywave-sdr/payload/internal/payloaderr"
)

// Reader is a read-only handle on a closed or in-progress record. Multiple
// Readers (or multiple callers sharing one cached Reader) may read
// concurrently — os.File.ReadAt is safe under concurrent use.
type Reader struct {
	id   RecordId
	data *os.File
	meta Metadata
}

// Read verifies the CRC of the page at pageIndex and copies its payload
// into buf, returning the number of bytes copied. Returns a
// payloaderr.Corrupt error on CRC mismatch.
func (r *Reader) Read(pageIndex uint32, buf []byte) (int, error) {
	raw := make([]byte, PageSize)
	offset := int64(pageIndex) * PageSize
	if _, err := r.data.ReadAt(raw, offset); err != nil {
		return 0, payloaderr.Wrap(payloaderr.Failed, "page read failed", err)
	}
	payload, err := DecodePage(raw)
	if err != nil {
		return 0, err
	}
	n := copy(buf, payload)
	return n, nil
}

// ReadTag returns the tag with the given id.
func (r *Reader) ReadTag(id TagId) (Tag, error) {
	for _, t := range r.meta.Tags {
		if t.Id == id {
			return t, nil
		}
	}
	return Tag{}, payloaderr.New(payloaderr.NotFound, "no such tag")
}

// ItemCount returns how many data pages are available starting at skip,
// clamped to the record's total page count and the requested count.
func (r *Reader) ItemCount(skip, count int) int {
	total := int(r.meta.DataCount)
	if skip >= total {
		return 0
	}
	avail := total - skip
	if count < avail {
		return count
	}
	return avail
}

// GetTagIds returns up to count tag ids starting at skip, in insertion
// order, clamped to the number of tags present.
func (r *Reader) GetTagIds(skip, count int) []TagId {
	total := len(r.meta.Tags)
	if skip >= total {
		return nil
	}
	end := skip + count
	if end > total {
		end = total
	}
	out := make([]TagId, 0, end-skip)
	for _, t := range r.meta.Tags[skip:end] {
		out = append(out, t.Id)
	}
	return out
}

// ReadMetadata returns a copy of the record's persisted metadata.
func (r *Reader) ReadMetadata() Metadata {
	return r.meta
}

// Id returns the record id this reader was opened for.
func (r *Reader) Id() RecordId { return r.id }
