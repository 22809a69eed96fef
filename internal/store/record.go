package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// MetadataSchemaVersion is the current on-disk metadata.json schema. Absent
// (pre-existing) metadata is treated as version 1, per the Open Question
// in spec §9 about unversioned metadata.
const MetadataSchemaVersion = 1

// RecordId is a 128-bit opaque record identifier.
type RecordId [16]byte

// NewRecordId draws a fresh random identifier.
func NewRecordId() (RecordId, error) {
	var id RecordId
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generate record id: %w", err)
	}
	return id, nil
}

// String renders the id as a dashed hex string, the directory-name format
// used on disk (§6: "subdirectory name = record id (hex, dashed)").
func (id RecordId) String() string {
	h := hex.EncodeToString(id[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
}

// ParseRecordId parses the dashed hex form back into a RecordId.
func ParseRecordId(s string) (RecordId, error) {
	var id RecordId
	h := make([]byte, 0, 32)
	for _, r := range s {
		if r == '-' {
			continue
		}
		h = append(h, byte(r))
	}
	if len(h) != 32 {
		return id, fmt.Errorf("invalid record id %q", s)
	}
	decoded, err := hex.DecodeString(string(h))
	if err != nil {
		return id, fmt.Errorf("invalid record id %q: %w", s, err)
	}
	copy(id[:], decoded)
	return id, nil
}

// Metadata is the persisted, JSON-encoded description of a record (§6:
// metadata.json). Mode is fixed at creation (§3 invariant).
type Metadata struct {
	SchemaVersion int     `json:"SchemaVersion"`
	Name          string  `json:"Name"`
	Mode          string  `json:"Mode"`
	Frequency     uint64  `json:"Frequency"`
	CreatedUnixUs int64   `json:"CreatedUnixUs"`
	DurationSec   float64 `json:"DurationSec"`
	DataCount     uint32  `json:"DataCount"`
	Tags          []Tag   `json:"Tags"`
}

// withDefaultSchema backfills SchemaVersion on metadata loaded from a
// pre-versioning file.
func (m *Metadata) withDefaultSchema() {
	if m.SchemaVersion == 0 {
		m.SchemaVersion = 1
	}
}
