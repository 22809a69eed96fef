package store

import (
	"crypto/md5"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skywave-sdr/payload/internal/payloaderr"
)

func testLogger() *log.Logger { return log.New(testWriter{}, "", 0) }

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestCreateWriteClose_DataCountMatchesFileLength(t *testing.T) {
	s := openTestStore(t)
	id, _ := NewRecordId()

	w, err := s.CreateFile(id, "flight-01", "LLZ", 109500000)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	const n = 50
	for i := 0; i < n; i++ {
		if err := w.Write(uint32(i), []byte{byte(i)}); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entry, ok := s.TryGetEntry(id)
	if !ok {
		t.Fatalf("entry not found after close")
	}
	if entry.DataCount != n {
		t.Fatalf("DataCount = %d, want %d", entry.DataCount, n)
	}
	if entry.SizeBytes != n*PageSize {
		t.Fatalf("SizeBytes = %d, want %d", entry.SizeBytes, n*PageSize)
	}
}

func TestCreateFile_SecondWriterBusy(t *testing.T) {
	s := openTestStore(t)
	id1, _ := NewRecordId()
	id2, _ := NewRecordId()

	w1, err := s.CreateFile(id1, "a", "LLZ", 1)
	if err != nil {
		t.Fatalf("CreateFile 1: %v", err)
	}
	defer w1.Close()

	_, err = s.CreateFile(id2, "b", "LLZ", 1)
	if payloaderr.KindOf(err) != payloaderr.Busy {
		t.Fatalf("expected Busy, got %v", err)
	}
}

func TestDeleteFile_FailsWhileWriterOpen(t *testing.T) {
	s := openTestStore(t)
	id, _ := NewRecordId()
	w, err := s.CreateFile(id, "a", "LLZ", 1)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if err := s.DeleteFile(id); payloaderr.KindOf(err) != payloaderr.Busy {
		t.Fatalf("expected Busy deleting open record, got %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.DeleteFile(id); err != nil {
		t.Fatalf("DeleteFile after close: %v", err)
	}
}

func TestOpenFile_NotFoundDoesNotCreateFile(t *testing.T) {
	s := openTestStore(t)
	id, _ := NewRecordId()

	_, err := s.OpenFile(id)
	if payloaderr.KindOf(err) != payloaderr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, ok := s.TryGetEntry(id); ok {
		t.Fatalf("TryGetEntry should not find a phantom entry")
	}
}

func TestReadRoundTrip_CRCValidates(t *testing.T) {
	s := openTestStore(t)
	id, _ := NewRecordId()
	w, err := s.CreateFile(id, "rt", "GP", 329150000)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	payloads := [][]byte{{1, 2, 3}, {4, 5, 6, 7}, {9}}
	for i, p := range payloads {
		if err := w.Write(uint32(i), p); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := s.OpenFile(id)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	for i, want := range payloads {
		got := make([]byte, len(want))
		n, err := r.Read(uint32(i), got)
		if err != nil {
			t.Fatalf("Read(%d): %v", i, err)
		}
		if n != len(want) {
			t.Fatalf("Read(%d) n = %d, want %d", i, n, len(want))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("Read(%d) byte %d = %d, want %d", i, j, got[j], want[j])
			}
		}
	}
}

func TestReadCorruptPage_ReportsCorrupt(t *testing.T) {
	s := openTestStore(t)
	id, _ := NewRecordId()
	w, err := s.CreateFile(id, "corrupt", "VOR", 114000000)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := w.Write(0, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Flip a byte in the page payload region directly on disk.
	f, err := os.OpenFile(filepath.Join(s.recordDir(id), dataFile), os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open data file: %v", err)
	}
	buf := make([]byte, PageSize)
	f.ReadAt(buf, 0)
	buf[crcSize] ^= 0xFF
	f.WriteAt(buf, 0)
	f.Close()

	r, err := s.OpenFile(id)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	out := make([]byte, 3)
	_, err = r.Read(0, out)
	if payloaderr.KindOf(err) != payloaderr.Corrupt {
		t.Fatalf("expected Corrupt, got %v", err)
	}
}

func TestWriteTag_DuplicateNameRejected(t *testing.T) {
	s := openTestStore(t)
	id, _ := NewRecordId()
	w, err := s.CreateFile(id, "tagged", "LLZ", 1)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	defer w.Close()

	if _, err := w.WriteTag(TagString, "note", "glide-check"); err != nil {
		t.Fatalf("WriteTag: %v", err)
	}
	_, err = w.WriteTag(TagString, "note", "second")
	if payloaderr.KindOf(err) != payloaderr.Denied {
		t.Fatalf("expected Denied on duplicate tag name, got %v", err)
	}
}

func TestTagId_DerivationMatchesScenario(t *testing.T) {
	id, _ := NewRecordId()
	got := DeriveTagId("note", id)
	if again := DeriveTagId("note", id); got != again {
		t.Fatalf("DeriveTagId not deterministic")
	}
	want := TagId(md5.Sum([]byte("note" + strings.ToUpper(hex.EncodeToString(id[:])))))
	if got != want {
		t.Fatalf("DeriveTagId = %v, want MD5(name + uppercase hex id) = %v", got, want)
	}
}

func TestItemCount_ClampsToFileLength(t *testing.T) {
	s := openTestStore(t)
	id, _ := NewRecordId()
	w, err := s.CreateFile(id, "clamp", "LLZ", 1)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	for i := 0; i < 5; i++ {
		w.Write(uint32(i), []byte{byte(i)})
	}
	w.Close()

	r, err := s.OpenFile(id)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if n := r.ItemCount(3, 10); n != 2 {
		t.Fatalf("ItemCount(3,10) = %d, want 2", n)
	}
	if n := r.ItemCount(10, 10); n != 0 {
		t.Fatalf("ItemCount(10,10) = %d, want 0", n)
	}
}

func TestReaderCache_EvictsAfterTTL(t *testing.T) {
	s := openTestStore(t)
	id, _ := NewRecordId()
	w, _ := s.CreateFile(id, "cache", "LLZ", 1)
	w.Close()

	r1, err := s.OpenFile(id)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	r2, _ := s.OpenFile(id)
	if r1 != r2 {
		t.Fatalf("expected cached reader to be reused within TTL")
	}

	time.Sleep(80 * time.Millisecond)

	s.mu.Lock()
	_, cached := s.readers[id]
	s.mu.Unlock()
	if cached {
		t.Fatalf("expected reader to be evicted after TTL")
	}
}
