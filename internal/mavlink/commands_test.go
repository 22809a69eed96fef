package mavlink

import (
	"encoding/hex"
	"testing"

	"github.com/skywave-sdr/payload/internal/payloaderr"
)

func TestPendingText_SetTakeClears(t *testing.T) {
	var p pendingText
	if got := p.take(); got != "" {
		t.Fatalf("take() on empty = %q, want empty", got)
	}

	p.set("flight-07")
	if got := p.take(); got != "flight-07" {
		t.Fatalf("take() = %q, want flight-07", got)
	}
	if got := p.take(); got != "" {
		t.Fatalf("second take() = %q, want empty (consumed)", got)
	}
}

func TestPendingText_OverwriteBeforeTake(t *testing.T) {
	var p pendingText
	p.set("first")
	p.set("second")
	if got := p.take(); got != "second" {
		t.Fatalf("take() = %q, want second", got)
	}
}

func TestParseTagID_RoundTrip(t *testing.T) {
	raw := make([]byte, 16)
	for i := range raw {
		raw[i] = byte(i)
	}
	s := hex.EncodeToString(raw)

	id, err := parseTagID(s)
	if err != nil {
		t.Fatalf("parseTagID: %v", err)
	}
	if hex.EncodeToString(id[:]) != s {
		t.Fatalf("round trip mismatch: got %x, want %s", id, s)
	}
}

func TestParseTagID_Malformed(t *testing.T) {
	cases := []string{"", "not-hex", "aabb", hex.EncodeToString(make([]byte, 15))}
	for _, c := range cases {
		if _, err := parseTagID(c); payloaderr.KindOf(err) != payloaderr.NotFound {
			t.Fatalf("parseTagID(%q): expected NotFound, got %v", c, err)
		}
	}
}
