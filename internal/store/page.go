package store

import (
	"encoding/binary"

	"github.com/skywave-sdr/payload/internal/payloaderr"
)

const (
	// PageSize is the atomic unit of the record data file (§3).
	PageSize = 256
	// crcSize is the width of the leading CRC-32/Q header.
	crcSize = 4
	// PayloadSize is the usable payload capacity of one page.
	PayloadSize = PageSize - crcSize
)

// EncodePage writes payload (at most PayloadSize bytes) into a fresh
// 256-byte page buffer prefixed with its CRC-32/Q checksum, zero-padding
// any unused tail.
func EncodePage(payload []byte) ([]byte, error) {
	if len(payload) > PayloadSize {
		return nil, payloaderr.New(payloaderr.Failed, "payload exceeds page capacity")
	}
	buf := make([]byte, PageSize)
	copy(buf[crcSize:], payload)
	crc := crc32Q(buf[crcSize:])
	binary.BigEndian.PutUint32(buf[:crcSize], crc)
	return buf, nil
}

// DecodePage validates the CRC-32/Q header of a 256-byte page and returns
// its payload region. Returns a payloaderr.Corrupt error on mismatch.
func DecodePage(buf []byte) ([]byte, error) {
	if len(buf) != PageSize {
		return nil, payloaderr.New(payloaderr.Failed, "short page read")
	}
	stored := binary.BigEndian.Uint32(buf[:crcSize])
	payload := buf[crcSize:]
	if got := crc32Q(payload); got != stored {
		return nil, payloaderr.New(payloaderr.Corrupt, "CRC mismatch on page read")
	}
	return payload, nil
}
