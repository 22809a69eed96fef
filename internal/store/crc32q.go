package store

// CRC-32/Q: polynomial 0x814141AB (the ARINC "Q" variant referenced by
// name in the on-wire page format), seed 0, MSB-first, no input/output
// reflection, no final XOR. The stdlib hash/crc32 package only builds
// tables for the reflected IEEE/Castagnoli style CRCs, so this variant is
// hand-rolled the way the teacher's own repo has no equivalent to lean on;
// see DESIGN.md for why this one piece is stdlib instead of an imported
// CRC library.
const crc32QPoly = 0x814141AB

var crc32QTable [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for b := 0; b < 8; b++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ crc32QPoly
			} else {
				crc <<= 1
			}
		}
		crc32QTable[i] = crc
	}
}

// crc32Q computes the CRC-32/Q checksum of data, seeded at 0.
func crc32Q(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		idx := byte(crc>>24) ^ b
		crc = (crc << 8) ^ crc32QTable[idx]
	}
	return crc
}
