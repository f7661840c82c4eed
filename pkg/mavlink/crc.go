package mavlink

// CRC-16/X.25 (MCRF4XX) as used for MAVLink frame checksums.
// Seeded with 0xffff, accumulated over every header byte after the start
// marker, the payload, and finally the per-message crc extra byte.

const crcInit uint16 = 0xffff

// crcAccumulate folds one byte into the running checksum.
func crcAccumulate(crc uint16, b byte) uint16 {
	data := uint16(b)
	data ^= crc & 0xff
	data ^= (data & 0x0f) << 4
	return (crc >> 8) ^ (data << 8) ^ (data << 3) ^ (data >> 4)
}

// crcBytes folds a byte slice into the running checksum.
func crcBytes(crc uint16, buf []byte) uint16 {
	for _, b := range buf {
		crc = crcAccumulate(crc, b)
	}
	return crc
}
