package protocol

// CRC16 computes the frame checksum (CRC-16/CCITT, reflected form with
// 0xFFFF seed) over header and payload.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// appendTrailer appends the CRC of frame and the sync byte.
func appendTrailer(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, uint8(crc>>8), uint8(crc), MessageValueSync)
}
