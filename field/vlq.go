package field

// maxVLQBytes bounds a length header; 4 bytes hold 28 bits.
const maxVLQBytes = 4

// DecodeVLQ reads a big-endian base-128 quantity with the continuation flag
// in the high bit of every byte but the last.
func DecodeVLQ(src []byte) (int, int, error) {
	v := 0
	for i := 0; i < maxVLQBytes; i++ {
		if i >= len(src) {
			return 0, 0, &DecodeError{Offset: i, Err: ErrTruncated}
		}
		b := src[i]
		v = v<<7 | int(b&0x7f)
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, &DecodeError{Offset: maxVLQBytes, Err: ErrBadVLQ}
}

// AppendVLQ appends v in the format read by DecodeVLQ. v must be below 1<<28.
func AppendVLQ(dst []byte, v int) []byte {
	if v < 0 || v >= 1<<28 {
		panic("field: VLQ value out of range")
	}
	var tmp [maxVLQBytes]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7f)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7f) | 0x80
	}
	return append(dst, tmp[i:]...)
}
