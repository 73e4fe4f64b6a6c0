package oto

import "encoding/binary"

// Int16ToLE writes src into dst as 16-bit little-endian samples. dst must
// have room for 2*len(src) bytes.
func Int16ToLE(dst []byte, src []int16) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(v))
	}
}
