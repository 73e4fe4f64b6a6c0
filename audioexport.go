package synth

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Wav encodes the buffer as a 16-bit PCM .wav file.
func (b AudioBuffer) Wav() ([]byte, error) {
	buf := new(bytes.Buffer)
	wavHeader(len(b.Samples), b.Rate, b.Channels, buf)
	if err := binary.Write(buf, binary.LittleEndian, b.Samples); err != nil {
		return nil, fmt.Errorf("Wav failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Raw encodes the buffer as headerless little-endian 16-bit samples.
func (b AudioBuffer) Raw() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, b.Samples); err != nil {
		return nil, fmt.Errorf("Raw failed: %w", err)
	}
	return buf.Bytes(), nil
}

// wavHeader writes the RIFF header of an int16 .wav file holding samples
// interleaved samples.
func wavHeader(samples, rate, channels int, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	const bytesPerSample = 2
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+bytesPerSample*samples))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(rate))
	binary.Write(buf, binary.LittleEndian, uint32(rate*channels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))      // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))             // bits per sample
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*samples))
}
