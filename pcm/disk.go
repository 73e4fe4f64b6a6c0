package pcm

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Disk is the file tier of the cache: one raw little-endian 16-bit file per
// key under Root/<rate>/<digest>/, where digest identifies the program bytes
// the note was printed from.
type Disk struct {
	Root string
}

// Digest names the program bytes in disk paths.
func Digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

func (d *Disk) path(rate int, digest string, key Key) string {
	return filepath.Join(d.Root, strconv.Itoa(rate), digest, keyName(key))
}

func keyName(key Key) string {
	return fmt.Sprintf("%04x", uint16(key))
}

// Load reads the samples of key printed from the program with the given
// digest. A missing file is not an error; it returns nil samples.
func (d *Disk) Load(rate int, digest string, key Key) ([]int16, error) {
	p := d.path(rate, digest, key)
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read cached note: %w", err)
	}
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("cached note %v has an odd length %d", p, len(b))
	}
	samples := make([]int16, len(b)/2)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("could not decode cached note: %w", err)
	}
	return samples, nil
}

// Save writes the samples of key, replacing any previous file.
func (d *Disk) Save(rate int, digest string, key Key, samples []int16) error {
	p := d.path(rate, digest, key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("could not create cache directory: %w", err)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("could not encode note: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("could not write cached note: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("could not write cached note: %w", err)
	}
	return nil
}

// Remove deletes the files of every note a program printed from the bytes
// with the given digest, at every rate.
func (d *Disk) Remove(digest string, program byte) error {
	dirs, err := filepath.Glob(filepath.Join(d.Root, "*", digest))
	if err != nil {
		return fmt.Errorf("could not list cached notes: %w", err)
	}
	for _, dir := range dirs {
		for note := 0; note < 256; note++ {
			err := os.Remove(filepath.Join(dir, keyName(MakeKey(program, byte(note)))))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("could not remove cached note: %w", err)
			}
		}
		os.Remove(dir) // only succeeds once no program uses the digest
	}
	return nil
}
