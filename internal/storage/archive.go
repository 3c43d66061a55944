// Package storage archives sealed stream files and discovers streams on
// disk. Archived streams are zstd-compressed and carry a digest of the
// original bytes, verified on every open.
package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// MagicHeader identifies an archived stream file.
var MagicHeader = []byte("TSEAM001")

var (
	ErrInvalidHeader  = errors.New("invalid archive header")
	ErrDigestMismatch = errors.New("archive digest mismatch")
)

// Layout: Magic(8) + BLAKE2b-256 digest(32) + CompressedSize(4) + Data.
const headerSize = 8 + blake2b.Size256 + 4

// Archiver compresses and reopens sealed streams.
type Archiver struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewArchiver creates an Archiver with shared zstd state.
func NewArchiver() (*Archiver, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Archiver{encoder: enc, decoder: dec}, nil
}

// Archive compresses the sealed stream at path into path+".zst" and
// removes the original on success. It returns the archive path.
func (a *Archiver) Archive(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	digest := blake2b.Sum256(raw)
	compressed := a.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	out := path + ".zst"
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}

	if _, err := f.Write(MagicHeader); err != nil {
		f.Close()
		return "", err
	}
	if _, err := f.Write(digest[:]); err != nil {
		f.Close()
		return "", err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(compressed))); err != nil {
		f.Close()
		return "", err
	}
	if _, err := f.Write(compressed); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if err := os.Remove(path); err != nil {
		return "", err
	}
	return out, nil
}

// Open yields a reader over the stream at path. Plain files are opened
// directly; ".zst" archives are decompressed in memory and their digest
// verified first.
func (a *Archiver) Open(path string) (io.ReadCloser, error) {
	if !strings.HasSuffix(path, ".zst") {
		return os.Open(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < headerSize || !bytes.Equal(data[:len(MagicHeader)], MagicHeader) {
		return nil, ErrInvalidHeader
	}

	digest := data[len(MagicHeader) : len(MagicHeader)+blake2b.Size256]
	size := binary.LittleEndian.Uint32(data[headerSize-4 : headerSize])
	compressed := data[headerSize:]
	if int(size) != len(compressed) {
		return nil, ErrInvalidHeader
	}

	raw, err := a.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, err
	}
	sum := blake2b.Sum256(raw)
	if !bytes.Equal(sum[:], digest) {
		return nil, ErrDigestMismatch
	}

	return io.NopCloser(bytes.NewReader(raw)), nil
}

// Discover lists the stream files under dir, one path per stream name,
// sorted by name. When a stream exists both plain and archived, the
// plain file wins.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".prof"):
			byName[strings.TrimSuffix(name, ".prof")] = filepath.Join(dir, name)
		case strings.HasSuffix(name, ".prof.zst"):
			base := strings.TrimSuffix(name, ".prof.zst")
			if _, ok := byName[base]; !ok {
				byName[base] = filepath.Join(dir, name)
			}
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = byName[name]
	}
	return paths, nil
}
