package keydir

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how index snapshots are compressed
type Compression byte

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionBrotli
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionBrotli:
		return "brotli"
	}
	return fmt.Sprintf("Compression(%d)", byte(c))
}

// ParseCompression parses "none", "zstd" or "brotli" ("br")
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "brotli", "br":
		return CompressionBrotli, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression '%s'", s)
}

// maxSnapshotSize limits the decompressed size of an index snapshot
var maxSnapshotSize int64 = 1 << 30

// readAllLimited is io.ReadAll that fails if r has more than maxSnapshotSize bytes
func readAllLimited(r io.Reader) ([]byte, error) {
	d, err := io.ReadAll(io.LimitReader(r, maxSnapshotSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(d)) > maxSnapshotSize {
		return nil, fmt.Errorf("decompressed snapshot is over %d bytes", maxSnapshotSize)
	}
	return d, nil
}

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func zstdCompress(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	w, err := zstd.NewWriter(&dst, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	_, err = w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func zstdDecompress(d []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(d), zstd.WithDecoderMaxMemory(uint64(maxSnapshotSize)))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return readAllLimited(zr)
}

func brCompress(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	w := brotli.NewWriterLevel(&dst, brotli.DefaultCompression)
	_, err := w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func brDecompress(d []byte) ([]byte, error) {
	return readAllLimited(brotli.NewReader(bytes.NewReader(d)))
}

func compress(c Compression, d []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return d, nil
	case CompressionZstd:
		return zstdCompress(d)
	case CompressionBrotli:
		return brCompress(d)
	}
	return nil, fmt.Errorf("unknown compression %s", c)
}

func decompress(c Compression, d []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return d, nil
	case CompressionZstd:
		return zstdDecompress(d)
	case CompressionBrotli:
		return brDecompress(d)
	}
	return nil, fmt.Errorf("unknown compression %s", c)
}
