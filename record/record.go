package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/crc32"
)

const (
	// HeaderSize is the size of the fixed-width record header
	HeaderSize = 12

	// MaxFieldLen is the largest key or value that fits in a length field
	MaxFieldLen = math.MaxUint32
)

// Record is a single key/value pair as stored in the log
type Record struct {
	Key   []byte
	Value []byte
}

// Size returns the number of bytes the record takes in the log
func (r *Record) Size() int64 {
	return HeaderSize + int64(len(r.Key)) + int64(len(r.Value))
}

// Checksum returns CRC-32 (IEEE) of key followed by value
func Checksum(key, value []byte) uint32 {
	crc := crc32.ChecksumIEEE(key)
	return crc32.Update(crc, crc32.IEEETable, value)
}

func checkFieldLen(field string, n int) error {
	if uint64(n) > MaxFieldLen {
		return fmt.Errorf("%s of %d bytes: %w", field, n, ErrFieldTooLarge)
	}
	return nil
}

// Encode serializes key and value as:
//
//	checksum u32 | key_len u32 | val_len u32 | key | value
//
// all integers little-endian
func Encode(key, value []byte) ([]byte, error) {
	if err := checkFieldLen("key", len(key)); err != nil {
		return nil, err
	}
	if err := checkFieldLen("value", len(value)); err != nil {
		return nil, err
	}
	d := make([]byte, HeaderSize+len(key)+len(value))
	binary.LittleEndian.PutUint32(d[0:4], Checksum(key, value))
	binary.LittleEndian.PutUint32(d[4:8], uint32(len(key)))
	binary.LittleEndian.PutUint32(d[8:12], uint32(len(value)))
	n := copy(d[HeaderSize:], key)
	copy(d[HeaderSize+n:], value)
	return d, nil
}

// Decode reads exactly one record from r and verifies its checksum.
// If r ends before a full record is read, returns *EndOfStreamError.
// EndOfStreamError.Clean() tells apart ending on a record boundary
// from a truncated record.
func Decode(r io.Reader) (*Record, error) {
	var hdr [HeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, &EndOfStreamError{HeaderBytes: n}
		}
		return nil, fmt.Errorf("failed to read record header: %w", err)
	}

	expected := binary.LittleEndian.Uint32(hdr[0:4])
	keyLen := binary.LittleEndian.Uint32(hdr[4:8])
	valLen := binary.LittleEndian.Uint32(hdr[8:12])
	bodyLen := int64(keyLen) + int64(valLen)

	// grow as we read so that a damaged length field doesn't allocate
	// gigabytes up front
	var body bytes.Buffer
	nBody, err := io.CopyN(&body, r, bodyLen)
	if err != nil {
		if err == io.EOF {
			return nil, &EndOfStreamError{
				HeaderBytes: HeaderSize,
				BodyBytes:   nBody,
				BodyLen:     bodyLen,
			}
		}
		return nil, fmt.Errorf("failed to read record body: %w", err)
	}

	d := body.Bytes()
	actual := crc32.ChecksumIEEE(d)
	if actual != expected {
		return nil, &CorruptError{Expected: expected, Actual: actual}
	}

	return &Record{
		Key:   d[:keyLen:keyLen],
		Value: d[keyLen:],
	}, nil
}
