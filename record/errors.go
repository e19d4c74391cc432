package record

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptRecord is matched by errors returned when the stored
	// checksum doesn't match the record body
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrUnexpectedEndOfStream is matched by errors returned when the
	// stream ends before a full record was read
	ErrUnexpectedEndOfStream = errors.New("unexpected end of stream")

	// ErrFieldTooLarge is returned when key or value length doesn't fit
	// in a 32-bit length field
	ErrFieldTooLarge = errors.New("field too large")
)

// CorruptError is returned by Decode on checksum mismatch
type CorruptError struct {
	Expected uint32
	Actual   uint32
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt record: checksum %08X != %08X", e.Actual, e.Expected)
}

func (e *CorruptError) Is(target error) bool {
	return target == ErrCorruptRecord
}

// EndOfStreamError is returned by Decode when the stream ends before
// a full record was read
type EndOfStreamError struct {
	// number of header bytes read before the stream ended
	HeaderBytes int
	// number of body bytes read, only meaningful if HeaderBytes == HeaderSize
	BodyBytes int64
	// body length declared by the header
	BodyLen int64
}

// Clean returns true if the stream ended exactly at a record boundary
// i.e. nothing of the next record was read
func (e *EndOfStreamError) Clean() bool {
	return e.HeaderBytes == 0
}

func (e *EndOfStreamError) Error() string {
	if e.Clean() {
		return "unexpected end of stream at record boundary"
	}
	if e.HeaderBytes < HeaderSize {
		return fmt.Sprintf("unexpected end of stream: truncated header (%d of %d bytes)", e.HeaderBytes, HeaderSize)
	}
	return fmt.Sprintf("unexpected end of stream: truncated body (%d of %d bytes)", e.BodyBytes, e.BodyLen)
}

func (e *EndOfStreamError) Is(target error) bool {
	return target == ErrUnexpectedEndOfStream
}

// IsCleanEnd returns true if err says the stream ended on a record boundary
func IsCleanEnd(err error) bool {
	var eos *EndOfStreamError
	return errors.As(err, &eos) && eos.Clean()
}
