package appendlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/kjk/akv/record"
)

var (
	// ErrInvalidOffset is returned by ReadAt for negative offsets
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrClosed is returned when using a closed Log
	ErrClosed = errors.New("log is closed")
)

type Options struct {
	// if true, will call file.Sync() after every append
	// this makes writes much slower
	SyncWrite bool
}

// Log is an append-only file of records.
// It's the only owner of the file handle.
// Not safe for concurrent use.
type Log struct {
	path string
	file *os.File
	// current size of the file, i.e. offset of the next append
	size int64
	opts Options
}

// Open opens or creates a log file at path for reading and appending.
// It doesn't read the content of the file.
func Open(path string, opts *Options) (*Log, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log: %w", err)
	}
	l := &Log{
		path: path,
		file: file,
		size: st.Size(),
	}
	if opts != nil {
		l.opts = *opts
	}
	return l, nil
}

func (l *Log) Path() string {
	return l.path
}

// Size returns the size of the log in bytes
func (l *Log) Size() int64 {
	return l.size
}

// Append writes d at the end of the log with a single write and
// returns the offset at which d starts
func (l *Log) Append(d []byte) (int64, error) {
	if l.file == nil {
		return 0, ErrClosed
	}
	off, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to seek to end of log: %w", err)
	}
	n, err := l.file.Write(d)
	// even a partial write grows the file
	l.size = off + int64(n)
	if err != nil {
		return 0, fmt.Errorf("failed to append %d bytes at offset %d: %w", len(d), off, err)
	}
	if l.opts.SyncWrite {
		if err = l.file.Sync(); err != nil {
			return 0, fmt.Errorf("failed to sync log: %w", err)
		}
	}
	return off, nil
}

// AppendRecord encodes key and value and appends them as a record.
// Returns the offset of the record.
func (l *Log) AppendRecord(key, value []byte) (int64, error) {
	d, err := record.Encode(key, value)
	if err != nil {
		return 0, err
	}
	return l.Append(d)
}

// ReadAt decodes the record that starts at off.
// For off at or past the end of the log it returns *record.EndOfStreamError.
func (l *Log) ReadAt(off int64) (*record.Record, error) {
	if l.file == nil {
		return nil, ErrClosed
	}
	if off < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, off)
	}
	n := max(l.size-off, 0)
	r := io.NewSectionReader(l.file, off, n)
	return record.Decode(bufio.NewReader(r))
}

// Scan returns an iterator over (offset, record) pairs, starting at the
// beginning of the log. Each call starts a new scan.
// The scan covers the log as it was when iteration started.
// It stops when it reaches the end of the log at a record boundary.
// Any other error (corrupt or truncated record, I/O error) stops the scan.
// Call the returned error function after iteration to check for errors.
func (l *Log) Scan() (iter.Seq2[int64, *record.Record], func() error) {
	var iterErr error

	seq := func(yield func(int64, *record.Record) bool) {
		iterErr = nil
		if l.file == nil {
			iterErr = ErrClosed
			return
		}
		r := bufio.NewReader(io.NewSectionReader(l.file, 0, l.size))
		var off int64
		for {
			rec, err := record.Decode(r)
			if err != nil {
				if record.IsCleanEnd(err) {
					return
				}
				iterErr = fmt.Errorf("failed to read record at offset %d: %w", off, err)
				return
			}
			if !yield(off, rec) {
				return
			}
			off += rec.Size()
		}
	}

	return seq, func() error { return iterErr }
}

// Sync flushes the file to disk
func (l *Log) Sync() error {
	if l.file == nil {
		return ErrClosed
	}
	return l.file.Sync()
}

// Close closes the file. Can be called multiple times.
func (l *Log) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
