package kvstore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/kjk/akv/appendlog"
	"github.com/kjk/akv/keydir"
	"github.com/kjk/akv/log"
	"github.com/kjk/akv/record"
)

var (
	// ErrKeyNotFound is returned by Get when there's no record for the key
	ErrKeyNotFound = errors.New("key not found")

	// ErrReservedKey is returned when writing under the key
	// reserved for index snapshots
	ErrReservedKey = errors.New("key is reserved for index snapshot")
)

type Options struct {
	// key under which index snapshots are stored
	// if empty, keydir.DefaultReservedKey is used
	ReservedKey string
	// if true, every write is synced to disk
	SyncWrite bool
	// compression of index snapshots written by PersistIndex()
	SnapshotCompression keydir.Compression
}

func DefaultOptions() *Options {
	return &Options{
		ReservedKey:         keydir.DefaultReservedKey,
		SnapshotCompression: keydir.CompressionZstd,
	}
}

// Store is a key/value store backed by a single append-only log file.
// Not safe for concurrent use: callers must serialize calls.
type Store struct {
	log   *appendlog.Log
	index *keydir.KeyDir
	opts  Options
}

type Stats struct {
	Path string
	// size of the log file in bytes
	Size int64
	// number of records in the log, including shadowed ones
	Records int
	// number of distinct keys
	Keys int
}

// Open opens (or creates) a store at path. The index starts empty:
// call Load() or LoadSnapshot() before reading.
func Open(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	s := &Store{
		opts: *opts,
	}
	if s.opts.ReservedKey == "" {
		s.opts.ReservedKey = keydir.DefaultReservedKey
	}
	var err error
	s.log, err = appendlog.Open(path, &appendlog.Options{SyncWrite: opts.SyncWrite})
	if err != nil {
		return nil, err
	}
	s.index = keydir.New(s.opts.ReservedKey)
	return s, nil
}

// Load builds the index by scanning the whole log
func (s *Store) Load() error {
	kd, err := keydir.Rebuild(s.log, s.opts.ReservedKey)
	if err != nil {
		return err
	}
	s.index = kd
	return nil
}

// LoadSnapshot loads the index from the latest snapshot in the log.
// If there's no usable snapshot, it falls back to Load().
// Returns true if the index came from a snapshot.
func (s *Store) LoadSnapshot() (bool, error) {
	kd, err := keydir.Restore(s.log, s.opts.ReservedKey)
	if err != nil {
		return false, err
	}
	if kd != nil {
		s.index = kd
		return true, nil
	}
	log.Verbosef("kvstore.LoadSnapshot: no usable snapshot in '%s', rebuilding\n", s.log.Path())
	return false, s.Load()
}

// PersistIndex appends a snapshot of the index to the log.
// Any write after this makes the snapshot stale.
func (s *Store) PersistIndex() error {
	_, err := s.index.Persist(s.log, s.opts.SnapshotCompression)
	return err
}

// SnapshotIsCurrent returns true if the last record in the log is
// an index snapshot i.e. LoadSnapshot() would use it
func (s *Store) SnapshotIsCurrent() bool {
	off := s.index.SnapshotOffset()
	if off < 0 {
		return false
	}
	rec, err := s.log.ReadAt(off)
	if err != nil {
		return false
	}
	return off+rec.Size() == s.log.Size()
}

func (s *Store) isReserved(key []byte) bool {
	return string(key) == s.opts.ReservedKey
}

// Get returns the latest value for key.
// A deleted key returns an empty value, not ErrKeyNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	if s.isReserved(key) {
		return nil, ErrKeyNotFound
	}
	off, ok := s.index.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	rec, err := s.log.ReadAt(off)
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s' at offset %d: %w", key, off, err)
	}
	if !bytes.Equal(rec.Key, key) {
		return nil, fmt.Errorf("record at offset %d has key '%s', expected '%s': %w", off, rec.Key, key, record.ErrCorruptRecord)
	}
	if rec.Value == nil {
		return []byte{}, nil
	}
	return rec.Value, nil
}

// GetAt returns the record at a given offset in the log
func (s *Store) GetAt(off int64) (*record.Record, error) {
	return s.log.ReadAt(off)
}

// Find scans the whole log, without using the index, for the latest
// record with key. Returns its offset and value.
func (s *Store) Find(key []byte) (int64, []byte, bool, error) {
	var foundOff int64 = -1
	var foundVal []byte
	records, errFn := s.log.Scan()
	for off, rec := range records {
		if bytes.Equal(rec.Key, key) {
			foundOff = off
			foundVal = rec.Value
		}
	}
	if err := errFn(); err != nil {
		return 0, nil, false, err
	}
	if foundOff < 0 {
		return 0, nil, false, nil
	}
	return foundOff, foundVal, true, nil
}

// Insert appends a record for key. The latest record wins so this is
// also how values are updated and deleted.
func (s *Store) Insert(key []byte, value []byte) error {
	if s.isReserved(key) {
		return fmt.Errorf("'%s': %w", key, ErrReservedKey)
	}
	off, err := s.log.AppendRecord(key, value)
	if err != nil {
		return err
	}
	s.index.Set(key, off)
	return nil
}

// Update is the same as Insert. key doesn't have to exist.
func (s *Store) Update(key []byte, value []byte) error {
	return s.Insert(key, value)
}

// Delete writes an empty value for key. Nothing is removed from the log.
// key doesn't have to exist.
func (s *Store) Delete(key []byte) error {
	return s.Insert(key, nil)
}

// Keys returns all keys in sorted order, including deleted ones
func (s *Store) Keys() []string {
	return s.index.Keys()
}

func (s *Store) Stats() Stats {
	return Stats{
		Path:    s.log.Path(),
		Size:    s.log.Size(),
		Records: s.index.Records(),
		Keys:    s.index.Len(),
	}
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.log.Close()
}
