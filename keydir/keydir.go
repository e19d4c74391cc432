package keydir

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/kjk/akv/appendlog"
	"github.com/kjk/akv/log"
)

// DefaultReservedKey is the key under which index snapshots are stored
const DefaultReservedKey = "+index"

// KeyDir maps keys to the offset of their most recent record in the log
type KeyDir struct {
	reservedKey string
	entries     map[string]int64
	// number of records in the log accounted for by this KeyDir
	records int
	// offset of the latest index snapshot record, -1 if none
	snapshotOffset int64
}

// New returns an empty KeyDir
func New(reservedKey string) *KeyDir {
	return &KeyDir{
		reservedKey:    reservedKey,
		entries:        map[string]int64{},
		snapshotOffset: -1,
	}
}

func (kd *KeyDir) ReservedKey() string {
	return kd.reservedKey
}

func (kd *KeyDir) isReserved(key []byte) bool {
	return kd.reservedKey != "" && string(key) == kd.reservedKey
}

// Get returns the offset of the latest record for key
func (kd *KeyDir) Get(key []byte) (int64, bool) {
	off, ok := kd.entries[string(key)]
	return off, ok
}

// Set records that the latest record for key is at off.
// Must be called once for every record appended to the log.
func (kd *KeyDir) Set(key []byte, off int64) {
	kd.records++
	if kd.isReserved(key) {
		kd.snapshotOffset = off
		return
	}
	kd.entries[string(key)] = off
}

// Len returns number of keys
func (kd *KeyDir) Len() int {
	return len(kd.entries)
}

// Records returns number of records in the log, including shadowed ones
func (kd *KeyDir) Records() int {
	return kd.records
}

// SnapshotOffset returns offset of the latest snapshot record or -1
func (kd *KeyDir) SnapshotOffset() int64 {
	return kd.snapshotOffset
}

// Keys returns keys in sorted order
func (kd *KeyDir) Keys() []string {
	return slices.Sorted(maps.Keys(kd.entries))
}

// Equal returns true if both map the same keys to the same offsets
func (kd *KeyDir) Equal(other *KeyDir) bool {
	if kd == nil || other == nil {
		return kd == other
	}
	return maps.Equal(kd.entries, other.entries)
}

// Rebuild builds a KeyDir by scanning the whole log. Later records
// overwrite earlier ones. A scan error aborts the rebuild.
func Rebuild(l *appendlog.Log, reservedKey string) (*KeyDir, error) {
	timeStart := time.Now()
	kd := New(reservedKey)
	records, errFn := l.Scan()
	for off, rec := range records {
		kd.Set(rec.Key, off)
	}
	if err := errFn(); err != nil {
		return nil, fmt.Errorf("failed to rebuild index of '%s': %w", l.Path(), err)
	}
	dur := time.Since(timeStart)
	log.Verbosef("keydir.Rebuild: %d records, %d keys in %s\n", kd.records, kd.Len(), dur)
	log.EventWithDuration("index_rebuild", dur, "records", kd.records, "keys", kd.Len())
	return kd, nil
}

// Persist appends a snapshot of the KeyDir to the log as the value of
// the reserved key. Returns the offset of the snapshot record.
// Records appended after this make the snapshot stale.
func (kd *KeyDir) Persist(l *appendlog.Log, c Compression) (int64, error) {
	if kd.reservedKey == "" {
		return 0, fmt.Errorf("no reserved key for index snapshot")
	}
	delete(kd.entries, kd.reservedKey)
	snap := &snapshot{
		records: kd.records,
		logSize: l.Size(),
		entries: kd.entries,
	}
	d, err := snap.marshal(c)
	if err != nil {
		return 0, err
	}
	off, err := l.AppendRecord([]byte(kd.reservedKey), d)
	if err != nil {
		return 0, fmt.Errorf("failed to persist index: %w", err)
	}
	kd.Set([]byte(kd.reservedKey), off)
	log.Verbosef("keydir.Persist: %d keys, %d bytes (%s) at offset %d\n", kd.Len(), len(d), c, off)
	log.Event("index_persist", "keys", kd.Len(), "size", len(d), "compression", c.String())
	return off, nil
}

// Restore loads the latest index snapshot from the log.
// Returns nil, nil if there's no snapshot, it can't be decoded or
// it doesn't match the log (records were appended after it).
// Errors reading the log are returned.
func Restore(l *appendlog.Log, reservedKey string) (*KeyDir, error) {
	timeStart := time.Now()
	reserved := []byte(reservedKey)

	var snapOff int64 = -1
	var snapData []byte
	var nBefore, nAfter int
	n := 0
	records, errFn := l.Scan()
	for off, rec := range records {
		if bytes.Equal(rec.Key, reserved) {
			snapOff = off
			snapData = rec.Value
			nBefore = n
			nAfter = 0
		} else {
			nAfter++
		}
		n++
	}
	if err := errFn(); err != nil {
		return nil, fmt.Errorf("failed to restore index of '%s': %w", l.Path(), err)
	}
	if snapOff < 0 {
		log.Verbosef("keydir.Restore: no snapshot in '%s'\n", l.Path())
		return nil, nil
	}

	snap, err := unmarshalSnapshot(snapData)
	if err != nil {
		log.Verbosef("keydir.Restore: bad snapshot at offset %d: %s\n", snapOff, err)
		return nil, nil
	}
	if snap.logSize != snapOff || snap.records != nBefore || nAfter > 0 {
		log.Verbosef("keydir.Restore: stale snapshot at offset %d (size: %d, records: %d, appended after: %d)\n", snapOff, snap.logSize, snap.records, nAfter)
		return nil, nil
	}
	for k, off := range snap.entries {
		if off < 0 || off >= snapOff {
			log.Verbosef("keydir.Restore: snapshot entry '%s' has invalid offset %d\n", k, off)
			return nil, nil
		}
	}

	kd := New(reservedKey)
	kd.entries = snap.entries
	delete(kd.entries, reservedKey)
	kd.records = snap.records
	kd.Set(reserved, snapOff)
	dur := time.Since(timeStart)
	log.Verbosef("keydir.Restore: %d keys from snapshot at offset %d in %s\n", kd.Len(), snapOff, dur)
	log.EventWithDuration("index_restore", dur, "keys", kd.Len(), "records", kd.records)
	return kd, nil
}
