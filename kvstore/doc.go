// Package kvstore is a key/value store kept in a single append-only file,
// in the style of Bitcask.
//
// # Store Structure
//
// Every Insert, Update and Delete appends a record to the file (see package
// record for the format). An in-memory index (package keydir) maps each key
// to the offset of its latest record, so Get is one index lookup and one read.
// Older records for the same key stay in the file but are never read.
//
// The index is not loaded by Open. Pick a strategy:
//   - Load() scans the whole file
//   - LoadSnapshot() uses the index snapshot stored by PersistIndex() under
//     the reserved key ("+index" by default) and falls back to Load() if the
//     snapshot is missing or records were appended after it
//
// # Basic Usage
//
//	s, err := kvstore.Open("data.akv", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//	if err = s.Load(); err != nil {
//	    log.Fatal(err)
//	}
//	err = s.Insert([]byte("key"), []byte("value"))
//	v, err := s.Get([]byte("key"))
//
// # Deletes
//
// Delete writes an empty value. Get of a deleted key returns an empty value
// and no error, exactly like a key that was set to an empty value.
//
// # Thread Safety
//
// Store is not safe for concurrent use. Two Stores must not use the same file.
package kvstore
