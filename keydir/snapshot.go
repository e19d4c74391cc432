package keydir

import (
	"fmt"
	"maps"
	"slices"

	"github.com/tinylib/msgp/msgp"
)

// snapshot format version
const snapshotVersion = 1

// snapshot is the persisted form of KeyDir.
//
// Serialized as a codec byte (see Compression) followed by (possibly
// compressed) msgpack array:
//
//	[version, records, logSize, {key: offset, ...}]
//
// records and logSize describe the log right before the snapshot
// record was appended. Keys are written in sorted order so the same
// KeyDir always serializes to the same bytes.
type snapshot struct {
	records int
	logSize int64
	entries map[string]int64
}

func (s *snapshot) marshal(c Compression) ([]byte, error) {
	keys := slices.Sorted(maps.Keys(s.entries))

	d := msgp.AppendArrayHeader(nil, 4)
	d = msgp.AppendInt(d, snapshotVersion)
	d = msgp.AppendInt(d, s.records)
	d = msgp.AppendInt64(d, s.logSize)
	d = msgp.AppendMapHeader(d, uint32(len(keys)))
	for _, k := range keys {
		d = msgp.AppendBytes(d, []byte(k))
		d = msgp.AppendUint64(d, uint64(s.entries[k]))
	}

	compressed, err := compress(c, d)
	if err != nil {
		return nil, fmt.Errorf("failed to compress index snapshot: %w", err)
	}
	return append([]byte{byte(c)}, compressed...), nil
}

func unmarshalSnapshot(d []byte) (*snapshot, error) {
	if len(d) == 0 {
		return nil, fmt.Errorf("empty snapshot")
	}
	c := Compression(d[0])
	d, err := decompress(c, d[1:])
	if err != nil {
		return nil, err
	}

	sz, d, err := msgp.ReadArrayHeaderBytes(d)
	if err != nil {
		return nil, err
	}
	if sz != 4 {
		return nil, fmt.Errorf("expected 4 fields, got %d", sz)
	}
	ver, d, err := msgp.ReadIntBytes(d)
	if err != nil {
		return nil, err
	}
	if ver != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", ver)
	}
	res := &snapshot{}
	res.records, d, err = msgp.ReadIntBytes(d)
	if err != nil {
		return nil, err
	}
	res.logSize, d, err = msgp.ReadInt64Bytes(d)
	if err != nil {
		return nil, err
	}
	n, d, err := msgp.ReadMapHeaderBytes(d)
	if err != nil {
		return nil, err
	}
	// every entry takes at least 2 bytes
	if uint64(n) > uint64(len(d)/2) {
		return nil, fmt.Errorf("%d entries don't fit in %d bytes", n, len(d))
	}
	res.entries = make(map[string]int64, n)
	for i := uint32(0); i < n; i++ {
		var k []byte
		var off uint64
		k, d, err = msgp.ReadBytesBytes(d, nil)
		if err != nil {
			return nil, err
		}
		off, d, err = msgp.ReadUint64Bytes(d)
		if err != nil {
			return nil, err
		}
		res.entries[string(k)] = int64(off)
	}
	if len(d) > 0 {
		return nil, fmt.Errorf("%d bytes of trailing data", len(d))
	}
	return res, nil
}
