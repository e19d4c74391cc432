package record

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

func genRandomBytes(n int) []byte {
	d := make([]byte, n)
	for i := range d {
		d[i] = byte(rng.Intn(256))
	}
	return d
}

func TestRoundtrip(t *testing.T) {
	tests := [][2]string{
		{"a", "1"},
		{"key", "value"},
		{"", ""},
		{"", "value without key"},
		{"tombstone", ""},
		{"+index", "\x00\x01\x02"},
		{"naïve ключ", "\n\r\t"},
	}
	for _, test := range tests {
		key, value := []byte(test[0]), []byte(test[1])
		d, err := Encode(key, value)
		assert.Nil(t, err)
		assert.Equal(t, HeaderSize+len(key)+len(value), len(d))

		rec, err := Decode(bytes.NewReader(d))
		assert.Nil(t, err)
		assert.True(t, bytes.Equal(key, rec.Key), "key: %q != %q", key, rec.Key)
		assert.True(t, bytes.Equal(value, rec.Value), "value: %q != %q", value, rec.Value)
		assert.Equal(t, int64(len(d)), rec.Size())
	}
}

func TestRoundtripRandom(t *testing.T) {
	for i := 0; i < 200; i++ {
		key := genRandomBytes(rng.Intn(64))
		value := genRandomBytes(rng.Intn(4096))
		d, err := Encode(key, value)
		assert.Nil(t, err)
		rec, err := Decode(bytes.NewReader(d))
		assert.Nil(t, err)
		assert.True(t, bytes.Equal(key, rec.Key))
		assert.True(t, bytes.Equal(value, rec.Value))
	}
}

func TestLayout(t *testing.T) {
	d, err := Encode([]byte("ab"), []byte("xyz"))
	assert.Nil(t, err)
	crc := Checksum([]byte("ab"), []byte("xyz"))
	exp := []byte{
		byte(crc), byte(crc >> 8), byte(crc >> 16), byte(crc >> 24),
		2, 0, 0, 0,
		3, 0, 0, 0,
		'a', 'b', 'x', 'y', 'z',
	}
	assert.Equal(t, exp, d)
	// checksum covers key ++ value, so the split point doesn't matter
	assert.Equal(t, crc, Checksum([]byte("abxyz"), nil))
}

func TestChecksumSensitivity(t *testing.T) {
	d, err := Encode([]byte("key"), []byte("some value"))
	assert.Nil(t, err)
	for i := HeaderSize; i < len(d); i++ {
		for bit := 0; bit < 8; bit++ {
			d2 := append([]byte{}, d...)
			d2[i] ^= 1 << bit
			_, err := Decode(bytes.NewReader(d2))
			assert.True(t, errors.Is(err, ErrCorruptRecord), "byte %d bit %d: got %v", i, bit, err)
			var cerr *CorruptError
			assert.True(t, errors.As(err, &cerr))
		}
	}
}

func TestCorruptChecksumField(t *testing.T) {
	d, err := Encode([]byte("a"), []byte("1"))
	assert.Nil(t, err)
	d[0] ^= 0xff
	_, err = Decode(bytes.NewReader(d))
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestCleanEndOfStream(t *testing.T) {
	_, err := Decode(bytes.NewReader(nil))
	assert.True(t, errors.Is(err, ErrUnexpectedEndOfStream))
	assert.True(t, IsCleanEnd(err))
}

func TestTruncatedRecord(t *testing.T) {
	d, err := Encode([]byte("key"), []byte("value"))
	assert.Nil(t, err)
	for n := 1; n < len(d); n++ {
		_, err := Decode(bytes.NewReader(d[:n]))
		assert.True(t, errors.Is(err, ErrUnexpectedEndOfStream), "len %d: got %v", n, err)
		assert.False(t, IsCleanEnd(err), "len %d should not be a clean end", n)

		var eos *EndOfStreamError
		assert.True(t, errors.As(err, &eos))
		if n < HeaderSize {
			assert.Equal(t, n, eos.HeaderBytes)
		} else {
			assert.Equal(t, HeaderSize, eos.HeaderBytes)
			assert.Equal(t, int64(n-HeaderSize), eos.BodyBytes)
			assert.Equal(t, int64(8), eos.BodyLen)
		}
	}
}

func TestDecodeSequence(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 10; i++ {
		d, err := Encode([]byte(strconv.Itoa(i)), []byte("v"+strconv.Itoa(i)))
		assert.Nil(t, err)
		buf.Write(d)
	}
	r := bytes.NewReader(buf.Bytes())
	n := 0
	for {
		rec, err := Decode(r)
		if IsCleanEnd(err) {
			break
		}
		assert.Nil(t, err)
		assert.Equal(t, strconv.Itoa(n), string(rec.Key))
		n++
	}
	assert.Equal(t, 10, n)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func TestReaderError(t *testing.T) {
	_, err := Decode(failingReader{})
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
	assert.False(t, errors.Is(err, ErrUnexpectedEndOfStream))
}

func TestFieldTooLarge(t *testing.T) {
	assert.Nil(t, checkFieldLen("key", 0))
	assert.Nil(t, checkFieldLen("key", 1024))
	if strconv.IntSize < 64 {
		t.Skip("int can't exceed MaxFieldLen")
	}
	var lim uint64 = MaxFieldLen
	n := int(lim)
	assert.Nil(t, checkFieldLen("value", n))
	err := checkFieldLen("value", n+1)
	assert.True(t, errors.Is(err, ErrFieldTooLarge))
}
