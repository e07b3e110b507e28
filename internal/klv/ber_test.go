package klv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/mp2ts-klv/internal/cursor"
)

func decodeLengthBytes(b []byte, maxOctets int) (int, int, *DecodeError) {
	c := cursor.New(b)
	return DecodeLength(&c, maxOctets)
}

func TestShortFormRoundTrip(t *testing.T) {
	for n := 0; n < 128; n++ {
		b := AppendLength(nil, n)
		require.Len(t, b, 1)
		got, size, derr := decodeLengthBytes(b, DefaultMaxLengthOctets)
		require.Nil(t, derr)
		require.Equal(t, n, got)
		require.Equal(t, 1, size)
	}
}

func TestLongFormRoundTrip(t *testing.T) {
	values := []int{128, 255, 256, 1000, 65535, 65536, 1<<24 - 1, 1 << 24, math.MaxUint32}
	for _, n := range values {
		b := AppendLength(nil, n)
		require.Equal(t, LengthSize(n), len(b))
		require.Equal(t, byte(0x80|(len(b)-1)), b[0])
		got, size, derr := decodeLengthBytes(b, DefaultMaxLengthOctets)
		require.Nil(t, derr, "length %d", n)
		require.Equal(t, n, got)
		require.Equal(t, len(b), size)
	}
}

func TestLongFormOctetCap(t *testing.T) {
	n := math.MaxUint32 + 1
	b := AppendLength(nil, n)
	require.Len(t, b, 6)

	_, _, derr := decodeLengthBytes(b, DefaultMaxLengthOctets)
	require.NotNil(t, derr)
	require.Equal(t, FaultLengthOctets, derr.Fault)

	got, _, derr := decodeLengthBytes(b, 5)
	require.Nil(t, derr)
	require.Equal(t, n, got)
}

func TestNonMinimalLength(t *testing.T) {
	got, size, derr := decodeLengthBytes([]byte{0x82, 0x00, 0x05}, DefaultMaxLengthOctets)
	require.Nil(t, derr)
	require.Equal(t, 5, got)
	require.Equal(t, 3, size)

	b, err := AppendLengthSize(nil, 5, 3)
	require.NoError(t, err)
	require.Equal(t, []byte{0x82, 0x00, 0x05}, b)

	_, err = AppendLengthSize(nil, 300, 1)
	require.Error(t, err)
	_, err = AppendLengthSize(nil, 70000, 3)
	require.Error(t, err)
	_, err = AppendLengthSize(nil, -1, 0)
	require.Error(t, err)
}

func TestLengthFaults(t *testing.T) {
	cases := []struct {
		name  string
		data  []byte
		max   int
		fault Fault
	}{
		{"empty", nil, 4, FaultTruncated},
		{"indefinite", []byte{0x80}, 4, FaultIndefiniteLength},
		{"truncated long form", []byte{0x83, 0x01, 0x02}, 4, FaultTruncated},
		{"too many octets", []byte{0x85, 0, 0, 0, 0, 1}, 4, FaultLengthOctets},
		{"beyond int", []byte{0x88, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 8, FaultLengthOverflow},
		{"cap clamped to hard limit", []byte{0x89, 0, 0, 0, 0, 0, 0, 0, 0, 1}, 100, FaultLengthOctets},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, derr := decodeLengthBytes(c.data, c.max)
			require.NotNil(t, derr)
			require.Equal(t, c.fault, derr.Fault)
			require.Error(t, derr.Err)
		})
	}
}

func TestTags(t *testing.T) {
	cases := []struct {
		tag  uint64
		wire []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x81, 0x00}},
		{129, []byte{0x81, 0x01}},
		{16383, []byte{0xFF, 0x7F}},
		{16384, []byte{0x81, 0x80, 0x00}},
	}
	for _, c := range cases {
		require.Equal(t, c.wire, AppendTag(nil, c.tag))
		cur := cursor.New(c.wire)
		k, derr := DecodeTag(&cur, DefaultMaxTagOctets)
		require.Nil(t, derr)
		require.Equal(t, c.tag, k.Tag)
		require.Equal(t, c.wire, k.Raw)
		require.False(t, k.Universal)
	}

	cur := cursor.New([]byte{0x81, 0x81, 0x01})
	_, derr := DecodeTag(&cur, 2)
	require.NotNil(t, derr)
	require.Equal(t, FaultKey, derr.Fault)

	cur = cursor.New([]byte{0x81})
	_, derr = DecodeTag(&cur, 2)
	require.NotNil(t, derr)
	require.Equal(t, FaultTruncated, derr.Fault)
}
