package cursor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckedAdd(t *testing.T) {
	cases := []struct {
		name string
		a, b int
		sum  int
		ok   bool
	}{
		{"small", 1, 2, 3, true},
		{"zero", 0, 0, 0, true},
		{"max", math.MaxInt - 1, 1, math.MaxInt, true},
		{"overflow", math.MaxInt, 1, 0, false},
		{"overflow large", 10, math.MaxInt, 0, false},
		{"negative", 5, -3, 2, true},
		{"underflow", math.MinInt, -1, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sum, ok := CheckedAdd(c.a, c.b)
			require.Equal(t, c.ok, ok)
			require.Equal(t, c.sum, sum)
		})
	}
}

func TestCursorReads(t *testing.T) {
	c := New([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	b, err := c.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), b)

	u, err := c.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0203), u)
	require.Equal(t, 2, c.Len())

	p, err := c.Peek(2)
	require.NoError(t, err)
	require.Equal(t, []byte{0x04, 0x05}, p)
	require.Equal(t, 3, c.Pos())

	_, err = c.Next(3)
	require.ErrorIs(t, err, ErrShort)
	require.Equal(t, 3, c.Pos(), "failed read must not advance")

	require.Equal(t, []byte{0x04, 0x05}, c.Rest())
	require.True(t, c.Empty())
	_, err = c.ReadByte()
	require.ErrorIs(t, err, ErrShort)
}

func TestCursorNegativeAndOverflow(t *testing.T) {
	c := New(make([]byte, 8))
	require.NoError(t, c.Skip(4))
	_, err := c.Next(-1)
	require.ErrorIs(t, err, ErrShort)
	_, err = c.Next(math.MaxInt)
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, 4, c.Pos())
}

func TestSubIsConfined(t *testing.T) {
	c := New([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE})
	require.NoError(t, c.Skip(1))
	child, err := c.Sub(2)
	require.NoError(t, err)
	require.Equal(t, 3, c.Pos(), "parent advances past child region")
	require.Equal(t, 2, child.Len())

	_, err = child.Next(3)
	require.ErrorIs(t, err, ErrShort, "child cannot read into parent's remaining bytes")

	got, err := child.Next(2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xBB, 0xCC}, got)

	// Appending to a returned slice must not clobber the backing buffer.
	got = append(got, 0x00)
	require.Equal(t, byte(0xDD), c.Rest()[0])
	require.Len(t, got, 3)
}

func TestSlice(t *testing.T) {
	c := New([]byte{1, 2, 3, 4})
	child, err := c.Sub(2)
	require.NoError(t, err)
	b, err := child.Slice(0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, b)
	_, err = child.Slice(0, 3)
	require.ErrorIs(t, err, ErrShort)
	_, err = child.Slice(2, 1)
	require.ErrorIs(t, err, ErrShort)

	second, err := c.Sub(2)
	require.NoError(t, err)
	b, err = second.Slice(2, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4}, b)
	_, err = second.Slice(1, 4)
	require.ErrorIs(t, err, ErrShort, "range starts before the region")
	_, err = second.Slice(-1, 2)
	require.ErrorIs(t, err, ErrShort)
}
