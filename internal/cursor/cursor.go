// Package cursor provides a bounded read cursor over an immutable byte slice.
//
// A Cursor is always a (pos, end) pair into a backing slice and every read is
// validated with overflow-checked arithmetic before any index is touched.
package cursor

import (
	"errors"
	"math"
)

var (
	// ErrShort is returned when a read reaches past the end of the cursor region.
	ErrShort = errors.New("cursor: read past end of region")
	// ErrOverflow is returned when an offset computation would wrap.
	ErrOverflow = errors.New("cursor: offset arithmetic overflow")
)

// CheckedAdd returns a+b and false if the sum overflows int.
func CheckedAdd(a, b int) (int, bool) {
	if b > 0 && a > math.MaxInt-b {
		return 0, false
	}
	if b < 0 && a < math.MinInt-b {
		return 0, false
	}
	return a + b, true
}

// Cursor reads forward through buf[pos:end] of the region buf[start:end].
// The zero value is an empty cursor.
type Cursor struct {
	buf   []byte
	start int
	pos   int
	end   int
}

// New returns a cursor spanning all of b.
func New(b []byte) Cursor {
	return Cursor{buf: b, end: len(b)}
}

// Pos is the absolute offset of the next unread byte in the backing slice.
func (c *Cursor) Pos() int {
	return c.pos
}

// End is the absolute offset one past the last readable byte.
func (c *Cursor) End() int {
	return c.end
}

// Len is the number of unread bytes.
func (c *Cursor) Len() int {
	return c.end - c.pos
}

// Empty reports whether all bytes have been consumed.
func (c *Cursor) Empty() bool {
	return c.pos >= c.end
}

// bound validates that n more bytes are readable and returns the new position.
func (c *Cursor) bound(n int) (int, error) {
	if n < 0 {
		return 0, ErrShort
	}
	next, ok := CheckedAdd(c.pos, n)
	if !ok {
		return 0, ErrOverflow
	}
	if next > c.end {
		return 0, ErrShort
	}
	return next, nil
}

// ReadByte consumes one byte.
func (c *Cursor) ReadByte() (byte, error) {
	if c.pos >= c.end {
		return 0, ErrShort
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// Next consumes n bytes and returns them without copying.
func (c *Cursor) Next(n int) ([]byte, error) {
	next, err := c.bound(n)
	if err != nil {
		return nil, err
	}
	b := c.buf[c.pos:next:next]
	c.pos = next
	return b, nil
}

// Peek returns the next n bytes without consuming them.
func (c *Cursor) Peek(n int) ([]byte, error) {
	next, err := c.bound(n)
	if err != nil {
		return nil, err
	}
	return c.buf[c.pos:next:next], nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	next, err := c.bound(n)
	if err != nil {
		return err
	}
	c.pos = next
	return nil
}

// Sub returns a child cursor restricted to the next n bytes and advances c
// past them. The child shares the backing slice but can never read outside
// its own region.
func (c *Cursor) Sub(n int) (Cursor, error) {
	next, err := c.bound(n)
	if err != nil {
		return Cursor{}, err
	}
	child := Cursor{buf: c.buf, start: c.pos, pos: c.pos, end: next}
	c.pos = next
	return child, nil
}

// Rest consumes and returns all unread bytes.
func (c *Cursor) Rest() []byte {
	b := c.buf[c.pos:c.end:c.end]
	c.pos = c.end
	return b
}

// Slice returns buf[from:to] of the backing slice after checking that the
// range lies within the region the cursor was created with.
func (c *Cursor) Slice(from, to int) ([]byte, error) {
	if from < c.start || to < from || to > c.end {
		return nil, ErrShort
	}
	return c.buf[from:to:to], nil
}

// Uint16 reads a big-endian uint16.
func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Next(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}
