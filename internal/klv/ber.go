package klv

import (
	"math"

	"github.com/eluv-io/errors-go"

	"github.com/Eyevinn/mp2ts-klv/internal/cursor"
)

const (
	// DefaultMaxLengthOctets is the default cap on long-form length octets.
	DefaultMaxLengthOctets = 4
	// MaxLengthOctetsLimit is the hard cap; a uint64 cannot hold more.
	MaxLengthOctetsLimit = 8
	// DefaultMaxTagOctets is the default cap on BER-OID tag octets.
	DefaultMaxTagOctets = 4
	maxTagOctetsLimit   = 8
)

func fault(op string, f Fault, offset int, cause error) *DecodeError {
	var err error
	if cause != nil {
		err = errors.NoTrace(op, errors.K.Invalid, cause, "reason", f.String(), "offset", offset)
	} else {
		err = errors.NoTrace(op, errors.K.Invalid, "reason", f.String(), "offset", offset)
	}
	return &DecodeError{Fault: f, Offset: offset, Err: err}
}

// DecodeLength reads a BER length field. It returns the decoded length and
// the number of octets the field occupied. maxOctets caps the long-form octet
// count; it is clamped to [1, MaxLengthOctetsLimit].
func DecodeLength(c *cursor.Cursor, maxOctets int) (int, int, *DecodeError) {
	if maxOctets < 1 {
		maxOctets = 1
	}
	if maxOctets > MaxLengthOctetsLimit {
		maxOctets = MaxLengthOctetsLimit
	}
	start := c.Pos()
	first, err := c.ReadByte()
	if err != nil {
		return 0, 0, fault("klv.DecodeLength", FaultTruncated, start, err)
	}
	if first&0x80 == 0 {
		return int(first), 1, nil
	}
	count := int(first & 0x7F)
	if count == 0 {
		return 0, 0, fault("klv.DecodeLength", FaultIndefiniteLength, start, nil)
	}
	if count > maxOctets {
		return 0, 0, fault("klv.DecodeLength", FaultLengthOctets, start, nil)
	}
	octets, err := c.Next(count)
	if err != nil {
		return 0, 0, fault("klv.DecodeLength", FaultTruncated, start, err)
	}
	var v uint64
	for _, b := range octets {
		v = v<<8 | uint64(b)
	}
	if v > math.MaxInt {
		return 0, 0, fault("klv.DecodeLength", FaultLengthOverflow, start, nil)
	}
	return int(v), 1 + count, nil
}

// LengthSize is the number of octets of the minimal BER encoding of n.
func LengthSize(n int) int {
	if n < 0x80 {
		return 1
	}
	size := 1
	for v := uint64(n); v > 0; v >>= 8 {
		size++
	}
	return size
}

// AppendLength appends the minimal BER encoding of n.
func AppendLength(dst []byte, n int) []byte {
	b, _ := AppendLengthSize(dst, n, 0)
	return b
}

// AppendLengthSize appends n as a BER length occupying exactly size octets.
// size 0 selects the minimal encoding. Long form may be used for values
// below 128 when size > 1.
func AppendLengthSize(dst []byte, n int, size int) ([]byte, error) {
	if n < 0 {
		return dst, errors.E("klv.AppendLength", errors.K.Invalid, "reason", "negative length", "length", n)
	}
	if size == 0 {
		size = LengthSize(n)
	}
	if size == 1 {
		if n >= 0x80 {
			return dst, errors.E("klv.AppendLength", errors.K.Invalid, "reason", "length needs long form", "length", n)
		}
		return append(dst, byte(n)), nil
	}
	count := size - 1
	if count > MaxLengthOctetsLimit {
		return dst, errors.E("klv.AppendLength", errors.K.Invalid, "reason", "too many length octets", "size", size)
	}
	if count < MaxLengthOctetsLimit && uint64(n)>>(8*uint(count)) != 0 {
		return dst, errors.E("klv.AppendLength", errors.K.Invalid, "reason", "length does not fit", "length", n, "size", size)
	}
	dst = append(dst, 0x80|byte(count))
	for i := count - 1; i >= 0; i-- {
		dst = append(dst, byte(uint64(n)>>(8*uint(i))))
	}
	return dst, nil
}

// DecodeTag reads a BER-OID encoded local tag: 7 bits per octet, high bit
// set on every octet but the last.
func DecodeTag(c *cursor.Cursor, maxOctets int) (Key, *DecodeError) {
	if maxOctets < 1 {
		maxOctets = 1
	}
	if maxOctets > maxTagOctetsLimit {
		maxOctets = maxTagOctetsLimit
	}
	start := c.Pos()
	var tag uint64
	for i := 0; i < maxOctets; i++ {
		b, err := c.ReadByte()
		if err != nil {
			return Key{}, fault("klv.DecodeTag", FaultTruncated, start, err)
		}
		tag = tag<<7 | uint64(b&0x7F)
		if b&0x80 == 0 {
			raw, _ := c.Slice(start, c.Pos())
			return Key{Raw: raw, Tag: tag}, nil
		}
	}
	return Key{}, fault("klv.DecodeTag", FaultKey, start, nil)
}

// AppendTag appends the BER-OID encoding of tag.
func AppendTag(dst []byte, tag uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(tag & 0x7F)
	for tag >>= 7; tag > 0; tag >>= 7 {
		i--
		tmp[i] = 0x80 | byte(tag&0x7F)
	}
	return append(dst, tmp[i:]...)
}

// decodeKey reads a key. At the top level a key starting with the SMPTE
// designator is a 16-byte Universal Label; everything else is a BER-OID tag.
func decodeKey(c *cursor.Cursor, topLevel bool, maxTagOctets int) (Key, *DecodeError) {
	if topLevel {
		if p, err := c.Peek(len(ULPrefix)); err == nil && string(p) == string(ULPrefix) {
			start := c.Pos()
			ul, err := c.Next(ULSize)
			if err != nil {
				return Key{}, fault("klv.decodeKey", FaultTruncated, start, err)
			}
			return Key{Raw: ul, Universal: true}, nil
		}
	}
	return DecodeTag(c, maxTagOctets)
}
