package klv

import (
	"github.com/eluv-io/errors-go"
)

// Encode serializes a record tree. Keys are written with their original wire
// bytes and lengths keep their original width when the value still fits, so
// that decoding and re-encoding a well-formed access unit is lossless.
// Local Sets are rebuilt from their children unless they are corrupt, in
// which case the raw value is written back.
func Encode(records []*Record) ([]byte, error) {
	// Each frame collects the encoded children of one Local Set; the set
	// itself is written into its parent frame once all children are done.
	type frame struct {
		set     *Record
		records []*Record
		next    int
		buf     []byte
	}
	stack := []frame{{records: records}}
	for {
		top := &stack[len(stack)-1]
		if top.next == len(top.records) {
			if len(stack) == 1 {
				return top.buf, nil
			}
			set, value := top.set, top.buf
			stack = stack[:len(stack)-1]
			parent := &stack[len(stack)-1]
			var err error
			if parent.buf, err = appendTriple(parent.buf, set, value); err != nil {
				return nil, err
			}
			continue
		}
		r := top.records[top.next]
		top.next++
		if r.LocalSet && !r.Corrupt {
			if len(stack) > MaxDepthLimit {
				return nil, errors.E("klv.Encode", errors.K.Invalid, "reason", "tree too deep", "depth", len(stack))
			}
			stack = append(stack, frame{set: r, records: r.Children})
			continue
		}
		var err error
		if top.buf, err = appendTriple(top.buf, r, r.Value); err != nil {
			return nil, err
		}
	}
}

func appendTriple(dst []byte, r *Record, value []byte) ([]byte, error) {
	key := r.Key.Raw
	if len(key) == 0 {
		if r.Key.Universal {
			return dst, errors.E("klv.Encode", errors.K.Invalid, "reason", "empty universal label")
		}
		key = AppendTag(nil, r.Key.Tag)
	}
	dst = append(dst, key...)
	size := r.LengthSize
	if size == 0 || (size == 1 && len(value) >= 0x80) || (size > 1 && size < LengthSize(len(value))) {
		size = LengthSize(len(value))
	}
	dst, err := AppendLengthSize(dst, len(value), size)
	if err != nil {
		return dst, err
	}
	return append(dst, value...), nil
}

// NewLeaf builds a record with a BER-OID tag and a raw value, for encoding.
func NewLeaf(tag uint64, value []byte) *Record {
	return &Record{Key: Key{Raw: AppendTag(nil, tag), Tag: tag}, Length: len(value), Value: value}
}

// NewSet builds a Local Set record with the given key bytes and children.
func NewSet(key Key, children ...*Record) *Record {
	return &Record{Key: key, LocalSet: true, Children: children}
}

// ULKey returns the Key for a 16-byte Universal Label.
func ULKey(ul []byte) Key {
	return Key{Raw: ul, Universal: true}
}

// TagKey returns the Key for a BER-OID local tag.
func TagKey(tag uint64) Key {
	return Key{Raw: AppendTag(nil, tag), Tag: tag}
}

// AppendChecksum appends a checksum item to set and fills it in so that the
// encoded set verifies with kind. The set must be encoded on its own (its key
// is the first byte of the checksummed range).
func AppendChecksum(set *Record, tag uint64, kind ChecksumKind) error {
	sum := NewLeaf(tag, []byte{0, 0})
	set.Children = append(set.Children, sum)
	b, err := Encode([]*Record{set})
	if err != nil {
		return err
	}
	// The checksum covers everything but its own two value bytes.
	v := kind.Sum(b[:len(b)-2])
	sum.Value[0] = byte(v >> 8)
	sum.Value[1] = byte(v)
	return nil
}
