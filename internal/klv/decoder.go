// Package klv decodes SMPTE 336 / MISB Key-Length-Value metadata.
//
// The decoder never trusts a declared length: every offset computation is
// overflow-checked, every child region is confined to its parent region and
// nested Local Sets are walked with an explicit, bounded stack of frames.
// Malformed records are reported in the ParseContext and do not abort the
// decode of their siblings.
package klv

import (
	elog "github.com/eluv-io/log-go"

	"github.com/Eyevinn/mp2ts-klv/internal/cursor"
)

var log = elog.Get("/mp2ts-klv/klv")

const (
	// DefaultMaxDepth is the default limit on Local Set nesting.
	DefaultMaxDepth = 16
	// MaxDepthLimit is the largest nesting limit a Config may request.
	MaxDepthLimit = 64
)

// Config holds the decoder limits. Zero values select the defaults.
type Config struct {
	MaxDepth        int
	MaxLengthOctets int
	MaxTagOctets    int
	Dictionary      Dictionary
	SkipChecksums   bool
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.MaxDepth > MaxDepthLimit {
		c.MaxDepth = MaxDepthLimit
	}
	if c.MaxLengthOctets <= 0 {
		c.MaxLengthOctets = DefaultMaxLengthOctets
	}
	if c.MaxLengthOctets > MaxLengthOctetsLimit {
		c.MaxLengthOctets = MaxLengthOctetsLimit
	}
	if c.MaxTagOctets <= 0 {
		c.MaxTagOctets = DefaultMaxTagOctets
	}
	if c.Dictionary == nil {
		c.Dictionary = ST0601{}
	}
	return c
}

// Buffer is one KLV access unit. It is an immutable view; decoding reads it
// through a bounded cursor.
type Buffer struct {
	data []byte
}

// NewBuffer wraps b. The caller must not modify b while records decoded from
// it are in use.
func NewBuffer(b []byte) Buffer {
	return Buffer{data: b}
}

// Bytes returns the access unit bytes.
func (b Buffer) Bytes() []byte {
	return b.data
}

// Len is the access unit size.
func (b Buffer) Len() int {
	return len(b.data)
}

// Cursor returns a fresh cursor over the whole access unit.
func (b Buffer) Cursor() cursor.Cursor {
	return cursor.New(b.data)
}

// Decoder turns access units into record trees. A Decoder holds only its
// configuration and may be shared between streams.
type Decoder struct {
	cfg Config
}

// NewDecoder returns a decoder with cfg applied over the defaults.
func NewDecoder(cfg Config) *Decoder {
	return &Decoder{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (d *Decoder) Config() Config {
	return d.cfg
}

// frame is one level of the explicit parse stack: the region being walked
// and the Local Set record whose children it produces (nil at top level).
type frame struct {
	cur   cursor.Cursor
	set   *Record
	depth int
}

// Decode parses buf into a record tree.
func (d *Decoder) Decode(buf Buffer) *Result {
	res := &Result{}
	pc := &res.Context
	data := buf.Bytes()

	stack := make([]frame, 0, d.cfg.MaxDepth+1)
	stack = append(stack, frame{cur: buf.Cursor()})

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		pc.Depth = top.depth
		if top.cur.Empty() {
			set := top.set
			stack = stack[:len(stack)-1]
			if set != nil {
				d.verify(data, set, pc)
			}
			continue
		}

		rec, region, derr := d.next(&top.cur, top.set)
		if derr != nil {
			derr.Depth = pc.Depth
			if top.set != nil {
				top.set.Corrupt = true
				if top.set.Fault == FaultNone {
					top.set.Fault = derr.Fault
				}
			}
			pc.addError(*derr)
			log.Debug("malformed record", "fault", derr.Fault.String(), "offset", derr.Offset, "depth", derr.Depth)
			if top.set != nil {
				d.verify(data, top.set, pc)
			}
			// The rest of this region cannot be delimited; resume with the
			// parent region, whose bounds are still valid.
			stack = stack[:len(stack)-1]
			continue
		}
		rec.Depth = pc.Depth
		if top.set == nil {
			res.Records = append(res.Records, rec)
			pc.Consumed = top.cur.Pos()
		} else {
			top.set.Children = append(top.set.Children, rec)
		}

		var parentKey Key
		if top.set != nil {
			parentKey = top.set.Key
		}
		if !d.cfg.Dictionary.IsLocalSet(parentKey, rec.Key) {
			continue
		}
		childDepth := pc.Depth + 1
		if childDepth > d.cfg.MaxDepth {
			rec.Corrupt = true
			rec.Fault = FaultDepth
			pc.addError(DecodeError{
				Fault:  FaultDepth,
				Offset: rec.Offset,
				Depth:  childDepth,
				Key:    rec.Key,
			})
			log.Debug("local set nested too deep", "offset", rec.Offset, "depth", childDepth)
			continue
		}
		rec.LocalSet = true
		if childDepth > pc.MaxDepthSeen {
			pc.MaxDepthSeen = childDepth
		}
		// top may be invalidated by append; it is not used past this point.
		stack = append(stack, frame{cur: region, set: rec, depth: childDepth})
	}
	pc.Depth = 0
	return res
}

// next decodes one triple from cur. The returned region cursor is confined
// to the record's value.
func (d *Decoder) next(cur *cursor.Cursor, set *Record) (*Record, cursor.Cursor, *DecodeError) {
	start := cur.Pos()
	key, derr := decodeKey(cur, set == nil, d.cfg.MaxTagOctets)
	if derr != nil {
		return nil, cursor.Cursor{}, derr
	}
	n, size, derr := DecodeLength(cur, d.cfg.MaxLengthOctets)
	if derr != nil {
		derr.Key = key
		return nil, cursor.Cursor{}, derr
	}
	valueStart := cur.Pos()
	region, err := cur.Sub(n)
	if err != nil {
		f := FaultOutOfBounds
		if err == cursor.ErrOverflow {
			f = FaultLengthOverflow
		}
		derr = fault("klv.Decode", f, start, err)
		derr.Key = key
		return nil, cursor.Cursor{}, derr
	}
	value, _ := region.Peek(n)
	rec := &Record{
		Key:         key,
		Offset:      start,
		ValueOffset: valueStart,
		Length:      n,
		LengthSize:  size,
		Value:       value,
	}
	return rec, region, nil
}

func (d *Decoder) verify(data []byte, set *Record, pc *ParseContext) {
	if d.cfg.SkipChecksums {
		return
	}
	tag, kind, ok := d.cfg.Dictionary.Checksum(set.Key)
	if !ok {
		return
	}
	if set.Corrupt {
		// The checksum of a set that cannot be delimited is never trusted.
		set.Unverified = true
		pc.Unverified++
		return
	}
	present, valid := verifyChecksum(data, set, tag, kind)
	if !present || valid {
		return
	}
	set.Unverified = true
	pc.Unverified++
	pc.addError(DecodeError{
		Fault:  FaultChecksum,
		Offset: set.Offset,
		Depth:  set.Depth,
		Key:    set.Key,
	})
	log.Debug("checksum mismatch", "key", set.Key.String(), "offset", set.Offset)
}

// Decode parses b with the default configuration.
func Decode(b []byte) *Result {
	return NewDecoder(Config{}).Decode(NewBuffer(b))
}
