package klv

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ULPrefix is the SMPTE designator that starts every Universal Label.
var ULPrefix = []byte{0x06, 0x0E, 0x2B, 0x34}

// ULSize is the size of a Universal Label key.
const ULSize = 16

// Key is a KLV key: either a 16-byte Universal Label or a BER-OID encoded
// numeric local tag. Raw holds the key bytes as they appeared on the wire.
type Key struct {
	Raw       []byte
	Tag       uint64
	Universal bool
}

// IsZero reports whether k is the empty key used for the top level.
func (k Key) IsZero() bool {
	return len(k.Raw) == 0
}

// Equal compares keys by their wire bytes.
func (k Key) Equal(o Key) bool {
	return bytes.Equal(k.Raw, o.Raw)
}

// ULEqual reports whether k is the Universal Label ul.
func (k Key) ULEqual(ul []byte) bool {
	return k.Universal && bytes.Equal(k.Raw, ul)
}

func (k Key) String() string {
	if k.Universal {
		return hex.EncodeToString(k.Raw)
	}
	return strconv.FormatUint(k.Tag, 10)
}

// Record is one decoded (key, length, value) triple. Value aliases the access
// unit it was decoded from. For Local Sets, Children holds the nested records
// in wire order.
type Record struct {
	Key         Key
	Offset      int // offset of the key in the access unit
	ValueOffset int // offset of the first value byte in the access unit
	Length      int
	LengthSize  int // octets used by the length field on the wire
	Value       []byte
	Depth       int
	LocalSet    bool
	Children    []*Record
	Corrupt     bool
	Fault       Fault
	Unverified  bool
}

// End is the offset one past the last value byte.
func (r *Record) End() int {
	return r.ValueOffset + r.Length
}

// Child returns the first direct child with the given local tag.
func (r *Record) Child(tag uint64) *Record {
	for _, c := range r.Children {
		if !c.Key.Universal && c.Key.Tag == tag {
			return c
		}
	}
	return nil
}

// Fault classifies why a record could not be trusted.
type Fault uint8

const (
	FaultNone Fault = iota
	FaultTruncated
	FaultKey
	FaultIndefiniteLength
	FaultLengthOctets
	FaultLengthOverflow
	FaultOutOfBounds
	FaultDepth
	FaultChecksum
)

var faultNames = map[Fault]string{
	FaultNone:             "none",
	FaultTruncated:        "truncated",
	FaultKey:              "malformed key",
	FaultIndefiniteLength: "indefinite length",
	FaultLengthOctets:     "too many length octets",
	FaultLengthOverflow:   "length overflow",
	FaultOutOfBounds:      "length exceeds region",
	FaultDepth:            "nesting too deep",
	FaultChecksum:         "checksum mismatch",
}

func (f Fault) String() string {
	if s, ok := faultNames[f]; ok {
		return s
	}
	return fmt.Sprintf("fault(%d)", uint8(f))
}

// DecodeError describes one rejected record. It never aborts the decode of
// sibling or ancestor records.
type DecodeError struct {
	Fault  Fault
	Offset int
	Depth  int
	Key    Key
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Key.IsZero() {
		return fmt.Sprintf("klv: %s at offset %d depth %d", e.Fault, e.Offset, e.Depth)
	}
	return fmt.Sprintf("klv: %s at offset %d depth %d key %s", e.Fault, e.Offset, e.Depth, e.Key)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MaxContextErrors bounds how many errors a ParseContext retains. Further
// errors are only counted.
const MaxContextErrors = 64

// ParseContext is the mutable state of a single decode call.
type ParseContext struct {
	// Depth is the nesting depth of the region being parsed. It is 0 again
	// once Decode returns.
	Depth         int
	MaxDepthSeen  int
	Consumed      int
	Errors        []DecodeError
	ErrorsDropped int
	Unverified    int
}

func (pc *ParseContext) addError(e DecodeError) {
	if len(pc.Errors) >= MaxContextErrors {
		pc.ErrorsDropped++
		return
	}
	pc.Errors = append(pc.Errors, e)
}

// NrErrors is the number of errors seen, retained or not.
func (pc *ParseContext) NrErrors() int {
	return len(pc.Errors) + pc.ErrorsDropped
}

// Result is the output of decoding one access unit.
type Result struct {
	Records []*Record
	Context ParseContext
}

// Unverified reports whether any top-level record failed its checksum.
func (r *Result) Unverified() bool {
	for _, rec := range r.Records {
		if rec.Unverified {
			return true
		}
	}
	return false
}
