package klv

import (
	slices "golang.org/x/exp/slices"
)

// Dictionary tells the decoder which values are Local Data Sets and which
// sets carry a trailing checksum item. Mapping tags to named fields is left
// to the consumer of the record tree.
type Dictionary interface {
	// IsLocalSet reports whether the value of key, found inside parent, is
	// itself a Local Data Set. parent is the zero Key at the top level.
	IsLocalSet(parent, key Key) bool
	// Checksum returns the tag and algorithm of the checksum item of set.
	Checksum(set Key) (tag uint64, kind ChecksumKind, ok bool)
}

var (
	// UASDatalinkUL is the MISB ST 0601 UAS Datalink Local Set key.
	UASDatalinkUL = []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x0B, 0x01, 0x01, 0x0E, 0x01, 0x03, 0x01, 0x01, 0x00, 0x00, 0x00}
	// VMTIUL is the MISB ST 0903 Video Moving Target Indicator Local Set key.
	VMTIUL = []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x0B, 0x01, 0x01, 0x0E, 0x01, 0x03, 0x03, 0x06, 0x00, 0x00, 0x00}
	// SecurityUL is the MISB ST 0102 Security Metadata Local Set key.
	SecurityUL = []byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x03, 0x01, 0x01, 0x0E, 0x01, 0x03, 0x03, 0x02, 0x00, 0x00, 0x00}
)

// ST 0601 item tags used by the decoder.
const (
	ST0601Checksum    = 1
	ST0601Timestamp   = 2
	ST0601SecurityLS  = 48
	ST0601VersionTag  = 65
	ST0601RVTLS       = 73
	ST0903ChecksumTag = 1
)

// isLocalSetUL reports whether ul designates a Local Set per SMPTE 336: the
// registry category byte is 0x02 (groups) and the low bits of the structure
// byte select "local set".
func isLocalSetUL(ul []byte) bool {
	return len(ul) == ULSize && ul[4] == 0x02 && ul[5]&0x07 == 0x03
}

// ST0601 is the dictionary for STANAG 4609 metadata: the UAS Datalink Local
// Set with its embedded Security and RVT Local Sets, and stand-alone
// Local Sets identified by their Universal Label.
type ST0601 struct{}

func (ST0601) IsLocalSet(parent, key Key) bool {
	if parent.IsZero() {
		return key.Universal && isLocalSetUL(key.Raw)
	}
	if parent.ULEqual(UASDatalinkUL) && !key.Universal {
		return key.Tag == ST0601SecurityLS || key.Tag == ST0601RVTLS
	}
	return false
}

func (ST0601) Checksum(set Key) (uint64, ChecksumKind, bool) {
	switch {
	case set.ULEqual(UASDatalinkUL):
		return ST0601Checksum, ChecksumBCC16, true
	case set.ULEqual(VMTIUL):
		return ST0903ChecksumTag, ChecksumCRC16CCITT, true
	}
	return 0, ChecksumNone, false
}

// TagSet is a flat dictionary: the listed tags are Local Sets at any depth,
// and the listed Universal Labels are Local Sets at the top level. Every set
// may end in a checksum item when ChecksumKind is set.
type TagSet struct {
	Sets         []uint64
	ULs          [][]byte
	ChecksumTag  uint64
	ChecksumKind ChecksumKind
}

func (d TagSet) IsLocalSet(parent, key Key) bool {
	if key.Universal {
		return parent.IsZero() && slices.ContainsFunc(d.ULs, func(ul []byte) bool { return key.ULEqual(ul) })
	}
	return slices.Contains(d.Sets, key.Tag)
}

func (d TagSet) Checksum(Key) (uint64, ChecksumKind, bool) {
	if d.ChecksumKind == ChecksumNone {
		return 0, ChecksumNone, false
	}
	return d.ChecksumTag, d.ChecksumKind, true
}
