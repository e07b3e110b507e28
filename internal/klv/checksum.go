package klv

// ChecksumKind selects the algorithm of a trailing checksum item.
type ChecksumKind uint8

const (
	ChecksumNone ChecksumKind = iota
	// ChecksumBCC16 is the 16-bit running sum of MISB ST 0601: even-indexed
	// bytes are added shifted left by 8.
	ChecksumBCC16
	// ChecksumCRC16CCITT is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF).
	ChecksumCRC16CCITT
)

func (k ChecksumKind) String() string {
	switch k {
	case ChecksumBCC16:
		return "bcc16"
	case ChecksumCRC16CCITT:
		return "crc16-ccitt"
	}
	return "none"
}

// BCC16 computes the ST 0601 checksum of b.
func BCC16(b []byte) uint16 {
	var bcc uint16
	for i, v := range b {
		bcc += uint16(v) << (8 * uint((i+1)%2))
	}
	return bcc
}

var crc16Table = makeCRC16Table(0x1021)

func makeCRC16Table(poly uint16) [256]uint16 {
	var t [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// CRC16CCITT computes CRC-16/CCITT-FALSE of b.
func CRC16CCITT(b []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, v := range b {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^v]
	}
	return crc
}

// Sum computes the checksum of b with algorithm k.
func (k ChecksumKind) Sum(b []byte) uint16 {
	switch k {
	case ChecksumBCC16:
		return BCC16(b)
	case ChecksumCRC16CCITT:
		return CRC16CCITT(b)
	}
	return 0
}

// verifyChecksum checks the trailing checksum item of a Local Set. The sum
// covers the set from its key up to and including the checksum item's
// length field. It returns present=false when the set carries no checksum.
func verifyChecksum(data []byte, set *Record, tag uint64, kind ChecksumKind) (present, ok bool) {
	if len(set.Children) == 0 {
		return false, false
	}
	last := set.Children[len(set.Children)-1]
	if last.Key.Universal || last.Key.Tag != tag {
		return false, false
	}
	if last.Length != 2 || last.End() != set.End() {
		return true, false
	}
	if set.Offset < 0 || last.ValueOffset > len(data) || set.Offset > last.ValueOffset {
		return true, false
	}
	want := uint16(last.Value[0])<<8 | uint16(last.Value[1])
	return true, kind.Sum(data[set.Offset:last.ValueOffset]) == want
}
