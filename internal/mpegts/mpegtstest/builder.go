// Package mpegtstest builds synthetic transport streams for tests.
package mpegtstest

import (
	"github.com/Comcast/gots/v2"
	"github.com/Comcast/gots/v2/packet"
)

const payloadSize = packet.PacketSize - 4

// Stream accumulates packets and keeps a continuity counter per PID.
type Stream struct {
	cc  map[uint16]uint8
	buf []byte
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{cc: make(map[uint16]uint8)}
}

// Bytes returns the packets written so far.
func (s *Stream) Bytes() []byte {
	return s.buf
}

// NextCC returns the continuity counter the next packet on pid will use.
func (s *Stream) NextCC(pid uint16) uint8 {
	return s.cc[pid]
}

// SetCC overrides the continuity counter of the next packet on pid.
func (s *Stream) SetCC(pid uint16, cc uint8) {
	s.cc[pid] = cc & 0x0F
}

// Write splits data into packets on pid. The first packet carries PUSI.
// It returns the packets written.
func (s *Stream) Write(pid uint16, data []byte) [][]byte {
	var pkts [][]byte
	first := true
	for first || len(data) > 0 {
		n := len(data)
		if n > payloadSize {
			n = payloadSize
		}
		cc := s.cc[pid]
		s.cc[pid] = (cc + 1) & 0x0F
		pkt := Packet(pid, cc, first, data[:n])
		pkts = append(pkts, pkt)
		s.buf = append(s.buf, pkt...)
		data = data[n:]
		first = false
	}
	return pkts
}

// WritePSI writes a section with a leading pointer field on pid.
func (s *Stream) WritePSI(pid uint16, section []byte) {
	s.Write(pid, append([]byte{0x00}, section...))
}

// Packet builds one packet. Payloads shorter than 184 bytes are padded with
// adaptation field stuffing; an empty payload gives an adaptation-only packet.
func Packet(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	if len(payload) > payloadSize {
		panic("mpegtstest: payload does not fit in one packet")
	}
	if len(payload) == 0 {
		return AdaptationOnly(pid, cc, false)
	}
	pkt := packet.New()
	pkt.SetPID(int(pid))
	pkt.SetPayloadUnitStartIndicator(pusi)
	if _, err := pkt.SetPayload(payload); err != nil {
		panic(err)
	}
	pkt.SetContinuityCounter(int(cc))
	return pkt[:]
}

// AdaptationOnly builds a packet without payload.
func AdaptationOnly(pid uint16, cc uint8, discontinuity bool) []byte {
	pkt := packet.New()
	pkt.SetPID(int(pid))
	if err := pkt.SetAdaptationFieldControl(packet.AdaptationFieldFlag); err != nil {
		panic(err)
	}
	af, err := pkt.AdaptationField()
	if err != nil {
		panic(err)
	}
	if err := af.SetDiscontinuity(discontinuity); err != nil {
		panic(err)
	}
	pkt.SetContinuityCounter(int(cc))
	return pkt[:]
}

// SetDiscontinuity sets the discontinuity indicator of a packet built by
// Packet. The packet must carry a non-empty adaptation field.
func SetDiscontinuity(raw []byte) {
	pkt := (*packet.Packet)(raw)
	af, err := pkt.AdaptationField()
	if err != nil {
		panic(err)
	}
	if err := af.SetDiscontinuity(true); err != nil {
		panic(err)
	}
}

// PES builds a PES packet with stream id 0xFC (metadata stream). With
// bounded set, PES_packet_length is filled in; otherwise it is 0.
func PES(data []byte, pts int64, hasPTS, bounded bool) []byte {
	return PESWithStreamID(0xFC, data, pts, hasPTS, bounded)
}

// PESWithStreamID builds a PES packet with the given stream id.
func PESWithStreamID(streamID byte, data []byte, pts int64, hasPTS, bounded bool) []byte {
	var hdr []byte
	flags2 := byte(0x00)
	if hasPTS {
		flags2 = 0x80
		hdr = EncodeTimestamp(0x2, pts)
	}
	pes := []byte{0x00, 0x00, 0x01, streamID, 0x00, 0x00, 0x84, flags2, byte(len(hdr))}
	pes = append(pes, hdr...)
	pes = append(pes, data...)
	if bounded {
		n := len(pes) - 6
		pes[4] = byte(n >> 8)
		pes[5] = byte(n)
	}
	return pes
}

// EncodeTimestamp encodes a 33-bit PTS/DTS with a 4-bit prefix.
func EncodeTimestamp(prefix byte, ts int64) []byte {
	return []byte{
		prefix<<4 | byte(ts>>29)&0x0E | 0x01,
		byte(ts >> 22),
		byte(ts>>14)&0xFE | 0x01,
		byte(ts >> 7),
		byte(ts<<1)&0xFE | 0x01,
	}
}

// PAT builds a PAT section for a single program.
func PAT(program, pmtPID uint16) []byte {
	s := []byte{
		0x00, 0xB0, 0x00,
		0x00, 0x01, // transport_stream_id
		0xC1, 0x00, 0x00,
		byte(program >> 8), byte(program),
		0xE0 | byte(pmtPID>>8), byte(pmtPID),
	}
	return finishSection(s)
}

// ElementaryStream describes one PMT entry.
type ElementaryStream struct {
	StreamType  uint8
	PID         uint16
	Descriptors []byte
}

// RegistrationDescriptor returns a registration descriptor with format.
func RegistrationDescriptor(format string) []byte {
	return append([]byte{0x05, byte(len(format))}, format...)
}

// PMT builds a PMT section.
func PMT(program, pcrPID uint16, streams ...ElementaryStream) []byte {
	s := []byte{
		0x02, 0xB0, 0x00,
		byte(program >> 8), byte(program),
		0xC1, 0x00, 0x00,
		0xE0 | byte(pcrPID>>8), byte(pcrPID),
		0xF0, 0x00,
	}
	for _, es := range streams {
		n := len(es.Descriptors)
		s = append(s, es.StreamType, 0xE0|byte(es.PID>>8), byte(es.PID), 0xF0|byte(n>>8), byte(n))
		s = append(s, es.Descriptors...)
	}
	return finishSection(s)
}

// finishSection fills in section_length and appends the CRC.
func finishSection(s []byte) []byte {
	n := len(s) - 3 + 4
	s[1] |= byte(n>>8) & 0x0F
	s[2] = byte(n)
	return append(s, gots.ComputeCRC(s)...)
}
