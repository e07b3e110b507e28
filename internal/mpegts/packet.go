package mpegts

import (
	"errors"

	"github.com/Comcast/gots/v2/packet"
)

var (
	errPacketLength     = errors.New("mpegts: packet is not 188 bytes")
	errTransportError   = errors.New("mpegts: transport error indicator set")
	errAdaptationLength = errors.New("mpegts: adaptation field overruns packet")
)

// maxAdaptationLength is the largest adaptation_field_length of a packet
// without payload. A packet with payload must leave at least one byte.
const maxAdaptationLength = PacketSize - 5

// Packet is a transport packet with its header fields decoded.
type Packet struct {
	Raw           packet.Packet
	PID           uint16
	CC            uint8
	PUSI          bool
	Discontinuity bool
	HasPayload    bool
	Payload       []byte
}

// ParsePacket decodes the header of a 188-byte packet. The returned packet
// holds a copy of raw.
func ParsePacket(raw []byte) (*Packet, error) {
	if len(raw) != PacketSize {
		return nil, errPacketLength
	}
	p := &Packet{}
	copy(p.Raw[:], raw)
	if p.Raw.TransportErrorIndicator() {
		return nil, errTransportError
	}
	if err := p.Raw.CheckErrors(); err != nil {
		return nil, err
	}
	p.PID = uint16(p.Raw.PID())
	p.CC = uint8(p.Raw.ContinuityCounter())
	p.PUSI = p.Raw.PayloadUnitStartIndicator()
	p.HasPayload = p.Raw.HasPayload()
	if p.Raw.HasAdaptationField() {
		af, err := p.Raw.AdaptationField()
		if err != nil {
			return nil, err
		}
		limit := maxAdaptationLength
		if p.HasPayload {
			limit--
		}
		if af.Length() > limit {
			return nil, errAdaptationLength
		}
		// An empty adaptation field has no flags byte.
		p.Discontinuity, _ = af.Discontinuity()
	}
	if p.HasPayload {
		payload, err := p.Raw.Payload()
		if err != nil {
			return nil, err
		}
		p.Payload = payload
	}
	return p, nil
}
