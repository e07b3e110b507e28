package mpegts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Eyevinn/mp4ff/bits"

	"github.com/Eyevinn/mp2ts-klv/internal/cursor"
)

const pesHeaderSize = 6

var (
	errPESStartCode  = errors.New("mpegts: invalid PES start code")
	errPESIncomplete = errors.New("mpegts: PES shorter than declared length")
)

// hasOptionalHeader reports whether PES packets with streamID carry the
// optional PES header. padding_stream, private_stream_2, ECM, EMM,
// program_stream_directory, DSMCC and H.222.1 type E do not.
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

// declaredLength reads PES_packet_length from a PES prefix. ok is false
// until the fixed header is buffered or when the start code is wrong.
func declaredLength(b []byte) (n int, ok bool, err error) {
	c := cursor.New(b)
	prefix, err := c.Next(3)
	if err != nil {
		return 0, false, nil
	}
	if prefix[0] != 0x00 || prefix[1] != 0x00 || prefix[2] != 0x01 {
		return 0, false, errPESStartCode
	}
	if err := c.Skip(1); err != nil {
		return 0, false, nil
	}
	l, err := c.Uint16()
	if err != nil {
		return 0, false, nil
	}
	return int(l), true, nil
}

// parsePES parses a complete PES packet. The payload aliases b.
func parsePES(pid uint16, b []byte) (*PES, error) {
	c := cursor.New(b)
	prefix, err := c.Next(3)
	if err != nil {
		return nil, fmt.Errorf("mpegts: PES too short on PID %d: %w", pid, err)
	}
	if prefix[0] != 0x00 || prefix[1] != 0x00 || prefix[2] != 0x01 {
		return nil, errPESStartCode
	}
	streamID, err := c.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("mpegts: PES too short on PID %d: %w", pid, err)
	}
	length, err := c.Uint16()
	if err != nil {
		return nil, fmt.Errorf("mpegts: PES too short on PID %d: %w", pid, err)
	}
	pes := &PES{PID: pid, StreamID: streamID, DeclaredLength: int(length)}

	body := c
	if length > 0 {
		if body, err = c.Sub(int(length)); err != nil {
			return nil, errPESIncomplete
		}
	}

	if !hasOptionalHeader(streamID) {
		pes.Payload = body.Rest()
		return pes, nil
	}

	flags, err := body.Next(2)
	if err != nil {
		return nil, fmt.Errorf("mpegts: PES optional header too short on PID %d: %w", pid, err)
	}
	hdrLen, err := body.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("mpegts: PES optional header too short on PID %d: %w", pid, err)
	}
	hdr, err := body.Sub(int(hdrLen))
	if err != nil {
		return nil, fmt.Errorf("mpegts: PES header data length %d exceeds packet on PID %d: %w", hdrLen, pid, err)
	}

	ptsDTSIndicator := flags[1] >> 6
	if ptsDTSIndicator&0x02 != 0 {
		field, err := hdr.Next(5)
		if err != nil {
			return nil, fmt.Errorf("mpegts: PES PTS truncated on PID %d: %w", pid, err)
		}
		if pes.PTS, err = parseTimestamp(field); err != nil {
			return nil, err
		}
		pes.HasPTS = true
	}
	if ptsDTSIndicator == 0x03 {
		field, err := hdr.Next(5)
		if err != nil {
			return nil, fmt.Errorf("mpegts: PES DTS truncated on PID %d: %w", pid, err)
		}
		if pes.DTS, err = parseTimestamp(field); err != nil {
			return nil, err
		}
		pes.HasDTS = true
	}

	pes.Payload = body.Rest()
	return pes, nil
}

// parseTimestamp decodes a 33-bit PTS/DTS from its 5-byte field:
// 4-bit prefix, 3 bits, marker, 15 bits, marker, 15 bits, marker.
func parseTimestamp(field []byte) (int64, error) {
	r := bits.NewReader(bytes.NewReader(field))
	_ = r.Read(4)
	hi := r.Read(3)
	_ = r.Read(1)
	mid := r.Read(15)
	_ = r.Read(1)
	lo := r.Read(15)
	_ = r.Read(1)
	if err := r.AccError(); err != nil {
		return 0, fmt.Errorf("mpegts: reading timestamp: %w", err)
	}
	return int64(uint64(hi)<<30 | uint64(mid)<<15 | uint64(lo)), nil
}
