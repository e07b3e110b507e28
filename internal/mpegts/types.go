// Package mpegts demultiplexes an MPEG-2 Transport Stream fed in arbitrary
// chunks into per-PID PES packets. It re-aligns to the 188-byte packet grid
// after sync loss, tracks continuity counters and discards (never stitches)
// PES packets that span a packet loss.
package mpegts

import (
	"go.uber.org/atomic"
)

const (
	// PacketSize is the size of a transport stream packet.
	PacketSize = 188
	syncByte   = 0x47
	pidPAT     = 0x0000
)

// Stream types and descriptor tags used to recognize KLV metadata streams.
const (
	StreamTypePrivateData  = 0x06
	StreamTypeMetadataPES  = 0x15
	DescriptorRegistration = 0x05
	DescriptorMetadata     = 0x26
	// FormatKLVA is the registration format identifier "KLVA".
	FormatKLVA = 0x4B4C5641
)

// PES is a reassembled Packetized Elementary Stream packet.
type PES struct {
	PID            uint16
	StreamID       uint8
	DeclaredLength int // 0 means unbounded
	HasPTS         bool
	PTS            int64
	HasDTS         bool
	DTS            int64
	Payload        []byte
}

// LossEvent records a continuity counter gap on one PID.
type LossEvent struct {
	PID      uint16
	Expected uint8
	Got      uint8
}

// StreamInfo describes an elementary stream announced in a PMT.
type StreamInfo struct {
	PID        uint16
	StreamType uint8
	KLV        bool
}

// Stats counts demultiplexer events. Counters may be read from another
// goroutine while the demuxer is being fed.
type Stats struct {
	Bytes          atomic.Uint64
	Packets        atomic.Uint64
	SyncLosses     atomic.Uint64
	ResyncFailures atomic.Uint64
	SkippedBytes   atomic.Uint64
	CorruptPackets atomic.Uint64
	CCErrors       atomic.Uint64
	Duplicates     atomic.Uint64
	EmittedPES     atomic.Uint64
	DiscardedPES   atomic.Uint64
	OversizePES    atomic.Uint64
	CorruptPES     atomic.Uint64
	BytesSinceEmit atomic.Uint64
}

// StatsSnapshot is a plain copy of Stats for reporting.
type StatsSnapshot struct {
	Bytes          uint64 `json:"bytes"`
	Packets        uint64 `json:"packets"`
	SyncLosses     uint64 `json:"syncLosses,omitempty"`
	ResyncFailures uint64 `json:"resyncFailures,omitempty"`
	SkippedBytes   uint64 `json:"skippedBytes,omitempty"`
	CorruptPackets uint64 `json:"corruptPackets,omitempty"`
	CCErrors       uint64 `json:"ccErrors,omitempty"`
	Duplicates     uint64 `json:"duplicates,omitempty"`
	EmittedPES     uint64 `json:"emittedPES"`
	DiscardedPES   uint64 `json:"discardedPES,omitempty"`
	OversizePES    uint64 `json:"oversizePES,omitempty"`
	CorruptPES     uint64 `json:"corruptPES,omitempty"`
	BytesSinceEmit uint64 `json:"bytesSinceEmit"`
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Bytes:          s.Bytes.Load(),
		Packets:        s.Packets.Load(),
		SyncLosses:     s.SyncLosses.Load(),
		ResyncFailures: s.ResyncFailures.Load(),
		SkippedBytes:   s.SkippedBytes.Load(),
		CorruptPackets: s.CorruptPackets.Load(),
		CCErrors:       s.CCErrors.Load(),
		Duplicates:     s.Duplicates.Load(),
		EmittedPES:     s.EmittedPES.Load(),
		DiscardedPES:   s.DiscardedPES.Load(),
		OversizePES:    s.OversizePES.Load(),
		CorruptPES:     s.CorruptPES.Load(),
		BytesSinceEmit: s.BytesSinceEmit.Load(),
	}
}
