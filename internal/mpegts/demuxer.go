package mpegts

import (
	"errors"

	elog "github.com/eluv-io/log-go"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var log = elog.Get("/mp2ts-klv/mpegts")

// ErrResyncFailed is returned by Feed when no packet boundary was found
// within the resync window. The demuxer keeps scanning on later feeds.
var ErrResyncFailed = errors.New("mpegts: no sync byte within resync window")

const (
	// DefaultResyncWindow is the number of bytes scanned for a packet
	// boundary before ErrResyncFailed is reported.
	DefaultResyncWindow = 64 * PacketSize
	// DefaultMaxPESSize caps the reassembly buffer of a single PES packet.
	DefaultMaxPESSize = 1 << 20
	maxLossEvents     = 256
)

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithPIDFilter restricts reassembly to PIDs for which keep returns true.
// Without a filter every non-PSI PID is reassembled.
func WithPIDFilter(keep func(pid uint16) bool) Option {
	return func(d *Demuxer) { d.keep = keep }
}

// WithResyncWindow sets the resync scan window in bytes.
func WithResyncWindow(n int) Option {
	return func(d *Demuxer) {
		if n > 0 {
			d.resyncWindow = n
		}
	}
}

// WithMaxPESSize sets the largest PES packet that is reassembled.
func WithMaxPESSize(n int) Option {
	return func(d *Demuxer) {
		if n > 0 {
			d.maxPESSize = n
		}
	}
}

// WithProgramDiscovery enables or disables PAT/PMT parsing. It is enabled
// by default; when disabled PSI PIDs are treated like any other PID.
func WithProgramDiscovery(on bool) Option {
	return func(d *Demuxer) { d.discovery = on }
}

// WithStreamHandler registers a callback invoked for every elementary stream
// announced in a PMT, before any PES of that stream is emitted.
func WithStreamHandler(h func(StreamInfo)) Option {
	return func(d *Demuxer) { d.onStream = h }
}

// pidState is the reassembly state of one PID.
type pidState struct {
	hasCC      bool
	cc         uint8
	collecting bool
	declared   int // -1 until the PES header is buffered
	buf        []byte
}

// Demuxer splits a transport stream into PES packets. It is not safe for
// concurrent use; Stats may be read concurrently.
type Demuxer struct {
	keep         func(uint16) bool
	onStream     func(StreamInfo)
	resyncWindow int
	maxPESSize   int
	discovery    bool

	pending []byte
	synced  bool
	scanned int

	pids     map[uint16]*pidState
	programs *programs
	losses   []LossEvent
	stats    Stats
}

// NewDemuxer returns a Demuxer configured by opts.
func NewDemuxer(opts ...Option) *Demuxer {
	d := &Demuxer{
		resyncWindow: DefaultResyncWindow,
		maxPESSize:   DefaultMaxPESSize,
		discovery:    true,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Reset()
	return d
}

// Reset drops all buffered data and per-PID state. Counters are kept.
func (d *Demuxer) Reset() {
	d.pending = d.pending[:0]
	d.synced = false
	d.scanned = 0
	d.pids = make(map[uint16]*pidState)
	d.programs = newPrograms()
	d.losses = nil
}

// Stats returns the live counters.
func (d *Demuxer) Stats() *Stats {
	return &d.stats
}

// Streams returns the elementary streams announced so far.
func (d *Demuxer) Streams() map[uint16]StreamInfo {
	return maps.Clone(d.programs.streams)
}

// Losses returns and clears the continuity loss events recorded since the
// previous call.
func (d *Demuxer) Losses() []LossEvent {
	l := d.losses
	d.losses = nil
	return l
}

// Feed consumes a chunk of any size and returns the PES packets it
// completed. Partial packets are buffered until the next call. Emitted
// payloads are owned by the caller.
func (d *Demuxer) Feed(b []byte) ([]*PES, error) {
	d.stats.Bytes.Add(uint64(len(b)))
	d.stats.BytesSinceEmit.Add(uint64(len(b)))
	d.pending = append(d.pending, b...)

	var out []*PES
	var ferr error
	off := 0
	for {
		rest := d.pending[off:]
		if d.synced {
			if len(rest) < PacketSize {
				break
			}
			if rest[0] != syncByte {
				d.synced = false
				d.stats.SyncLosses.Inc()
				log.Debug("lost sync", "offset", d.stats.Bytes.Load()-uint64(len(d.pending)-off))
				continue
			}
			out = d.handlePacket(rest[:PacketSize], out)
			off += PacketSize
			continue
		}

		i, confirmed := findSync(rest)
		skip := i
		if i < 0 {
			skip = len(rest)
		}
		off += skip
		d.scanned += skip
		d.stats.SkippedBytes.Add(uint64(skip))
		if d.scanned > d.resyncWindow {
			d.scanned = 0
			d.stats.ResyncFailures.Inc()
			ferr = ErrResyncFailed
			log.Warn("resync failed", "window", d.resyncWindow)
		}
		if !confirmed {
			break
		}
		d.synced = true
		d.scanned = 0
	}
	n := copy(d.pending, d.pending[off:])
	d.pending = d.pending[:n]
	return out, ferr
}

// findSync returns the first offset holding a sync byte that is followed by
// another one a packet later. A candidate that cannot be confirmed yet is
// returned with confirmed false; -1 means no candidate at all.
func findSync(b []byte) (int, bool) {
	for i := 0; i < len(b); i++ {
		if b[i] != syncByte {
			continue
		}
		if i+PacketSize >= len(b) {
			return i, false
		}
		if b[i+PacketSize] == syncByte {
			return i, true
		}
	}
	return -1, false
}

// Flush completes unbounded PES packets still being collected and discards
// incomplete bounded ones. A trailing sync-aligned packet that could not be
// confirmed is processed first.
func (d *Demuxer) Flush() []*PES {
	var out []*PES
	for len(d.pending) >= PacketSize && d.pending[0] == syncByte {
		out = d.handlePacket(d.pending[:PacketSize], out)
		d.pending = d.pending[PacketSize:]
	}
	d.pending = d.pending[:0]

	pids := maps.Keys(d.pids)
	slices.Sort(pids)
	for _, pid := range pids {
		st := d.pids[pid]
		if !st.collecting {
			continue
		}
		out = d.finish(pid, st, out)
	}
	return out
}

func (d *Demuxer) wanted(pid uint16) bool {
	if d.keep == nil {
		return true
	}
	return d.keep(pid)
}

func (d *Demuxer) handlePacket(raw []byte, out []*PES) []*PES {
	d.stats.Packets.Inc()
	pkt, err := ParsePacket(raw)
	if err != nil {
		d.stats.CorruptPackets.Inc()
		return out
	}
	pid := pkt.PID
	if pkt.Raw.IsNull() {
		return out
	}
	if d.discovery && d.programs.isPSI(pid) {
		for _, info := range d.programs.handle(pid, &pkt.Raw) {
			log.Debug("stream announced", "pid", info.PID, "type", info.StreamType, "klv", info.KLV)
			if d.onStream != nil {
				d.onStream(info)
			}
		}
		return out
	}
	if !d.wanted(pid) || !pkt.HasPayload {
		return out
	}

	st := d.pids[pid]
	if st == nil {
		st = &pidState{}
		d.pids[pid] = st
	}
	if st.hasCC && !pkt.Discontinuity {
		expected := (st.cc + 1) & 0x0F
		if pkt.CC == st.cc {
			d.stats.Duplicates.Inc()
			return out
		}
		if pkt.CC != expected {
			d.stats.CCErrors.Inc()
			d.recordLoss(LossEvent{PID: pid, Expected: expected, Got: pkt.CC})
			d.discard(st)
		}
	}
	st.cc = pkt.CC
	st.hasCC = true

	if pkt.PUSI {
		if st.collecting {
			out = d.finish(pid, st, out)
		}
		st.collecting = true
		st.declared = -1
		st.buf = make([]byte, 0, len(pkt.Payload))
	} else if !st.collecting {
		// Continuation of a PES whose start was never seen or was discarded.
		return out
	}

	st.buf = append(st.buf, pkt.Payload...)
	if len(st.buf) > d.maxPESSize {
		d.stats.OversizePES.Inc()
		log.Debug("PES exceeds size limit", "pid", pid, "limit", d.maxPESSize)
		d.drop(st)
		return out
	}

	if st.declared < 0 {
		n, ok, err := declaredLength(st.buf)
		if err != nil {
			d.stats.CorruptPES.Inc()
			d.drop(st)
			return out
		}
		if ok {
			st.declared = n
		}
	}
	if st.declared > 0 && len(st.buf) >= pesHeaderSize+st.declared {
		st.buf = st.buf[:pesHeaderSize+st.declared]
		out = d.finish(pid, st, out)
	}
	return out
}

// finish ends the PES being collected on pid and appends it to out when it
// is complete and well formed.
func (d *Demuxer) finish(pid uint16, st *pidState, out []*PES) []*PES {
	buf := st.buf
	st.collecting = false
	st.buf = nil
	pes, err := parsePES(pid, buf)
	if err != nil {
		if err == errPESIncomplete {
			d.stats.DiscardedPES.Inc()
		} else {
			d.stats.CorruptPES.Inc()
		}
		log.Debug("dropping PES", "pid", pid, "error", err)
		return out
	}
	d.stats.EmittedPES.Inc()
	d.stats.BytesSinceEmit.Store(0)
	return append(out, pes)
}

// discard abandons a PES that lost packets.
func (d *Demuxer) discard(st *pidState) {
	if st.collecting {
		d.stats.DiscardedPES.Inc()
	}
	d.drop(st)
}

func (d *Demuxer) drop(st *pidState) {
	st.collecting = false
	st.buf = nil
}

func (d *Demuxer) recordLoss(ev LossEvent) {
	log.Warn("continuity error", "pid", ev.PID, "expected", ev.Expected, "got", ev.Got)
	if len(d.losses) < maxLossEvents {
		d.losses = append(d.losses, ev)
	}
}
