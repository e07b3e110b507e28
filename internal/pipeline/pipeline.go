// Package pipeline wires the transport demultiplexer, the KLV extractor and
// the KLV decoder into a per-stream pipeline, and runs one pipeline per
// input stream concurrently.
package pipeline

import (
	"errors"

	elog "github.com/eluv-io/log-go"
	"go.uber.org/atomic"

	"github.com/Eyevinn/mp2ts-klv/internal/klv"
	"github.com/Eyevinn/mp2ts-klv/internal/mpegts"
)

var log = elog.Get("/mp2ts-klv/pipeline")

var (
	// ErrStalled is returned when StallBytes of input produced no record.
	ErrStalled = errors.New("pipeline: no KLV record within stall limit")
	// ErrClosed is returned by Feed after Close.
	ErrClosed = errors.New("pipeline: closed")
)

// AutoPID selects metadata PIDs from the PMT.
const AutoPID = -1

// Config configures one pipeline.
type Config struct {
	// MetadataPID is the PID carrying KLV, or AutoPID.
	MetadataPID    int
	DropUnverified bool
	KLV            klv.Config
	ResyncWindow   int
	MaxPESSize     int
	// StallBytes is the amount of input without a decoded record after which
	// Feed reports ErrStalled. 0 disables the check.
	StallBytes uint64
}

// DefaultConfig auto-detects the metadata PID and uses default limits.
func DefaultConfig() Config {
	return Config{
		MetadataPID:  AutoPID,
		ResyncWindow: mpegts.DefaultResyncWindow,
		MaxPESSize:   mpegts.DefaultMaxPESSize,
	}
}

// Unit is the decoded content of one KLV access unit.
type Unit struct {
	PID               uint16
	PTS               int64
	HasPTS            bool
	Size              int
	Records           []*klv.Record
	Errors            []klv.DecodeError
	ErrorsDropped     int
	MaxDepth          int
	Unverified        int
	DroppedUnverified int
}

// Pipeline turns transport stream bytes into decoded units. A Pipeline
// serves one stream and is not safe for concurrent use.
type Pipeline struct {
	cfg         Config
	dmx         *mpegts.Demuxer
	ext         *Extractor
	dec         *klv.Decoder
	stats       *StreamStatistics
	sinceRecord atomic.Uint64
	closed      bool
}

// New returns a pipeline configured by cfg.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		ext:   NewExtractor(),
		dec:   klv.NewDecoder(cfg.KLV),
		stats: &StreamStatistics{},
	}
	opts := []mpegts.Option{
		mpegts.WithPIDFilter(p.ext.Registered),
		mpegts.WithResyncWindow(cfg.ResyncWindow),
		mpegts.WithMaxPESSize(cfg.MaxPESSize),
	}
	if cfg.MetadataPID >= 0 {
		p.ext.Register(uint16(cfg.MetadataPID))
	} else {
		opts = append(opts, mpegts.WithStreamHandler(p.onStream))
	}
	p.dmx = mpegts.NewDemuxer(opts...)
	return p
}

func (p *Pipeline) onStream(info mpegts.StreamInfo) {
	if !info.KLV || p.ext.Registered(info.PID) {
		return
	}
	log.Info("metadata stream detected", "pid", info.PID, "streamType", info.StreamType)
	p.ext.Register(info.PID)
}

// Feed consumes a chunk of transport stream and returns the units it
// completed. mpegts.ErrResyncFailed and ErrStalled are reported together with
// any units decoded from the chunk; feeding may continue after either.
func (p *Pipeline) Feed(b []byte) ([]*Unit, error) {
	if p.closed {
		return nil, ErrClosed
	}
	pes, err := p.dmx.Feed(b)
	p.sinceRecord.Add(uint64(len(b)))
	units := p.decodeAll(pes)
	p.collectLosses()
	if err != nil {
		return units, err
	}
	if p.cfg.StallBytes > 0 && p.sinceRecord.Load() > p.cfg.StallBytes {
		return units, ErrStalled
	}
	return units, nil
}

// Flush decodes what is still buffered at end of input.
func (p *Pipeline) Flush() []*Unit {
	if p.closed {
		return nil
	}
	units := p.decodeAll(p.dmx.Flush())
	p.collectLosses()
	return units
}

// Close flushes the pipeline and finalizes its statistics. Later calls to
// Feed fail with ErrClosed.
func (p *Pipeline) Close() []*Unit {
	units := p.Flush()
	if !p.closed {
		p.closed = true
		p.stats.PIDs = p.ext.PIDs()
		p.stats.Demux = p.dmx.Stats().Snapshot()
	}
	return units
}

// BytesSinceRecord is the input consumed since the last unit with at least
// one record.
func (p *Pipeline) BytesSinceRecord() uint64 {
	return p.sinceRecord.Load()
}

// Stats returns the statistics collected so far.
func (p *Pipeline) Stats() *StreamStatistics {
	return p.stats
}

// DemuxStats returns the live demultiplexer counters.
func (p *Pipeline) DemuxStats() *mpegts.Stats {
	return p.dmx.Stats()
}

func (p *Pipeline) decodeAll(pes []*mpegts.PES) []*Unit {
	var units []*Unit
	for _, pkt := range pes {
		if u := p.decode(pkt); u != nil {
			units = append(units, u)
		}
	}
	return units
}

func (p *Pipeline) decode(pkt *mpegts.PES) *Unit {
	buf, ok := p.ext.Extract(pkt)
	if !ok {
		return nil
	}
	res := p.dec.Decode(buf)
	u := &Unit{
		PID:           pkt.PID,
		PTS:           pkt.PTS,
		HasPTS:        pkt.HasPTS,
		Size:          buf.Len(),
		Records:       res.Records,
		Errors:        res.Context.Errors,
		ErrorsDropped: res.Context.ErrorsDropped,
		MaxDepth:      res.Context.MaxDepthSeen,
	}
	for _, r := range res.Records {
		if r.Unverified {
			u.Unverified++
		}
	}
	if p.cfg.DropUnverified && u.Unverified > 0 {
		kept := u.Records[:0:0]
		for _, r := range u.Records {
			if !r.Unverified {
				kept = append(kept, r)
			}
		}
		u.DroppedUnverified = len(u.Records) - len(kept)
		u.Records = kept
	}
	if len(u.Errors) > 0 {
		log.Debug("unit decoded with errors", "pid", u.PID, "errors", len(u.Errors)+u.ErrorsDropped)
	}
	if len(u.Records) > 0 {
		p.sinceRecord.Store(0)
	}
	p.stats.AddUnit(u)
	return u
}

func (p *Pipeline) collectLosses() {
	for _, ev := range p.dmx.Losses() {
		if p.ext.Registered(ev.PID) {
			p.stats.Losses++
		}
	}
}
