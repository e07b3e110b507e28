package pipeline

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/Eyevinn/mp2ts-klv/internal/klv"
	"github.com/Eyevinn/mp2ts-klv/internal/mpegts"
)

// Extractor selects the PES packets of registered metadata PIDs and hands
// their payload on as KLV access units, byte for byte.
type Extractor struct {
	pids map[uint16]struct{}
}

// NewExtractor returns an extractor with pids registered.
func NewExtractor(pids ...uint16) *Extractor {
	e := &Extractor{pids: make(map[uint16]struct{})}
	for _, pid := range pids {
		e.Register(pid)
	}
	return e
}

// Register marks pid as carrying KLV metadata.
func (e *Extractor) Register(pid uint16) {
	e.pids[pid] = struct{}{}
}

// Registered reports whether pid carries KLV metadata.
func (e *Extractor) Registered(pid uint16) bool {
	_, ok := e.pids[pid]
	return ok
}

// PIDs lists the registered PIDs in ascending order.
func (e *Extractor) PIDs() []uint16 {
	pids := maps.Keys(e.pids)
	slices.Sort(pids)
	return pids
}

// Extract returns the payload of p as an access unit when p belongs to a
// registered PID.
func (e *Extractor) Extract(p *mpegts.PES) (klv.Buffer, bool) {
	if p == nil || !e.Registered(p.PID) {
		return klv.Buffer{}, false
	}
	return klv.NewBuffer(p.Payload), true
}
