package mpegts

import (
	"github.com/Comcast/gots/v2"
	"github.com/Comcast/gots/v2/packet"
	"github.com/Comcast/gots/v2/psi"
)

// programs follows PAT and PMT sections to learn which PIDs carry KLV.
type programs struct {
	pmtPIDs map[uint16]bool
	accs    map[uint16]packet.Accumulator
	streams map[uint16]StreamInfo
}

func newPrograms() *programs {
	return &programs{
		pmtPIDs: make(map[uint16]bool),
		accs:    make(map[uint16]packet.Accumulator),
		streams: make(map[uint16]StreamInfo),
	}
}

func (p *programs) isPSI(pid uint16) bool {
	return pid == pidPAT || p.pmtPIDs[pid]
}

// handle consumes one PSI packet and returns streams first seen in it.
func (p *programs) handle(pid uint16, pkt *packet.Packet) []StreamInfo {
	if pid == pidPAT {
		p.handlePAT(pkt)
		return nil
	}
	return p.handlePMT(pid, pkt)
}

func (p *programs) handlePAT(pkt *packet.Packet) {
	if !pkt.PayloadUnitStartIndicator() {
		return
	}
	payload, err := pkt.Payload()
	if err != nil {
		return
	}
	pat, err := psi.NewPAT(payload)
	if err != nil {
		log.Debug("bad PAT", "error", err)
		return
	}
	for _, pmtPID := range pat.ProgramMap() {
		pid := uint16(pmtPID)
		if !p.pmtPIDs[pid] {
			log.Debug("found PMT", "pid", pid)
			p.pmtPIDs[pid] = true
		}
	}
}

func (p *programs) handlePMT(pid uint16, pkt *packet.Packet) []StreamInfo {
	acc, ok := p.accs[pid]
	if !ok {
		acc = packet.NewAccumulator(psi.PmtAccumulatorDoneFunc)
		p.accs[pid] = acc
	}
	_, err := acc.WritePacket(pkt)
	if err == nil {
		return nil
	}
	delete(p.accs, pid)
	if err != gots.ErrAccumulatorDone {
		return nil
	}
	pmt, err := psi.NewPMT(acc.Bytes())
	if err != nil {
		log.Debug("bad PMT", "pid", pid, "error", err)
		return nil
	}
	var found []StreamInfo
	for _, es := range pmt.ElementaryStreams() {
		info := StreamInfo{
			PID:        uint16(es.ElementaryPid()),
			StreamType: es.StreamType(),
			KLV:        isKLVStream(es),
		}
		if prev, seen := p.streams[info.PID]; seen && prev == info {
			continue
		}
		p.streams[info.PID] = info
		found = append(found, info)
	}
	return found
}

// isKLVStream recognizes metadata carried in PES: stream type 0x15, or
// private data with a registration or metadata descriptor.
func isKLVStream(es psi.PmtElementaryStream) bool {
	switch es.StreamType() {
	case StreamTypeMetadataPES:
		return true
	case StreamTypePrivateData:
		for _, desc := range es.Descriptors() {
			switch desc.Tag() {
			case DescriptorRegistration, DescriptorMetadata:
				return true
			}
		}
	}
	return false
}
