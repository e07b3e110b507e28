package common

import (
	"github.com/asticode/go-astits"

	"github.com/Eyevinn/mp2ts-klv/internal/mpegts"
)

type ElementaryStreamInfo struct {
	PID        uint16 `json:"pid"`
	StreamType uint8  `json:"streamType"`
	Codec      string `json:"codec"`
	Type       string `json:"type"`
	KLV        bool   `json:"klv,omitempty"`
}

// ParseAstitsElementaryStreamInfo classifies a PMT entry. Unknown stream
// types are reported with an empty codec.
func ParseAstitsElementaryStreamInfo(es *astits.PMTElementaryStream) *ElementaryStreamInfo {
	info := &ElementaryStreamInfo{PID: es.ElementaryPID, StreamType: uint8(es.StreamType)}
	switch es.StreamType {
	case astits.StreamTypeH264Video:
		info.Codec, info.Type = "AVC", "video"
	case astits.StreamTypeH265Video:
		info.Codec, info.Type = "HEVC", "video"
	case astits.StreamTypeAACAudio:
		info.Codec, info.Type = "AAC", "audio"
	case astits.StreamTypeSCTE35:
		info.Codec, info.Type = "SCTE35", "cue"
	}
	if isAstitsKLV(es) {
		info.Codec, info.Type, info.KLV = "KLV", "metadata", true
	}
	return info
}

func isAstitsKLV(es *astits.PMTElementaryStream) bool {
	switch uint8(es.StreamType) {
	case mpegts.StreamTypeMetadataPES:
		return true
	case mpegts.StreamTypePrivateData:
	default:
		return false
	}
	for _, d := range es.ElementaryStreamDescriptors {
		switch d.Tag {
		case mpegts.DescriptorMetadata:
			return true
		case astits.DescriptorTagRegistration:
			if d.Registration != nil && d.Registration.FormatIdentifier == mpegts.FormatKLVA {
				return true
			}
		}
	}
	return false
}
