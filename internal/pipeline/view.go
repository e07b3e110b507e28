package pipeline

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/Eyevinn/mp2ts-klv/internal/klv"
)

// UnitInfo is the JSON view of a Unit.
type UnitInfo struct {
	Stream            string       `json:"stream,omitempty"`
	PID               uint16       `json:"pid"`
	PTS               *int64       `json:"pts,omitempty"`
	Size              int          `json:"size"`
	Records           []RecordInfo `json:"records"`
	Errors            []ErrorInfo  `json:"errors,omitempty"`
	ErrorsDropped     int          `json:"errorsDropped,omitempty"`
	Unverified        int          `json:"unverified,omitempty"`
	DroppedUnverified int          `json:"droppedUnverified,omitempty"`
}

type RecordInfo struct {
	UL         string       `json:"ul,omitempty"`
	Tag        *uint64      `json:"tag,omitempty"`
	Offset     int          `json:"offset"`
	Length     int          `json:"length"`
	Value      string       `json:"value,omitempty"`
	Timestamp  string       `json:"timestamp,omitempty"`
	Children   []RecordInfo `json:"children,omitempty"`
	Corrupt    bool         `json:"corrupt,omitempty"`
	Fault      string       `json:"fault,omitempty"`
	Unverified bool         `json:"unverified,omitempty"`
}

type ErrorInfo struct {
	Fault  string `json:"fault"`
	Offset int    `json:"offset"`
	Depth  int    `json:"depth"`
	Key    string `json:"key,omitempty"`
}

// ToUnitInfo converts u for printing.
func ToUnitInfo(stream string, u *Unit) UnitInfo {
	info := UnitInfo{
		Stream:            stream,
		PID:               u.PID,
		Size:              u.Size,
		Records:           make([]RecordInfo, 0, len(u.Records)),
		ErrorsDropped:     u.ErrorsDropped,
		Unverified:        u.Unverified,
		DroppedUnverified: u.DroppedUnverified,
	}
	if u.HasPTS {
		pts := u.PTS
		info.PTS = &pts
	}
	info.Records = append(info.Records, toRecordInfos(u.Records)...)
	for _, e := range u.Errors {
		info.Errors = append(info.Errors, toErrorInfo(e))
	}
	return info
}

// toRecordInfos converts a record tree without recursion. A frame holds the
// converted children of one Local Set until its last child is done.
func toRecordInfos(records []*klv.Record) []RecordInfo {
	type frame struct {
		info    RecordInfo
		key     klv.Key
		records []*klv.Record
		next    int
		out     []RecordInfo
	}
	stack := []frame{{records: records}}
	for {
		top := &stack[len(stack)-1]
		if top.next == len(top.records) {
			if len(stack) == 1 {
				return top.out
			}
			done := top.info
			done.Children = top.out
			stack = stack[:len(stack)-1]
			parent := &stack[len(stack)-1]
			parent.out = append(parent.out, done)
			continue
		}
		r := top.records[top.next]
		top.next++
		ri := toRecordInfo(top.key, r)
		if len(r.Children) == 0 {
			top.out = append(top.out, ri)
			continue
		}
		stack = append(stack, frame{info: ri, key: r.Key, records: r.Children})
	}
}

// toRecordInfo converts r without its children.
func toRecordInfo(parent klv.Key, r *klv.Record) RecordInfo {
	ri := RecordInfo{
		Offset:     r.Offset,
		Length:     r.Length,
		Corrupt:    r.Corrupt,
		Unverified: r.Unverified,
	}
	if r.Key.Universal {
		ri.UL = hex.EncodeToString(r.Key.Raw)
	} else {
		tag := r.Key.Tag
		ri.Tag = &tag
	}
	if r.Fault != klv.FaultNone {
		ri.Fault = r.Fault.String()
	}
	if !r.LocalSet || r.Corrupt {
		ri.Value = hex.EncodeToString(r.Value)
	}
	if parent.ULEqual(klv.UASDatalinkUL) && !r.Key.Universal && r.Key.Tag == klv.ST0601Timestamp {
		ri.Timestamp = toTimestamp(r.Value)
	}
	return ri
}

// toTimestamp formats an ST 0601 precision time stamp, microseconds since
// the POSIX epoch.
func toTimestamp(v []byte) string {
	if len(v) != 8 {
		return ""
	}
	us := binary.BigEndian.Uint64(v)
	return time.UnixMicro(int64(us)).UTC().Format(time.RFC3339Nano)
}

func toErrorInfo(e klv.DecodeError) ErrorInfo {
	ei := ErrorInfo{Fault: e.Fault.String(), Offset: e.Offset, Depth: e.Depth}
	if !e.Key.IsZero() {
		ei.Key = e.Key.String()
	}
	return ei
}
