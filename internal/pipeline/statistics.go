package pipeline

import (
	"github.com/Eyevinn/mp2ts-klv/common"
	"github.com/Eyevinn/mp2ts-klv/internal/klv"
	"github.com/Eyevinn/mp2ts-klv/internal/mpegts"
)

type StreamStatistics struct {
	Stream            string   `json:"stream,omitempty"`
	PIDs              []uint16 `json:"pids"`
	Units             int      `json:"units"`
	Records           int      `json:"records"`
	Corrupt           int      `json:"corrupt,omitempty"`
	Unverified        int      `json:"unverified,omitempty"`
	DroppedUnverified int      `json:"droppedUnverified,omitempty"`
	DecodeErrors      int      `json:"decodeErrors,omitempty"`
	MaxDepth          int      `json:"maxDepth,omitempty"`
	Losses            int      `json:"losses,omitempty"`
	LostDatagrams     uint64   `json:"lostDatagrams,omitempty"`
	TimeStamps        []int64  `json:"-"`
	UnitRate          float64  `json:"unitRate,omitempty"`
	MaxStep           int64    `json:"maxStep,omitempty"`
	MinStep           int64    `json:"minStep,omitempty"`
	AvgStep           int64    `json:"avgStep,omitempty"`
	// Demux holds the transport level counters.
	Demux  mpegts.StatsSnapshot `json:"demux"`
	Errors []string             `json:"errors,omitempty"`
}

// AddUnit accounts for one decoded unit.
func (s *StreamStatistics) AddUnit(u *Unit) {
	s.Units++
	s.Unverified += u.Unverified
	s.DroppedUnverified += u.DroppedUnverified
	s.DecodeErrors += len(u.Errors) + u.ErrorsDropped
	if u.MaxDepth > s.MaxDepth {
		s.MaxDepth = u.MaxDepth
	}
	if u.HasPTS {
		s.TimeStamps = append(s.TimeStamps, u.PTS)
	}
	stack := append([]*klv.Record(nil), u.Records...)
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s.Records++
		if r.Corrupt {
			s.Corrupt++
		}
		stack = append(stack, r.Children...)
	}
}

// Finalize derives rates from the collected timestamps.
func (s *StreamStatistics) Finalize(timescale int64) {
	s.calculateUnitRate(timescale)
}

func sliceMinMaxAverage(values []int64) (min, max, avg int64) {
	if len(values) == 0 {
		return 0, 0, 0
	}

	min = values[0]
	max = values[0]
	sum := int64(0)
	for _, number := range values {
		if number < min {
			min = number
		}
		if number > max {
			max = number
		}
		sum += number
	}
	avg = sum / int64(len(values))
	return min, max, avg
}

func CalculateSteps(timestamps []int64) []int64 {
	if len(timestamps) < 2 {
		return nil
	}

	// PTS values are 33 bits and wrap after 26.5 hours
	steps := make([]int64, len(timestamps)-1)
	for i := 0; i < len(timestamps)-1; i++ {
		steps[i] = common.SignedPTSDiff(timestamps[i+1], timestamps[i])
	}
	return steps
}

// Calculate metadata rate from PTS steps
func (s *StreamStatistics) calculateUnitRate(timescale int64) {
	if len(s.TimeStamps) < 2 {
		s.Errors = append(s.Errors, "too few timestamps to calculate metadata rate")
		return
	}

	steps := CalculateSteps(s.TimeStamps)
	minStep, maxStep, avgStep := sliceMinMaxAverage(steps)
	if maxStep != minStep {
		s.Errors = append(s.Errors, "irregular PTS steps")
		s.MinStep, s.MaxStep, s.AvgStep = minStep, maxStep, avgStep
	}
	if avgStep <= 0 {
		s.Errors = append(s.Errors, "non-increasing PTS")
		return
	}
	s.UnitRate = float64(timescale) / float64(avgStep)
}
