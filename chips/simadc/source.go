package simadc

import (
	"math"

	"adcore/kernel"
)

// Source produces the input voltage of a channel over time.
type Source interface {
	// Microvolts returns the input at the given timer tick.
	Microvolts(tick uint32) int32
}

// Constant is a fixed input.
type Constant struct {
	UV int32
}

func (c Constant) Microvolts(uint32) int32 {
	return c.UV
}

// Ramp is a sawtooth rising from MinUV to MaxUV every PeriodTicks.
type Ramp struct {
	MinUV, MaxUV int32
	PeriodTicks  uint32
}

func (r Ramp) Microvolts(tick uint32) int32 {
	if r.PeriodTicks == 0 {
		return r.MinUV
	}
	phase := tick % r.PeriodTicks
	span := int64(r.MaxUV) - int64(r.MinUV)
	return r.MinUV + int32(span*int64(phase)/int64(r.PeriodTicks))
}

// Sine oscillates around OffsetUV with the given amplitude and frequency.
type Sine struct {
	OffsetUV    int32
	AmplitudeUV int32
	FreqHz      float64
}

func (s Sine) Microvolts(tick uint32) int32 {
	t := float64(tick) / kernel.TimerFreq
	return s.OffsetUV + int32(float64(s.AmplitudeUV)*math.Sin(2*math.Pi*s.FreqHz*t))
}
