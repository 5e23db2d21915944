// Package simadc simulates an ADC peripheral on the kernel timer queue.
//
// Conversions complete when the queue is advanced past their due time, so
// results always arrive from the timer dispatch and never from inside the
// call that requested them.
package simadc

import (
	"tinygo.org/x/drivers"

	"adcore/hil/adc"
	"adcore/kernel"
)

type state uint8

const (
	stateIdle state = iota
	stateSingle
	stateContinuous
	stateHighSpeed
)

// Config describes the simulated peripheral.
type Config struct {
	ResolutionBits  uint
	ReferenceMV     uint32 // 0 means unknown
	ConversionTicks uint32 // latency of a single conversion
	Sources         []Source
}

type loan struct {
	buf    *adc.Buffer
	length int
}

// Peripheral is a simulated converter with the basic and buffered
// capabilities.
type Peripheral struct {
	timers *kernel.TimerQueue
	cfg    Config

	client   adc.Client
	hsClient adc.HighSpeedClient

	state   state
	channel adc.Channel
	period  uint32
	timer   kernel.Timer
	armed   bool

	// gen changes whenever an operation starts or stops, so a timer
	// handler can tell whether its client restarted the hardware.
	gen uint32

	// Buffers held in high-speed mode: cur is being filled from curStart,
	// next waits behind it, parked holds zero-length buffers.
	cur      *loan
	next     *loan
	curStart uint32
	parked   []*adc.Buffer

	latched []int32
}

// New creates a peripheral driven by timers.
func New(timers *kernel.TimerQueue, cfg Config) *Peripheral {
	if cfg.ResolutionBits == 0 || cfg.ResolutionBits > 16 {
		cfg.ResolutionBits = 12
	}
	if cfg.ConversionTicks == 0 {
		cfg.ConversionTicks = 1
	}
	p := &Peripheral{
		timers:  timers,
		cfg:     cfg,
		latched: make([]int32, len(cfg.Sources)),
	}
	p.timer.Handler = p.fire
	return p
}

// Channels returns the channel identifiers of every configured source.
func (p *Peripheral) Channels() []adc.Channel {
	chans := make([]adc.Channel, len(p.cfg.Sources))
	for i := range chans {
		chans[i] = adc.Channel(i)
	}
	return chans
}

// Running reports whether an operation is in progress.
func (p *Peripheral) Running() bool {
	return p.state != stateIdle
}

func (p *Peripheral) SetClient(client adc.Client) {
	p.client = client
}

func (p *Peripheral) SetHighSpeedClient(client adc.HighSpeedClient) {
	p.hsClient = client
}

func (p *Peripheral) ResolutionBits() uint {
	return p.cfg.ResolutionBits
}

func (p *Peripheral) VoltageReferenceMV() (uint32, bool) {
	return p.cfg.ReferenceMV, p.cfg.ReferenceMV != 0
}

// Sample converts one sample after ConversionTicks.
func (p *Peripheral) Sample(channel adc.Channel) error {
	if err := p.check(channel); err != nil {
		return err
	}
	p.begin(stateSingle, channel)
	p.arm(p.timers.Now() + p.cfg.ConversionTicks)
	return nil
}

// SampleContinuous converts one sample every TimerFreq/frequency ticks.
func (p *Peripheral) SampleContinuous(channel adc.Channel, frequency uint32) error {
	if err := p.check(channel); err != nil {
		return err
	}
	if frequency == 0 {
		return kernel.ErrInval
	}
	p.begin(stateContinuous, channel)
	p.period = periodTicks(frequency)
	p.arm(p.timers.Now() + p.period)
	return nil
}

// SampleHighSpeed fills len1 samples of buf1, then len2 samples of buf2.
func (p *Peripheral) SampleHighSpeed(channel adc.Channel, frequency uint32, buf1 *adc.Buffer, len1 int, buf2 *adc.Buffer, len2 int) error {
	if err := p.check(channel); err != nil {
		return err
	}
	if frequency == 0 || buf1 == nil || buf2 == nil || len1 < 0 || len2 < 0 {
		return kernel.ErrInval
	}
	if len1 > buf1.Len() || len2 > buf2.Len() {
		return kernel.ErrSize
	}

	p.begin(stateHighSpeed, channel)
	p.period = periodTicks(frequency)
	p.hold(buf1, len1)
	p.hold(buf2, len2)
	return nil
}

// ProvideBuffer queues a buffer behind the one being filled.
func (p *Peripheral) ProvideBuffer(buf *adc.Buffer, length int) error {
	if p.state != stateHighSpeed {
		return kernel.ErrOff
	}
	if buf == nil || length < 0 {
		return kernel.ErrInval
	}
	if length > buf.Len() {
		return kernel.ErrSize
	}
	if length > 0 && p.cur != nil && p.next != nil {
		return kernel.ErrBusy
	}
	p.hold(buf, length)
	return nil
}

// RetrieveBuffers returns up to two held buffers once stopped. Buffers
// beyond two stay held for the next call.
func (p *Peripheral) RetrieveBuffers() (*adc.Buffer, *adc.Buffer, error) {
	if p.state != stateIdle {
		return nil, nil, kernel.ErrBusy
	}

	var held []*adc.Buffer
	if p.cur != nil {
		held = append(held, p.cur.buf)
	}
	if p.next != nil {
		held = append(held, p.next.buf)
	}
	held = append(held, p.parked...)
	p.cur, p.next, p.parked = nil, nil, nil

	var buf1, buf2 *adc.Buffer
	if len(held) > 0 {
		buf1 = held[0]
	}
	if len(held) > 1 {
		buf2 = held[1]
	}
	if len(held) > 2 {
		p.parked = append(p.parked, held[2:]...)
	}
	return buf1, buf2, nil
}

// StopSampling cancels the current operation. Held buffers stay with the
// peripheral until RetrieveBuffers.
func (p *Peripheral) StopSampling() error {
	if p.state == stateIdle {
		return nil
	}
	p.state = stateIdle
	p.gen++
	p.timers.Cancel(&p.timer)
	p.armed = false
	return nil
}

// Update implements drivers.Sensor: it latches the current input of every
// channel for Voltage.
func (p *Peripheral) Update(which drivers.Measurement) error {
	if which&drivers.Voltage == 0 {
		return nil
	}
	now := p.timers.Now()
	for i, src := range p.cfg.Sources {
		p.latched[i] = src.Microvolts(now)
	}
	return nil
}

// Voltage returns the input of channel in microvolts as of the last
// Update.
func (p *Peripheral) Voltage(channel adc.Channel) int32 {
	if int(channel) >= len(p.latched) {
		return 0
	}
	return p.latched[channel]
}

// Convert maps an input voltage onto the sample range.
func (p *Peripheral) Convert(uv int32) uint16 {
	full := int64(1)<<p.cfg.ResolutionBits - 1
	ref := int64(p.cfg.ReferenceMV) * 1000
	if ref == 0 {
		ref = 3300 * 1000
	}
	v := int64(uv) * full / ref
	switch {
	case v < 0:
		v = 0
	case v > full:
		v = full
	}
	return uint16(v)
}

func (p *Peripheral) check(channel adc.Channel) error {
	if p.state != stateIdle {
		return kernel.ErrBusy
	}
	if int(channel) >= len(p.cfg.Sources) {
		return kernel.ErrInval
	}
	return nil
}

func (p *Peripheral) begin(s state, channel adc.Channel) {
	p.state = s
	p.channel = channel
	p.gen++
}

func (p *Peripheral) arm(wake uint32) {
	p.timer.WakeTime = wake
	p.timers.Schedule(&p.timer)
	p.armed = true
}

// hold takes a buffer in high-speed mode, starting to fill it if nothing
// else is being filled.
func (p *Peripheral) hold(buf *adc.Buffer, length int) {
	if length == 0 {
		p.parked = append(p.parked, buf)
		return
	}
	l := &loan{buf: buf, length: length}
	if p.cur != nil {
		p.next = l
		return
	}
	p.cur = l
	p.curStart = p.timers.Now()
	p.arm(p.curStart + p.period*uint32(length))
}

func (p *Peripheral) sampleAt(tick uint32) uint16 {
	return p.Convert(p.cfg.Sources[p.channel].Microvolts(tick))
}

func (p *Peripheral) fire(t *kernel.Timer) uint8 {
	p.armed = false
	gen := p.gen

	switch p.state {
	case stateSingle:
		p.state = stateIdle
		sample := p.sampleAt(t.WakeTime)
		if p.client != nil {
			p.client.SampleReady(sample)
		}
		return kernel.SF_DONE

	case stateContinuous:
		sample := p.sampleAt(t.WakeTime)
		t.WakeTime += p.period
		if p.client != nil {
			p.client.SampleReady(sample)
		}
		if p.gen == gen && !p.armed {
			p.armed = true
			return kernel.SF_RESCHEDULE
		}
		return kernel.SF_DONE

	case stateHighSpeed:
		done := p.cur
		if done == nil {
			return kernel.SF_DONE
		}
		for i := 0; i < done.length; i++ {
			done.buf.Samples[i] = p.sampleAt(p.curStart + uint32(i+1)*p.period)
		}

		p.cur, p.next = p.next, nil
		if p.cur != nil {
			p.curStart = t.WakeTime
			t.WakeTime += p.period * uint32(p.cur.length)
		}

		if p.hsClient != nil {
			p.hsClient.SamplesReady(done.buf, done.length)
		}
		if p.gen == gen && !p.armed && p.cur != nil {
			p.armed = true
			return kernel.SF_RESCHEDULE
		}
		return kernel.SF_DONE
	}
	return kernel.SF_DONE
}

func periodTicks(frequency uint32) uint32 {
	period := uint32(kernel.TimerFreq / frequency)
	if period == 0 {
		period = 1
	}
	return period
}
