//go:build rp2040

package main

import (
	"device/rp"
	"machine"

	"tinygo.org/x/drivers"

	hil "adcore/hil/adc"
	"adcore/kernel"
)

const (
	// Inputs 0-3 are ADC0-ADC3, input 4 is the internal temperature sensor.
	onchipChannels = 5
	tempChannel    = 4

	onchipBits  = 12
	onchipRefMV = 3300
)

// onchipADC binds the RP2040 converter as a basic ADC. A conversion takes
// about 2us, so it is done in the timer handler rather than with the
// converter's interrupt.
type onchipADC struct {
	timers *kernel.TimerQueue
	pins   [tempChannel]machine.ADC
	client hil.Client

	timer      kernel.Timer
	channel    hil.Channel
	period     uint32
	continuous bool
	running    bool
	armed      bool
	gen        uint32

	latched [onchipChannels]int32
}

func newOnchipADC(timers *kernel.TimerQueue) *onchipADC {
	machine.InitADC()
	d := &onchipADC{timers: timers}
	for i, pin := range []machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3} {
		d.pins[i] = machine.ADC{Pin: pin}
		d.pins[i].Configure(machine.ADCConfig{})
	}
	d.timer.Handler = d.fire
	return d
}

func (d *onchipADC) Channels() []hil.Channel {
	chans := make([]hil.Channel, onchipChannels)
	for i := range chans {
		chans[i] = hil.Channel(i)
	}
	return chans
}

func (d *onchipADC) SetClient(client hil.Client) { d.client = client }
func (d *onchipADC) ResolutionBits() uint        { return onchipBits }

func (d *onchipADC) VoltageReferenceMV() (uint32, bool) {
	return onchipRefMV, true
}

func (d *onchipADC) Sample(channel hil.Channel) error {
	if err := d.check(channel); err != nil {
		return err
	}
	d.start(channel, false, 1)
	return nil
}

func (d *onchipADC) SampleContinuous(channel hil.Channel, frequency uint32) error {
	if err := d.check(channel); err != nil {
		return err
	}
	if frequency == 0 {
		return kernel.ErrInval
	}
	period := uint32(kernel.TimerFreq / frequency)
	if period == 0 {
		period = 1
	}
	d.start(channel, true, period)
	return nil
}

func (d *onchipADC) StopSampling() error {
	d.timers.Cancel(&d.timer)
	d.running = false
	d.armed = false
	d.gen++
	return nil
}

// Update latches every input in microvolts.
func (d *onchipADC) Update(which drivers.Measurement) error {
	if which&drivers.Voltage == 0 {
		return nil
	}
	for ch := range d.latched {
		d.latched[ch] = int32(int64(d.read(hil.Channel(ch))) * onchipRefMV * 1000 / (1<<onchipBits - 1))
	}
	return nil
}

func (d *onchipADC) Voltage(channel hil.Channel) int32 {
	if int(channel) >= len(d.latched) {
		return 0
	}
	return d.latched[channel]
}

func (d *onchipADC) check(channel hil.Channel) error {
	if d.running {
		return kernel.ErrBusy
	}
	if channel >= onchipChannels {
		return kernel.ErrInval
	}
	return nil
}

func (d *onchipADC) start(channel hil.Channel, continuous bool, period uint32) {
	d.channel = channel
	d.continuous = continuous
	d.period = period
	d.running = true
	d.armed = true
	d.gen++
	d.timer.WakeTime = d.timers.Now() + period
	d.timers.Schedule(&d.timer)
}

func (d *onchipADC) fire(t *kernel.Timer) uint8 {
	d.armed = false
	gen := d.gen

	sample := d.read(d.channel)
	if d.continuous {
		t.WakeTime += d.period
	} else {
		d.running = false
	}
	if d.client != nil {
		d.client.SampleReady(sample)
	}
	if d.continuous && d.running && d.gen == gen && !d.armed {
		d.armed = true
		return kernel.SF_RESCHEDULE
	}
	return kernel.SF_DONE
}

// read converts one input. machine.ADC scales results to 16 bits.
func (d *onchipADC) read(channel hil.Channel) uint16 {
	if channel == tempChannel {
		return rawInternalTemp()
	}
	return d.pins[channel].Get() >> (16 - onchipBits)
}

// rawInternalTemp returns the 12-bit reading of the temperature sensor.
func rawInternalTemp() uint16 {
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
	rp.ADC.CS.ReplaceBits(
		uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos,
		rp.ADC_CS_AINSEL_Msk,
		0,
	)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	return uint16(rp.ADC.RESULT.Get())
}
