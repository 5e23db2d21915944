// Package adc implements the ADC syscall driver in two variants.
//
// Dedicated gives one process exclusive use of a converter with both the
// basic and the buffered capability. Virtualized shares single-sample
// access to a set of multiplexed channels among all processes.
package adc

import (
	"adcore/hil/adc"
	"adcore/kernel"
)

// Dedicated is the exclusive-owner ADC driver.
type Dedicated struct {
	adc      adc.HighSpeedAdc
	channels []adc.Channel
	apps     *kernel.Grant[App]
	pool     *Pool

	// active is set while a hardware operation is outstanding.
	active  bool
	mode    Mode
	channel int

	owner    kernel.ProcessID
	hasOwner bool
}

// NewDedicated creates the driver and registers it as both clients of hw.
func NewDedicated(hw adc.HighSpeedAdc, grant *kernel.Grant[App], channels []adc.Channel, buf1, buf2, buf3 *adc.Buffer) *Dedicated {
	d := &Dedicated{
		adc:      hw,
		channels: channels,
		apps:     grant,
		pool:     NewPool(buf1, buf2, buf3),
		mode:     ModeIdle,
	}
	hw.SetClient(d)
	hw.SetHighSpeedClient(d)
	return d
}

// Mode returns the current sampling mode.
func (d *Dedicated) Mode() Mode { return d.mode }

// Active reports whether a hardware operation is outstanding.
func (d *Dedicated) Active() bool { return d.active }

// PoolAvailable returns the number of kernel buffers not lent out.
func (d *Dedicated) PoolAvailable() int { return d.pool.Available() }

// Owner returns the process currently bound to the driver.
func (d *Dedicated) Owner() (kernel.ProcessID, bool) { return d.owner, d.hasOwner }

// claim binds pid as owner if the driver is free, already owned by pid, or
// owned by a process that can no longer be entered while nothing is active.
func (d *Dedicated) claim(pid kernel.ProcessID) bool {
	ok := true
	if d.hasOwner && d.owner != pid {
		if d.active {
			ok = false
		} else {
			owner := d.owner
			if err := d.apps.Enter(owner, func(*App, *kernel.Upcalls) {}); err == nil {
				ok = false
			}
		}
	}
	if ok {
		d.owner = pid
		d.hasOwner = true
	}
	return ok
}

// enterOwner enters the owner's state. An owner that no longer exists or
// has stopped running is forgotten.
func (d *Dedicated) enterOwner(fn func(app *App, upcalls *kernel.Upcalls)) error {
	if !d.hasOwner {
		return kernel.ErrNoSuchApp
	}
	err := d.apps.Enter(d.owner, fn)
	if kernel.IsProcessGone(err) {
		kernel.RecordEvent(kernel.EvtOwnerLost, uint32(d.owner), uint32(d.mode+1), 0)
		kernel.DebugPrintln("[ADC] owner " + d.owner.String() + " lost: " + err.Error())
		d.hasOwner = false
		d.owner = 0
	}
	return err
}

func (d *Dedicated) setIdle() {
	d.active = false
	d.mode = ModeIdle
}

// Sample converts one sample on the channel at index channel.
func (d *Dedicated) Sample(channel int) error {
	return d.startScalar(ModeSingleSample, channel, func(ch adc.Channel) error {
		return d.adc.Sample(ch)
	})
}

// SampleContinuous converts samples at frequency Hz until stopped.
func (d *Dedicated) SampleContinuous(channel int, frequency uint32) error {
	return d.startScalar(ModeContinuousSample, channel, func(ch adc.Channel) error {
		return d.adc.SampleContinuous(ch, frequency)
	})
}

func (d *Dedicated) startScalar(mode Mode, channel int, start func(adc.Channel) error) error {
	if d.active {
		return kernel.ErrBusy
	}
	if channel < 0 || channel >= len(d.channels) {
		return kernel.ErrInval
	}

	d.active = true
	d.mode = mode
	d.channel = channel

	if err := start(d.channels[channel]); err != nil {
		d.setIdle()
		return err
	}
	kernel.RecordEvent(kernel.EvtSampleRequest, uint32(d.owner), uint32(channel), uint32(mode))
	return nil
}

// SampleBuffer fills the primary caller buffer once at frequency Hz.
func (d *Dedicated) SampleBuffer(channel int, frequency uint32) error {
	return d.startBuffered(ModeSingleBuffer, channel, frequency)
}

// SampleBufferContinuous fills the primary and secondary caller buffers in
// turn at frequency Hz until stopped.
func (d *Dedicated) SampleBufferContinuous(channel int, frequency uint32) error {
	return d.startBuffered(ModeContinuousBuffer, channel, frequency)
}

func (d *Dedicated) startBuffered(mode Mode, channel int, frequency uint32) error {
	if d.active {
		return kernel.ErrBusy
	}
	if channel < 0 || channel >= len(d.channels) {
		return kernel.ErrInval
	}
	ch := d.channels[channel]

	var callerLen, nextLen int
	err := d.enterOwner(func(app *App, _ *kernel.Upcalls) {
		callerLen = app.buf1.Len()
		nextLen = app.buf2.Len()
	})
	// Buffers are measured in bytes; one that cannot hold a whole sample
	// counts as missing.
	if err != nil || callerLen/2 == 0 || (mode == ModeContinuousBuffer && nextLen/2 == 0) {
		return kernel.ErrNoMem
	}

	d.active = true
	d.mode = mode

	var ret error
	err = d.enterOwner(func(app *App, _ *kernel.Upcalls) {
		app.offset = 0
		d.channel = channel

		buf1 := d.pool.Withdraw()
		buf2 := d.pool.Withdraw()
		if buf1 == nil || buf2 == nil {
			d.depositAll(buf1, buf2)
			ret = kernel.ErrBusy
			return
		}

		var len1, len2 int
		if mode == ModeSingleBuffer {
			len1, len2 = app.planSingleBuffer(callerLen, buf1.Len(), buf2.Len())
		} else {
			len1, len2 = app.planContinuous(callerLen, nextLen, buf1.Len(), buf2.Len())
		}

		if err := d.adc.SampleHighSpeed(ch, frequency, buf1, len1, buf2, len2); err != nil {
			d.depositAll(buf1, buf2)
			ret = err
			return
		}
		kernel.RecordEvent(kernel.EvtBufferRequest, uint32(d.owner), uint32(len1), uint32(len2))
	})
	if err != nil {
		ret = kernel.ErrNoMem
	}

	if ret != nil {
		d.setIdle()
		_ = d.enterOwner(func(app *App, _ *kernel.Upcalls) {
			app.reset()
		})
	}
	return ret
}

// StopSampling cancels the current operation and reclaims every kernel
// buffer held by the hardware. Stopping while idle succeeds. If the owner
// can no longer be entered the hardware is still stopped, but ErrFail is
// returned.
func (d *Dedicated) StopSampling() error {
	if !d.active || d.mode == ModeIdle {
		return nil
	}
	kernel.RecordEvent(kernel.EvtStop, uint32(d.owner), uint32(d.mode), 0)

	var ret error
	err := d.enterOwner(func(app *App, _ *kernel.Upcalls) {
		d.setIdle()
		app.reset()

		if err := d.adc.StopSampling(); err != nil {
			ret = err
			return
		}
		ret = d.reclaim()
	})
	if err != nil {
		d.setIdle()
		_ = d.adc.StopSampling()
		_ = d.reclaim()
		return kernel.ErrFail
	}
	return ret
}

// ResolutionBits returns the converter resolution.
func (d *Dedicated) ResolutionBits() uint {
	return d.adc.ResolutionBits()
}

// VoltageReferenceMV returns the converter reference voltage, if known.
func (d *Dedicated) VoltageReferenceMV() (uint32, bool) {
	return d.adc.VoltageReferenceMV()
}

// reclaim takes back the buffers the hardware still holds.
func (d *Dedicated) reclaim() error {
	buf1, buf2, err := d.adc.RetrieveBuffers()
	if err != nil {
		return err
	}
	d.depositAll(buf1, buf2)
	kernel.RecordEvent(kernel.EvtReclaim, uint32(d.owner), uint32(d.pool.Available()), 0)
	return nil
}

func (d *Dedicated) depositAll(bufs ...*adc.Buffer) {
	for _, buf := range bufs {
		if buf != nil {
			d.pool.Deposit(buf)
		}
	}
}
