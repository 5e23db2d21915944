package adc

import (
	"adcore/hil/adc"
	"adcore/kernel"
)

// SampleReady handles a scalar conversion result.
func (d *Dedicated) SampleReady(sample uint16) {
	kernel.RecordEvent(kernel.EvtSampleReady, uint32(d.owner), uint32(sample), uint32(d.mode))

	delivered := false
	if d.active && (d.mode == ModeSingleSample || d.mode == ModeContinuousSample) {
		mode := d.mode
		if mode == ModeSingleSample {
			d.setIdle()
		}
		_ = d.enterOwner(func(_ *App, upcalls *kernel.Upcalls) {
			delivered = true
			_ = upcalls.Schedule(SubscribeADC, uint(mode), uint(d.channel), uint(sample))
		})
	}

	if !delivered {
		// Canceled, or nobody left to receive it.
		d.setIdle()
		_ = d.adc.StopSampling()
	}
}

// SamplesReady handles a kernel buffer returned by the hardware. The buffer
// goes back to the pool before anything else happens.
func (d *Dedicated) SamplesReady(buf *adc.Buffer, length int) {
	d.pool.Deposit(buf)
	kernel.RecordEvent(kernel.EvtSamplesReady, uint32(d.owner), uint32(length), uint32(d.pool.Available()))

	if d.active && d.mode.buffered() {
		err := d.enterOwner(func(app *App, upcalls *kernel.Upcalls) {
			d.bufferFilled(app, upcalls, buf, length)
		})
		if err == nil {
			return
		}
	}
	d.abandon()
}

// bufferFilled accounts for length samples delivered in buf, keeps the
// hardware supplied with buffers and completes the caller buffer when its
// last sample arrives.
func (d *Dedicated) bufferFilled(app *App, upcalls *kernel.Upcalls, buf *adc.Buffer, length int) {
	app.outstanding = saturatingSub(app.outstanding, length)

	complete := false
	switch {
	case app.remaining > 0:
		d.requestMore(app)

	case app.outstanding > 0:
		if d.mode == ModeContinuousBuffer {
			d.requestNext(app, app.next().Len()/2)
		}

	default:
		complete = true
		if d.mode == ModeContinuousBuffer {
			// Part of the next buffer may already be on its way.
			app.remaining = saturatingSub(app.next().Len()/2, app.nextOutstanding)
			app.outstanding = app.nextOutstanding
			app.nextOutstanding = 0
			if app.remaining == 0 {
				// The buffer after next is the one just filled.
				d.requestNext(app, app.active().Len()/2)
			} else {
				d.requestMore(app)
			}
		}
	}

	// Requests above never reuse buf: the pool hands it out last.
	app.copyIn(buf, length)

	if !complete {
		return
	}

	filled := app.active()
	lenChan := uint((filled.Len()/2)<<8) | uint(d.channel&0xFF)
	_ = upcalls.Schedule(SubscribeADC, uint(d.mode), lenChan, filled.Ptr())
	kernel.RecordEvent(kernel.EvtUpcall, uint32(d.owner), uint32(d.mode), uint32(filled.Len()))

	if d.mode == ModeSingleBuffer {
		d.setIdle()
		app.reset()
		_ = d.adc.StopSampling()
		_ = d.reclaim()
		return
	}
	app.swapActive()
}

// requestMore lends the hardware another buffer for the active caller
// buffer. Without a free buffer the request waits for the next callback.
func (d *Dedicated) requestMore(app *App) {
	buf := d.pool.Withdraw()
	if buf == nil {
		return
	}
	n := min(app.remaining, buf.Len())
	app.remaining -= n
	app.outstanding += n
	if err := d.adc.ProvideBuffer(buf, n); err != nil {
		app.remaining += n
		app.outstanding -= n
		d.pool.Deposit(buf)
	}
}

// requestNext lends the hardware a buffer for the caller buffer after the
// active one, which needs `needed` samples.
func (d *Dedicated) requestNext(app *App, needed int) {
	buf := d.pool.Withdraw()
	if buf == nil {
		return
	}
	n := min(needed, buf.Len())
	app.nextOutstanding = n
	if err := d.adc.ProvideBuffer(buf, n); err != nil {
		app.nextOutstanding = 0
		d.pool.Deposit(buf)
	}
}

// abandon forces the driver idle after a buffer nobody is waiting for,
// stopping the hardware and reclaiming its buffers.
func (d *Dedicated) abandon() {
	d.setIdle()
	_ = d.enterOwner(func(app *App, _ *kernel.Upcalls) {
		app.reset()
	})
	_ = d.adc.StopSampling()
	_ = d.reclaim()
}
