// Package virtualadc multiplexes one converter into independent
// single-channel devices.
package virtualadc

import (
	"github.com/eapache/queue"

	"adcore/hil/adc"
	"adcore/kernel"
)

// Mux serializes sample requests from its devices onto one converter.
// Requests are served in arrival order.
type Mux struct {
	adc     adc.Adc
	current *Device

	// pending holds *Device values waiting for the converter, each at
	// most once.
	pending *queue.Queue
}

// NewMux wraps hw and registers itself as its client.
func NewMux(hw adc.Adc) *Mux {
	m := &Mux{
		adc:     hw,
		pending: queue.New(),
	}
	hw.SetClient(m)
	return m
}

// Busy reports whether a request is being served.
func (m *Mux) Busy() bool {
	return m.current != nil
}

// Pending returns the number of queued requests.
func (m *Mux) Pending() int {
	return m.pending.Length()
}

// SampleReady routes a result to the device that requested it and starts
// the next queued request.
func (m *Mux) SampleReady(sample uint16) {
	dev := m.current
	m.current = nil
	if dev != nil {
		dev.requested = false
		if dev.client != nil {
			dev.client.SampleReady(sample)
		}
	}
	m.next()
}

// start hands dev's request to the converter.
func (m *Mux) start(dev *Device) error {
	m.current = dev
	if err := m.adc.Sample(dev.channel); err != nil {
		m.current = nil
		dev.requested = false
		return err
	}
	return nil
}

func (m *Mux) next() {
	for m.current == nil && m.pending.Length() > 0 {
		dev := m.pending.Remove().(*Device)
		if !dev.requested {
			continue
		}
		if err := m.start(dev); err != nil {
			kernel.DebugPrintln("[VADC] channel " + kernel.Utoa(uint32(dev.channel)) + " rejected: " + err.Error())
			if rc, ok := dev.client.(adc.RejectionClient); ok {
				rc.SampleRejected(err)
			}
		}
	}
}

// remove drops dev from the pending queue, keeping the order of the rest.
func (m *Mux) remove(dev *Device) {
	for n := m.pending.Length(); n > 0; n-- {
		if d := m.pending.Remove().(*Device); d != dev {
			m.pending.Add(d)
		}
	}
}

// Device is one user's view of a multiplexed converter, fixed to a
// channel.
type Device struct {
	mux       *Mux
	channel   adc.Channel
	client    adc.Client
	requested bool
}

// NewDevice creates a device sampling channel through mux.
func NewDevice(mux *Mux, channel adc.Channel) *Device {
	return &Device{mux: mux, channel: channel}
}

// Channel returns the hardware channel of the device.
func (d *Device) Channel() adc.Channel {
	return d.channel
}

// Sample requests one conversion. A request that can start immediately
// reports hardware rejection synchronously; a queued one that is later
// rejected is reported to a client implementing adc.RejectionClient.
func (d *Device) Sample() error {
	if d.requested {
		return kernel.ErrBusy
	}
	d.requested = true
	if d.mux.current == nil && d.mux.pending.Length() == 0 {
		return d.mux.start(d)
	}
	d.mux.pending.Add(d)
	d.mux.next()
	return nil
}

// SampleContinuous is not supported on a shared converter.
func (d *Device) SampleContinuous(uint32) error {
	return kernel.ErrNoSupport
}

// StopSampling cancels the device's request, whether queued or being
// served.
func (d *Device) StopSampling() error {
	if !d.requested {
		return nil
	}
	d.requested = false
	if d.mux.current == d {
		d.mux.current = nil
		err := d.mux.adc.StopSampling()
		d.mux.next()
		return err
	}
	d.mux.remove(d)
	return nil
}

func (d *Device) ResolutionBits() uint {
	return d.mux.adc.ResolutionBits()
}

func (d *Device) VoltageReferenceMV() (uint32, bool) {
	return d.mux.adc.VoltageReferenceMV()
}

func (d *Device) SetClient(client adc.Client) {
	d.client = client
}
