//go:build rp2040

package main

import "machine"

// usbPort is the USB CDC serial link to the host.
type usbPort struct{}

func initUSB() usbPort {
	_ = machine.Serial.Configure(machine.UARTConfig{})
	return usbPort{}
}

// Read returns the bytes buffered so far, at least one.
func (usbPort) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		c, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = c
		n++
	}
	return n, nil
}

func (usbPort) Write(p []byte) (int, error) {
	return machine.Serial.Write(p)
}
