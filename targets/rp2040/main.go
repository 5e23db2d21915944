//go:build rp2040

// Firmware serving the virtualized ADC driver over USB on an RP2040.
package main

import (
	"machine"
	"time"

	"adcore/board"
	"adcore/kernel"
)

func main() {
	// Clear any watchdog state left by a previous image.
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}
	usb := initUSB()

	cfg := board.DefaultConfig()
	cfg.Variant = board.VariantVirtualized
	cfg.Channels = onchipChannels
	cfg.ResolutionBits = onchipBits
	cfg.ReferenceMV = onchipRefMV

	b, err := board.NewWithChip(cfg, func(_ *board.Config, timers *kernel.TimerQueue) (board.Chip, error) {
		return newOnchipADC(timers), nil
	})
	if err != nil {
		return
	}
	b.SetOutput(usb)
	kernel.SetEventClock(b.Timers().Now)

	go usbReaderLoop(b, usb)

	last := hardwareMicros()
	for {
		now := hardwareMicros()
		b.Step(kernel.TimerFromUS(now - last))
		last = now
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop feeds received bytes to the board, waiting while its
// input fifo is full.
func usbReaderLoop(b *board.Board, usb usbPort) {
	buf := make([]byte, 64)
	for {
		n, _ := usb.Read(buf)
		data := buf[:n]
		for len(data) > 0 {
			fed := b.Feed(data)
			data = data[fed:]
			if fed == 0 {
				time.Sleep(time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}
