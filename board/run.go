package board

import (
	"context"
	"errors"
	"io"
	"time"

	"adcore/kernel"
	"adcore/protocol"
)

// pollInterval is how often Run wakes the main loop.
const pollInterval = time.Millisecond

// Feed queues received bytes for the next Step. It may be called from any
// goroutine and returns the number of bytes accepted.
func (b *Board) Feed(data []byte) int {
	state := kernel.DisableInterrupts()
	defer kernel.RestoreInterrupts(state)
	return b.input.Write(data)
}

// Step runs one main-loop iteration: it parses every complete frame
// received so far, then advances the timer queue by elapsed ticks. Stepped
// boards ignore elapsed.
func (b *Board) Step(elapsed uint32) {
	defer func() {
		if r := recover(); r != nil {
			b.stats.Panics++
			kernel.DebugPrintln("[BOARD] main loop panic, dropping buffers")
			state := kernel.DisableInterrupts()
			b.input.Reset()
			kernel.RestoreInterrupts(state)
			b.output.Reset()
		}
	}()

	state := kernel.DisableInterrupts()
	data := b.input.Data()
	kernel.RestoreInterrupts(state)

	if len(data) > 0 {
		in := protocol.NewSliceInputBuffer(data)
		b.transport.Receive(in)
		if consumed := len(data) - in.Available(); consumed > 0 {
			b.stats.FramesParsed++
			state := kernel.DisableInterrupts()
			b.input.Pop(consumed)
			kernel.RestoreInterrupts(state)
		}
	}

	if !b.cfg.Stepped && elapsed > 0 {
		b.timers.Advance(elapsed)
	}

	b.flush()
}

// Run serves the host on port until ctx is cancelled or the link fails. A
// closed link ends Run without error. The caller owns port and should
// close it after Run returns to release the reader.
func (b *Board) Run(ctx context.Context, port io.ReadWriter) error {
	b.SetOutput(port)
	kernel.SetEventClock(b.timers.Now)

	readErr := make(chan error, 1)
	go b.readLoop(port, readErr)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			b.shutdown("stopped")
			return nil
		case err := <-readErr:
			b.Step(0)
			b.shutdown("link lost")
			if isClosed(err) {
				return nil
			}
			return err
		case now := <-ticker.C:
			us := now.Sub(last).Microseconds()
			last = now
			b.Step(kernel.TimerFromUS(uint32(us)))
		}
	}
}

// readLoop copies port input into the fifo until the port fails.
func (b *Board) readLoop(port io.Reader, errc chan<- error) {
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		pending := buf[:n]
		for len(pending) > 0 {
			written := b.Feed(pending)
			pending = pending[written:]
			if len(pending) > 0 {
				// Full until the main loop catches up.
				time.Sleep(pollInterval)
			}
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

func (b *Board) shutdown(reason string) {
	b.sendShutdown(reason)
	kernel.DebugPrintln("[BOARD] shutdown: " + reason)
	kernel.DumpEventRing()
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe)
}
