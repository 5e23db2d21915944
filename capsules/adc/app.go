package adc

import (
	"adcore/hil/adc"
	"adcore/kernel"
)

// App is the per-process state of the dedicated driver: the caller buffers
// samples are copied into and the bookkeeping of samples requested from
// the hardware.
type App struct {
	buf1 kernel.ReadWriteProcessBuffer
	buf2 kernel.ReadWriteProcessBuffer

	// offset is the byte position of the next sample in the active buffer.
	offset int

	// remaining counts samples of the active buffer not yet requested,
	// outstanding those requested and not yet delivered. nextOutstanding
	// counts samples already requested on behalf of the next buffer.
	remaining       int
	outstanding     int
	nextOutstanding int

	usingBuf2 bool
}

func (a *App) active() *kernel.ReadWriteProcessBuffer {
	if a.usingBuf2 {
		return &a.buf2
	}
	return &a.buf1
}

func (a *App) next() *kernel.ReadWriteProcessBuffer {
	if a.usingBuf2 {
		return &a.buf1
	}
	return &a.buf2
}

// planSingleBuffer splits the demand of a callerLen-byte buffer across two
// kernel buffers, filling the first before the second.
func (a *App) planSingleBuffer(callerLen, capA, capB int) (len1, len2 int) {
	needed := callerLen / 2
	switch {
	case needed <= capA:
		len1, len2 = needed, 0
	case needed <= capA+capB:
		len1, len2 = capA, needed-capA
	default:
		len1, len2 = capA, capB
	}
	a.usingBuf2 = false
	a.remaining = needed - len1 - len2
	a.outstanding = len1 + len2
	a.nextOutstanding = 0
	return len1, len2
}

// planContinuous is planSingleBuffer for double-buffered sampling. When the
// whole first buffer fits in the first kernel buffer, the second kernel
// buffer starts on the next caller buffer.
func (a *App) planContinuous(callerLen, nextLen, capA, capB int) (len1, len2 int) {
	needed := callerLen / 2
	nextNeeded := nextLen / 2
	a.usingBuf2 = false
	a.nextOutstanding = 0
	switch {
	case needed <= capA:
		len1, len2 = needed, min(nextNeeded, capB)
		a.remaining = 0
		a.outstanding = len1
		a.nextOutstanding = len2
	case needed <= capA+capB:
		len1, len2 = capA, needed-capA
		a.remaining = 0
		a.outstanding = len1 + len2
	default:
		len1, len2 = capA, capB
		a.remaining = needed - len1 - len2
		a.outstanding = len1 + len2
	}
	return len1, len2
}

// copyIn copies count samples from buf into the active caller buffer at the
// current offset, low byte first. Samples that do not fit are dropped; the
// offset advances by the full count either way.
func (a *App) copyIn(buf *adc.Buffer, count int) {
	skip := a.offset / 2
	_ = a.active().MutEnter(func(dst []byte) {
		n := min(count, buf.Len())
		for i := 0; i < n; i++ {
			pos := (skip + i) * 2
			if pos >= len(dst) {
				break
			}
			sample := buf.Samples[i]
			dst[pos] = byte(sample)
			if pos+1 < len(dst) {
				dst[pos+1] = byte(sample >> 8)
			}
		}
	})
	a.offset += count * 2
}

// swapActive moves to the other caller buffer at a buffer boundary.
func (a *App) swapActive() {
	a.usingBuf2 = !a.usingBuf2
	a.offset = 0
}

// reset clears the sampling bookkeeping.
func (a *App) reset() {
	a.offset = 0
	a.remaining = 0
	a.outstanding = 0
	a.nextOutstanding = 0
}

func saturatingSub(a, b int) int {
	if b >= a {
		return 0
	}
	return a - b
}
