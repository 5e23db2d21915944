package adc

import (
	"adcore/hil/adc"
	"adcore/kernel"
)

// SlotState tracks who holds a kernel buffer.
type SlotState uint8

const (
	SlotInPool SlotState = iota
	SlotOnLoan
)

const poolSlots = 3

// Pool holds the three kernel sample buffers while they are not lent to the
// hardware.
//
// Deposit always stores into the last position, moving any previous
// occupant forward, and Withdraw takes from the front. A buffer that was
// just deposited is therefore the last one withdrawn, so it can still be
// read after other buffers have gone back to the hardware.
type Pool struct {
	positions [poolSlots]*adc.Buffer
	buffers   [poolSlots]*adc.Buffer
	states    [poolSlots]SlotState
}

// NewPool creates a pool holding the given buffers.
func NewPool(buf1, buf2, buf3 *adc.Buffer) *Pool {
	p := &Pool{
		positions: [poolSlots]*adc.Buffer{buf1, buf2, buf3},
		buffers:   [poolSlots]*adc.Buffer{buf1, buf2, buf3},
	}
	return p
}

// Deposit returns a buffer to the pool. Buffers the pool does not own, or
// that are already in the pool, are refused.
func (p *Pool) Deposit(buf *adc.Buffer) bool {
	idx := p.index(buf)
	if idx < 0 {
		kernel.DebugPrintln("[ADC] pool: refusing foreign buffer")
		return false
	}
	if p.states[idx] == SlotInPool {
		kernel.DebugPrintln("[ADC] pool: refusing double deposit of slot " + kernel.Itoa(idx))
		return false
	}
	p.states[idx] = SlotInPool

	last := poolSlots - 1
	prev := p.positions[last]
	p.positions[last] = buf
	if prev != nil {
		if p.positions[1] == nil {
			p.positions[1] = prev
		} else {
			p.positions[0] = prev
		}
	}
	return true
}

// Withdraw lends out the earliest stored buffer, or returns nil when the
// pool is empty.
func (p *Pool) Withdraw() *adc.Buffer {
	for i, buf := range p.positions {
		if buf == nil {
			continue
		}
		p.positions[i] = nil
		p.states[p.index(buf)] = SlotOnLoan
		return buf
	}
	return nil
}

// Available returns the number of buffers in the pool.
func (p *Pool) Available() int {
	n := 0
	for _, buf := range p.positions {
		if buf != nil {
			n++
		}
	}
	return n
}

// OnLoan returns the number of buffers lent out.
func (p *Pool) OnLoan() int {
	n := 0
	for _, s := range p.states {
		if s == SlotOnLoan {
			n++
		}
	}
	return n
}

// State reports the state of one of the pool's buffers.
func (p *Pool) State(buf *adc.Buffer) (SlotState, bool) {
	idx := p.index(buf)
	if idx < 0 {
		return 0, false
	}
	return p.states[idx], true
}

func (p *Pool) index(buf *adc.Buffer) int {
	if buf == nil {
		return -1
	}
	for i, b := range p.buffers {
		if b == buf {
			return i
		}
	}
	return -1
}
