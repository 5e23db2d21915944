//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"
)

const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C // raw timer low word
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// hardwareMicros reads the low word of the 1MHz hardware timer.
func hardwareMicros() uint32 {
	return timerRAWL.Get()
}
