//go:build !tinygo

package kernel

import "sync"

// State is the saved interrupt state returned by DisableInterrupts.
type State uintptr

// On a hosted build the "interrupt" is the port reader goroutine, so the
// critical section is a plain mutex. Sections must stay short and must not
// nest.
var interruptMu sync.Mutex

// DisableInterrupts enters the critical section shared with interrupt
// producers.
func DisableInterrupts() State {
	interruptMu.Lock()
	return 0
}

// RestoreInterrupts leaves the critical section.
func RestoreInterrupts(state State) {
	interruptMu.Unlock()
}
