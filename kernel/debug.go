package kernel

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a driver lifecycle event for post-mortem analysis
type Event struct {
	Type   uint8  // Event type code
	PID    uint32 // Process the event concerns (0 if none)
	Clock  uint32 // Timer ticks at event
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event type codes
const (
	EvtSampleRequest  = 1 // scalar sample armed
	EvtBufferRequest  = 2 // buffered sample armed
	EvtSampleReady    = 3 // scalar sample delivered by hardware
	EvtSamplesReady   = 4 // kernel buffer returned by hardware
	EvtUpcall         = 5 // upcall scheduled
	EvtStop           = 6 // sampling stopped
	EvtReclaim        = 7 // buffers retrieved from hardware
	EvtOwnerLost      = 8 // bound process could not be entered
	EvtRequestDropped = 9 // queued request discarded
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Event capture ring buffer (non-blocking, for post-mortem)
	eventRing     [EventRingSize]Event
	eventRingHead uint8        // Next write position
	eventEnabled  bool  = true // Always capture events
	eventClock    func() uint32

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, stderr, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetEventClock installs the clock used to timestamp ring events.
func SetEventClock(clock func() uint32) {
	eventClock = clock
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync for non-blocking)
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil && debugEnabled {
		select {
		case debugChan <- msg:
		default:
			// Channel full, drop message
		}
	}
}

// RecordEvent captures an event in the ring buffer
func RecordEvent(eventType uint8, pid, value1, value2 uint32) {
	if !eventEnabled {
		return
	}
	var clock uint32
	if eventClock != nil {
		clock = eventClock()
	}
	idx := eventRingHead
	eventRing[idx] = Event{
		Type:   eventType,
		PID:    pid,
		Clock:  clock,
		Value1: value1,
		Value2: value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// EventRing returns the captured events, oldest first.
func EventRing() []Event {
	events := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.Type == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// DumpEventRing outputs the event ring buffer (call on shutdown/error)
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENTS] === Event Ring Dump ===")
	for _, evt := range EventRing() {
		debugPrintln("[EVENTS] " + eventName(evt.Type) +
			" pid=" + utoa(evt.PID) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
}

func eventName(eventType uint8) string {
	switch eventType {
	case EvtSampleRequest:
		return "SAMPLE_REQ"
	case EvtBufferRequest:
		return "BUFFER_REQ"
	case EvtSampleReady:
		return "SAMPLE_READY"
	case EvtSamplesReady:
		return "SAMPLES_READY"
	case EvtUpcall:
		return "UPCALL"
	case EvtStop:
		return "STOP"
	case EvtReclaim:
		return "RECLAIM"
	case EvtOwnerLost:
		return "OWNER_LOST!"
	case EvtRequestDropped:
		return "REQ_DROPPED"
	default:
		return "UNKNOWN"
	}
}
