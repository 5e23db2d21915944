// Package adc defines the capabilities an analog-to-digital converter
// exposes to kernel capsules.
//
// Every request is asynchronous: a nil error means the operation was armed
// and its result will arrive later through the registered client. A non-nil
// error means nothing was armed and the caller keeps ownership of anything
// it passed in.
package adc

// Channel identifies a hardware input of a converter.
type Channel uint32

// Buffer is a kernel-owned sample buffer lent to the hardware. Its capacity
// is fixed at construction.
type Buffer struct {
	Samples []uint16
}

// NewBuffer allocates a buffer holding n samples.
func NewBuffer(n int) *Buffer {
	return &Buffer{Samples: make([]uint16, n)}
}

// Len returns the buffer capacity in samples.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// Client receives single-sample results.
type Client interface {
	// SampleReady delivers one conversion result.
	SampleReady(sample uint16)
}

// RejectionClient is optionally implemented by a Client whose request may
// be queued before it reaches the hardware. SampleRejected reports that a
// queued request was refused and no SampleReady will follow.
type RejectionClient interface {
	SampleRejected(err error)
}

// HighSpeedClient receives filled buffers from buffered sampling.
type HighSpeedClient interface {
	// SamplesReady hands a buffer back to its owner. length is the number
	// of valid samples and never exceeds buf.Len().
	SamplesReady(buf *Buffer, length int)
}

// Adc is the basic single-sample and continuous-scalar capability.
type Adc interface {
	// Sample converts one sample on channel.
	Sample(channel Channel) error

	// SampleContinuous converts samples on channel at frequency Hz until
	// stopped, delivering each through the client.
	SampleContinuous(channel Channel, frequency uint32) error

	// StopSampling cancels any operation in progress. No callbacks follow.
	StopSampling() error

	// ResolutionBits returns the number of significant bits per sample.
	ResolutionBits() uint

	// VoltageReferenceMV returns the reference voltage in millivolts, if
	// known.
	VoltageReferenceMV() (uint32, bool)

	SetClient(client Client)
}

// AdcHighSpeed is the buffered capability. The hardware holds at most two
// buffers: it fills one while the other waits, returns the full one through
// the client and moves on to the waiting one.
type AdcHighSpeed interface {
	// SampleHighSpeed starts buffered sampling, filling len1 samples of
	// buf1 and then len2 samples of buf2. Zero lengths are allowed; such
	// buffers are kept until RetrieveBuffers.
	SampleHighSpeed(channel Channel, frequency uint32, buf1 *Buffer, len1 int, buf2 *Buffer, len2 int) error

	// ProvideBuffer queues another buffer behind the one being filled.
	ProvideBuffer(buf *Buffer, length int) error

	// RetrieveBuffers returns the buffers still held once sampling has
	// stopped. Either result may be nil.
	RetrieveBuffers() (*Buffer, *Buffer, error)

	SetHighSpeedClient(client HighSpeedClient)
}

// HighSpeedAdc is a converter providing both capabilities.
type HighSpeedAdc interface {
	Adc
	AdcHighSpeed
}

// AdcChannel is a single-channel view of a converter, as handed out by a
// multiplexer. The channel is fixed at construction.
type AdcChannel interface {
	Sample() error
	SampleContinuous(frequency uint32) error
	StopSampling() error
	ResolutionBits() uint
	VoltageReferenceMV() (uint32, bool)
	SetClient(client Client)
}
