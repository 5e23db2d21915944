package adc

// Mode is the sampling state of the driver. The numeric value is the mode
// tag carried in argument 0 of every ADC upcall.
type Mode int

const (
	ModeIdle             Mode = -1
	ModeSingleSample     Mode = 0
	ModeContinuousSample Mode = 1
	ModeSingleBuffer     Mode = 2
	ModeContinuousBuffer Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeSingleSample:
		return "single-sample"
	case ModeContinuousSample:
		return "continuous-sample"
	case ModeSingleBuffer:
		return "single-buffer"
	case ModeContinuousBuffer:
		return "continuous-buffer"
	default:
		return "unknown"
	}
}

// buffered reports whether the mode moves samples through kernel buffers.
func (m Mode) buffered() bool {
	return m == ModeSingleBuffer || m == ModeContinuousBuffer
}

// Syscall numbers of the ADC driver.
const (
	// SubscribeADC carries every ADC upcall.
	SubscribeADC = 0

	AllowPrimary   = 0
	AllowSecondary = 1

	CmdChannels         = 0
	CmdSample           = 1
	CmdSampleContinuous = 2
	CmdSampleBuffer     = 3
	CmdSampleBufferCont = 4
	CmdStop             = 5
	CmdResolutionBits   = 101
	CmdVoltageReference = 102
)

// BufferSamples is the capacity of each kernel sample buffer.
const BufferSamples = 128
