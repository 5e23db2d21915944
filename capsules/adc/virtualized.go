package adc

import (
	"github.com/eapache/queue"

	"adcore/hil/adc"
	"adcore/kernel"
)

// Operation is a request a process can queue on the virtualized driver.
type Operation uint8

const (
	OperationOneSample Operation = iota + 1
)

// AppSys is the per-process state of the virtualized driver: at most one
// request waiting for the hardware.
type AppSys struct {
	pending bool
	command Operation
	channel int
}

// Virtualized shares a set of single-channel converters among processes.
// One request is in flight at a time; each process may queue one more.
// Queued requests are served in the order they were made.
type Virtualized struct {
	drivers []adc.AdcChannel
	apps    *kernel.Grant[AppSys]

	current  kernel.ProcessID
	channel  int
	inFlight bool

	// waiting holds the kernel.ProcessID of every process that queued a
	// request, oldest first.
	waiting *queue.Queue
}

// NewVirtualized creates the driver and registers it as the client of
// every channel.
func NewVirtualized(drivers []adc.AdcChannel, grant *kernel.Grant[AppSys]) *Virtualized {
	v := &Virtualized{
		drivers: drivers,
		apps:    grant,
		waiting: queue.New(),
	}
	for _, drv := range drivers {
		drv.SetClient(v)
	}
	return v
}

// InFlight returns the process whose request the hardware is serving.
func (v *Virtualized) InFlight() (kernel.ProcessID, bool) {
	return v.current, v.inFlight
}

// Waiting returns the number of queued requests, including ones whose
// process has since gone away.
func (v *Virtualized) Waiting() int {
	return v.waiting.Length()
}

func (v *Virtualized) enqueue(op Operation, channel int, pid kernel.ProcessID) error {
	if channel < 0 || channel >= len(v.drivers) {
		return kernel.ErrNoDevice
	}

	var ret error
	err := v.apps.Enter(pid, func(app *AppSys, _ *kernel.Upcalls) {
		if !v.inFlight {
			ret = v.dispatch(pid, op, channel)
			return
		}
		if app.pending {
			ret = kernel.ErrBusy
			return
		}
		app.pending = true
		app.command = op
		app.channel = channel
		v.waiting.Add(pid)
	})
	if err != nil {
		return kernel.ToErrorCode(err)
	}
	return ret
}

// dispatch starts op on the hardware on behalf of pid.
func (v *Virtualized) dispatch(pid kernel.ProcessID, op Operation, channel int) error {
	v.current = pid
	v.channel = channel
	v.inFlight = true

	var err error
	switch op {
	case OperationOneSample:
		err = v.drivers[channel].Sample()
	default:
		err = kernel.ErrNoSupport
	}
	if err != nil {
		v.inFlight = false
		return err
	}
	kernel.RecordEvent(kernel.EvtSampleRequest, uint32(pid), uint32(channel), uint32(ModeSingleSample))
	return nil
}

// promote moves queued requests into flight until one is accepted by the
// hardware or the queue is empty.
func (v *Virtualized) promote() {
	for !v.inFlight && v.waiting.Length() > 0 {
		pid := v.waiting.Remove().(kernel.ProcessID)
		_ = v.apps.Enter(pid, func(app *AppSys, _ *kernel.Upcalls) {
			if !app.pending {
				return
			}
			app.pending = false
			if err := v.dispatch(pid, app.command, app.channel); err != nil {
				kernel.RecordEvent(kernel.EvtRequestDropped, uint32(pid), uint32(app.channel), uint32(kernel.ToErrorCode(err)))
				kernel.DebugPrintln("[ADC] dropping queued sample for " + pid.String() + ": " + err.Error())
			}
		})
	}
}

// SampleReady delivers the in-flight sample and starts the next queued
// request.
func (v *Virtualized) SampleReady(sample uint16) {
	if !v.inFlight {
		return
	}
	pid, channel := v.current, v.channel
	v.inFlight = false
	kernel.RecordEvent(kernel.EvtSampleReady, uint32(pid), uint32(sample), uint32(channel))

	_ = v.apps.Enter(pid, func(_ *AppSys, upcalls *kernel.Upcalls) {
		_ = upcalls.Schedule(SubscribeADC, uint(ModeSingleSample), uint(channel), uint(sample))
	})
	v.promote()
}

// SampleRejected gives up on the in-flight request when the converter
// refuses it after it was queued, and starts the next one.
func (v *Virtualized) SampleRejected(err error) {
	if !v.inFlight {
		return
	}
	pid, channel := v.current, v.channel
	v.inFlight = false
	kernel.RecordEvent(kernel.EvtRequestDropped, uint32(pid), uint32(channel), uint32(kernel.ToErrorCode(err)))
	kernel.DebugPrintln("[ADC] sample for " + pid.String() + " rejected: " + err.Error())
	v.promote()
}

// Command implements the syscall command surface. arg1 is the channel
// index.
func (v *Virtualized) Command(commandNum, arg1, _ uint, pid kernel.ProcessID) kernel.CommandReturn {
	channel := int(arg1)

	switch commandNum {
	case CmdChannels:
		return kernel.SuccessU32(uint32(len(v.drivers)))
	case CmdSample:
		if arg1 >= uint(len(v.drivers)) {
			return kernel.Failure(kernel.ErrNoDevice)
		}
		return kernel.FromError(v.enqueue(OperationOneSample, channel, pid))
	case CmdResolutionBits:
		if arg1 >= uint(len(v.drivers)) {
			return kernel.Failure(kernel.ErrNoDevice)
		}
		return kernel.SuccessU32(uint32(v.drivers[channel].ResolutionBits()))
	case CmdVoltageReference:
		if arg1 >= uint(len(v.drivers)) {
			return kernel.Failure(kernel.ErrNoDevice)
		}
		if mv, ok := v.drivers[channel].VoltageReferenceMV(); ok {
			return kernel.SuccessU32(mv)
		}
		return kernel.Failure(kernel.ErrNoSupport)
	default:
		return kernel.Failure(kernel.ErrNoSupport)
	}
}

// AllowReadWrite is not supported: the virtualized driver only samples
// single values.
func (v *Virtualized) AllowReadWrite(_ kernel.ProcessID, _ uint, buf kernel.ReadWriteProcessBuffer) (kernel.ReadWriteProcessBuffer, error) {
	return buf, kernel.ErrNoSupport
}

// AllocateGrant creates the process's driver state.
func (v *Virtualized) AllocateGrant(pid kernel.ProcessID) error {
	return v.apps.Allocate(pid)
}
