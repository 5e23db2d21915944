package adc

import "adcore/kernel"

// Command implements the syscall command surface. arg1 is the channel
// index and arg2 the sampling frequency.
func (d *Dedicated) Command(commandNum, arg1, arg2 uint, pid kernel.ProcessID) kernel.CommandReturn {
	if !d.claim(pid) {
		return kernel.Failure(kernel.ErrNoMem)
	}

	channel := int(arg1)
	frequency := uint32(arg2)

	switch commandNum {
	case CmdChannels:
		return kernel.SuccessU32(uint32(len(d.channels)))
	case CmdSample:
		return kernel.FromError(d.Sample(channel))
	case CmdSampleContinuous:
		return kernel.FromError(d.SampleContinuous(channel, frequency))
	case CmdSampleBuffer:
		return kernel.FromError(d.SampleBuffer(channel, frequency))
	case CmdSampleBufferCont:
		return kernel.FromError(d.SampleBufferContinuous(channel, frequency))
	case CmdStop:
		return kernel.FromError(d.StopSampling())
	case CmdResolutionBits:
		return kernel.SuccessU32(uint32(d.ResolutionBits()))
	case CmdVoltageReference:
		if mv, ok := d.VoltageReferenceMV(); ok {
			return kernel.SuccessU32(mv)
		}
		return kernel.Failure(kernel.ErrNoSupport)
	default:
		return kernel.Failure(kernel.ErrNoSupport)
	}
}

// AllowReadWrite installs a caller buffer: allowNum 0 is the primary buffer
// and 1 the secondary one used by continuous buffered sampling.
func (d *Dedicated) AllowReadWrite(pid kernel.ProcessID, allowNum uint, buf kernel.ReadWriteProcessBuffer) (kernel.ReadWriteProcessBuffer, error) {
	if !d.claim(pid) {
		return buf, kernel.ErrNoMem
	}

	switch allowNum {
	case AllowPrimary, AllowSecondary:
		err := d.enterOwner(func(app *App, _ *kernel.Upcalls) {
			if allowNum == AllowPrimary {
				app.buf1, buf = buf, app.buf1
			} else {
				app.buf2, buf = buf, app.buf2
			}
		})
		if err != nil {
			return buf, kernel.ToErrorCode(err)
		}
		return buf, nil
	default:
		return buf, kernel.ErrNoSupport
	}
}

// AllocateGrant creates the process's driver state.
func (d *Dedicated) AllocateGrant(pid kernel.ProcessID) error {
	return d.apps.Allocate(pid)
}
