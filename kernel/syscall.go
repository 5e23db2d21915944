package kernel

// Driver numbers routed by Syscalls.
const (
	DriverNumADC uint32 = 0x5
)

// ReturnVariant tags the shape of a command result on the syscall ABI.
type ReturnVariant uint8

const (
	ReturnFailure    ReturnVariant = 0
	ReturnSuccess    ReturnVariant = 128
	ReturnSuccessU32 ReturnVariant = 129
)

// CommandReturn is the result of a command syscall.
type CommandReturn struct {
	Variant ReturnVariant
	Err     ErrorCode
	Value   uint32
}

// Success returns a successful result with no value.
func Success() CommandReturn {
	return CommandReturn{Variant: ReturnSuccess}
}

// SuccessU32 returns a successful result carrying v.
func SuccessU32(v uint32) CommandReturn {
	return CommandReturn{Variant: ReturnSuccessU32, Value: v}
}

// Failure returns a failed result. Errors outside the syscall taxonomy are
// reported as ErrFail.
func Failure(err error) CommandReturn {
	code := ToErrorCode(err)
	if code == 0 {
		code = ErrFail
	}
	return CommandReturn{Variant: ReturnFailure, Err: code}
}

// FromError returns Success for a nil error and Failure otherwise.
func FromError(err error) CommandReturn {
	if err == nil {
		return Success()
	}
	return Failure(err)
}

// IsSuccess reports whether the command succeeded.
func (r CommandReturn) IsSuccess() bool {
	return r.Variant != ReturnFailure
}

// Error returns the failure as an error, or nil on success.
func (r CommandReturn) Error() error {
	if r.IsSuccess() {
		return nil
	}
	return r.Err
}

// SyscallDriver is the syscall surface a capsule exposes to processes.
type SyscallDriver interface {
	// Command performs a command for the calling process.
	Command(commandNum, arg1, arg2 uint, pid ProcessID) CommandReturn

	// AllowReadWrite swaps in a process buffer. On success the previously
	// allowed buffer is returned; on failure the returned buffer is the one
	// the process gets back.
	AllowReadWrite(pid ProcessID, allowNum uint, buf ReadWriteProcessBuffer) (ReadWriteProcessBuffer, error)

	// AllocateGrant materializes the driver's per-process state.
	AllocateGrant(pid ProcessID) error
}

// Syscalls routes syscalls from processes to drivers.
type Syscalls struct {
	procs   *Processes
	drivers map[uint32]SyscallDriver
}

// NewSyscalls creates a router over the process table.
func NewSyscalls(procs *Processes) *Syscalls {
	return &Syscalls{
		procs:   procs,
		drivers: make(map[uint32]SyscallDriver),
	}
}

// Register installs a driver under a driver number.
func (s *Syscalls) Register(driverNum uint32, d SyscallDriver) {
	s.drivers[driverNum] = d
}

// Driver returns the driver registered under driverNum.
func (s *Syscalls) Driver(driverNum uint32) (SyscallDriver, bool) {
	d, ok := s.drivers[driverNum]
	return d, ok
}

// Command issues a command syscall on behalf of pid.
func (s *Syscalls) Command(pid ProcessID, driverNum uint32, commandNum, arg1, arg2 uint) CommandReturn {
	if _, err := s.procs.lookup(pid); err != nil {
		return Failure(err)
	}
	d, ok := s.drivers[driverNum]
	if !ok {
		return Failure(ErrNoDevice)
	}
	return d.Command(commandNum, arg1, arg2, pid)
}

// AllowReadWrite shares length bytes at addr with a driver on behalf of
// pid. It returns the address and length of the buffer handed back to the
// process: the previous buffer on success, the rejected one on failure.
func (s *Syscalls) AllowReadWrite(pid ProcessID, driverNum uint32, allowNum uint, addr uint, length int) (uint, int, error) {
	buf, err := s.procs.NewBuffer(pid, addr, length)
	if err != nil {
		return addr, length, err
	}
	d, ok := s.drivers[driverNum]
	if !ok {
		return addr, length, ErrNoDevice
	}
	returned, err := d.AllowReadWrite(pid, allowNum, buf)
	return returned.Ptr(), returned.length, err
}
