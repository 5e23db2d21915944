package kernel

import "errors"

// ErrorCode is the error taxonomy surfaced to processes through syscalls.
// The numeric values are part of the syscall ABI.
type ErrorCode uint32

const (
	ErrFail        ErrorCode = 1  // generic failure
	ErrBusy        ErrorCode = 2  // resource already committed
	ErrAlready     ErrorCode = 3  // state already set
	ErrOff         ErrorCode = 4  // component powered down
	ErrReserve     ErrorCode = 5  // reservation required
	ErrInval       ErrorCode = 6  // invalid argument
	ErrSize        ErrorCode = 7  // size too large
	ErrCancel      ErrorCode = 8  // operation canceled
	ErrNoMem       ErrorCode = 9  // buffer or ownership exhausted
	ErrNoSupport   ErrorCode = 10 // operation not supported
	ErrNoDevice    ErrorCode = 11 // device not available
	ErrUninstalled ErrorCode = 12 // device not physically installed
	ErrNoAck       ErrorCode = 13 // packet transmission not acknowledged
)

var errorCodeNames = [...]string{
	ErrFail:        "FAIL",
	ErrBusy:        "BUSY",
	ErrAlready:     "ALREADY",
	ErrOff:         "OFF",
	ErrReserve:     "RESERVE",
	ErrInval:       "INVAL",
	ErrSize:        "SIZE",
	ErrCancel:      "CANCEL",
	ErrNoMem:       "NOMEM",
	ErrNoSupport:   "NOSUPPORT",
	ErrNoDevice:    "NODEVICE",
	ErrUninstalled: "UNINSTALLED",
	ErrNoAck:       "NOACK",
}

func (e ErrorCode) Error() string {
	if int(e) < len(errorCodeNames) && errorCodeNames[e] != "" {
		return errorCodeNames[e]
	}
	return "ERROR(" + itoa(int(e)) + ")"
}

// ProcessError reports why the kernel could not reach a process or its
// memory. It is kept apart from ErrorCode because drivers react to it
// (forgetting cached ownership) instead of forwarding it.
type ProcessError uint8

const (
	ErrNoSuchApp ProcessError = iota + 1
	ErrInactiveApp
	ErrAlreadyEntered
	ErrOutOfMemory
	ErrAddressOutOfBounds
)

func (e ProcessError) Error() string {
	switch e {
	case ErrNoSuchApp:
		return "process does not exist"
	case ErrInactiveApp:
		return "process is not running"
	case ErrAlreadyEntered:
		return "process grant already entered"
	case ErrOutOfMemory:
		return "process out of memory"
	case ErrAddressOutOfBounds:
		return "address outside process memory"
	default:
		return "process error " + itoa(int(e))
	}
}

// IsProcessGone reports whether err means the process can no longer be
// entered: it either no longer exists or is no longer running.
func IsProcessGone(err error) bool {
	var pe ProcessError
	if !errors.As(err, &pe) {
		return false
	}
	return pe == ErrNoSuchApp || pe == ErrInactiveApp
}

// ToErrorCode maps any error onto the syscall taxonomy.
func ToErrorCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}

	var pe ProcessError
	if errors.As(err, &pe) {
		switch pe {
		case ErrNoSuchApp, ErrAddressOutOfBounds:
			return ErrInval
		case ErrOutOfMemory:
			return ErrNoMem
		default:
			return ErrFail
		}
	}

	return ErrFail
}
