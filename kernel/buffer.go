package kernel

// ReadWriteProcessBuffer is a handle to a region of process memory that a
// process has shared with a driver. The zero value is an empty handle.
//
// A handle stops resolving once its process is killed, faults, or restarts:
// Len reports 0 and MutEnter fails.
type ReadWriteProcessBuffer struct {
	procs  *Processes
	pid    ProcessID
	gen    uint32
	addr   uint
	length int
}

// Len returns the length of the buffer in bytes.
func (b ReadWriteProcessBuffer) Len() int {
	if b.length == 0 || b.procs == nil {
		return 0
	}
	if _, err := b.resolve(); err != nil {
		return 0
	}
	return b.length
}

// Ptr returns the address of the buffer in process memory.
func (b ReadWriteProcessBuffer) Ptr() uint {
	return b.addr
}

// ProcessID returns the process that owns the buffer.
func (b ReadWriteProcessBuffer) ProcessID() ProcessID {
	return b.pid
}

// MutEnter runs fn with write access to the buffer contents.
func (b ReadWriteProcessBuffer) MutEnter(fn func(buf []byte)) error {
	if b.procs == nil {
		fn(nil)
		return nil
	}
	p, err := b.resolve()
	if err != nil {
		return err
	}
	if b.length == 0 {
		fn(nil)
		return nil
	}
	region, err := p.region(b.addr, b.length)
	if err != nil {
		return err
	}
	fn(region)
	return nil
}

func (b ReadWriteProcessBuffer) resolve() (*process, error) {
	p, err := b.procs.lookup(b.pid)
	if err != nil {
		return nil, err
	}
	if p.generation != b.gen {
		return nil, ErrNoSuchApp
	}
	return p, nil
}
