package kernel

import "sort"

// ProcessID identifies a process. Identifiers are never reused, so a stale
// ID can only ever fail to resolve.
type ProcessID uint32

func (p ProcessID) String() string {
	return "pid" + utoa(uint32(p))
}

// ProcessState is the scheduling state of a live process.
type ProcessState uint8

const (
	ProcessRunning ProcessState = iota + 1
	ProcessFaulted
)

func (s ProcessState) String() string {
	switch s {
	case ProcessRunning:
		return "running"
	case ProcessFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// MemoryBase is the address of the first byte of every process's memory.
const MemoryBase uint = 0x20000000

// DefaultMemorySize is the per-process memory size used when none is given.
const DefaultMemorySize = 4096

// UpcallObserver is notified of every upcall as it is scheduled.
type UpcallObserver func(pid ProcessID, upcall Upcall)

type process struct {
	id      ProcessID
	state   ProcessState
	memory  []byte
	upcalls []Upcall

	// generation changes on restart so grant entries and buffer handles
	// created for the previous incarnation stop resolving.
	generation uint32
}

// Processes is the kernel process table.
type Processes struct {
	procs    map[ProcessID]*process
	nextID   ProcessID
	memSize  int
	observer UpcallObserver
}

// NewProcesses creates an empty process table whose processes each own
// memSize bytes of memory.
func NewProcesses(memSize int) *Processes {
	if memSize <= 0 {
		memSize = DefaultMemorySize
	}
	return &Processes{
		procs:   make(map[ProcessID]*process),
		nextID:  1,
		memSize: memSize,
	}
}

// MemorySize returns the size of each process's memory in bytes.
func (ps *Processes) MemorySize() int {
	return ps.memSize
}

// SetUpcallObserver installs a hook called for every scheduled upcall.
func (ps *Processes) SetUpcallObserver(observer UpcallObserver) {
	ps.observer = observer
}

// Spawn creates a running process with zeroed memory.
func (ps *Processes) Spawn() ProcessID {
	id := ps.nextID
	ps.nextID++
	ps.procs[id] = &process{
		id:     id,
		state:  ProcessRunning,
		memory: make([]byte, ps.memSize),
	}
	return id
}

// Kill removes a process. Any later access through its ID fails with
// ErrNoSuchApp.
func (ps *Processes) Kill(pid ProcessID) error {
	if _, ok := ps.procs[pid]; !ok {
		return ErrNoSuchApp
	}
	delete(ps.procs, pid)
	return nil
}

// Fault stops a process without removing it. Grant entry fails with
// ErrInactiveApp until the process is restarted.
func (ps *Processes) Fault(pid ProcessID) error {
	p, ok := ps.procs[pid]
	if !ok {
		return ErrNoSuchApp
	}
	p.state = ProcessFaulted
	return nil
}

// Restart brings a faulted process back with fresh memory and no grant
// state.
func (ps *Processes) Restart(pid ProcessID) error {
	p, ok := ps.procs[pid]
	if !ok {
		return ErrNoSuchApp
	}
	p.state = ProcessRunning
	p.generation++
	for i := range p.memory {
		p.memory[i] = 0
	}
	p.upcalls = nil
	return nil
}

// State returns the process state.
func (ps *Processes) State(pid ProcessID) (ProcessState, error) {
	p, ok := ps.procs[pid]
	if !ok {
		return 0, ErrNoSuchApp
	}
	return p.state, nil
}

// IDs returns the IDs of all live processes in ascending order.
func (ps *Processes) IDs() []ProcessID {
	ids := make([]ProcessID, 0, len(ps.procs))
	for id := range ps.procs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReadMemory copies n bytes of process memory starting at addr.
func (ps *Processes) ReadMemory(pid ProcessID, addr uint, n int) ([]byte, error) {
	p, ok := ps.procs[pid]
	if !ok {
		return nil, ErrNoSuchApp
	}
	region, err := p.region(addr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, region)
	return out, nil
}

// WriteMemory copies data into process memory at addr.
func (ps *Processes) WriteMemory(pid ProcessID, addr uint, data []byte) error {
	p, ok := ps.procs[pid]
	if !ok {
		return ErrNoSuchApp
	}
	region, err := p.region(addr, len(data))
	if err != nil {
		return err
	}
	copy(region, data)
	return nil
}

// NewBuffer builds a read-write handle over length bytes of the process's
// memory at addr. A zero length yields a handle that reports Len() == 0
// regardless of addr.
func (ps *Processes) NewBuffer(pid ProcessID, addr uint, length int) (ReadWriteProcessBuffer, error) {
	p, err := ps.lookup(pid)
	if err != nil {
		return ReadWriteProcessBuffer{}, err
	}
	if length == 0 {
		return ReadWriteProcessBuffer{procs: ps, pid: pid, gen: p.generation, addr: addr}, nil
	}
	if _, err := p.region(addr, length); err != nil {
		return ReadWriteProcessBuffer{}, err
	}
	return ReadWriteProcessBuffer{
		procs:  ps,
		pid:    pid,
		gen:    p.generation,
		addr:   addr,
		length: length,
	}, nil
}

// TakeUpcalls drains the upcalls delivered to a process.
func (ps *Processes) TakeUpcalls(pid ProcessID) []Upcall {
	p, ok := ps.procs[pid]
	if !ok {
		return nil
	}
	upcalls := p.upcalls
	p.upcalls = nil
	return upcalls
}

// lookup resolves a process that can currently be entered.
func (ps *Processes) lookup(pid ProcessID) (*process, error) {
	p, ok := ps.procs[pid]
	if !ok {
		return nil, ErrNoSuchApp
	}
	if p.state != ProcessRunning {
		return nil, ErrInactiveApp
	}
	return p, nil
}

func (ps *Processes) deliver(pid ProcessID, upcall Upcall) error {
	p, err := ps.lookup(pid)
	if err != nil {
		return err
	}
	p.upcalls = append(p.upcalls, upcall)
	if ps.observer != nil {
		ps.observer(pid, upcall)
	}
	return nil
}

func (p *process) region(addr uint, n int) ([]byte, error) {
	if n < 0 || addr < MemoryBase {
		return nil, ErrAddressOutOfBounds
	}
	start := addr - MemoryBase
	if start > uint(len(p.memory)) || uint(n) > uint(len(p.memory))-start {
		return nil, ErrAddressOutOfBounds
	}
	return p.memory[start : start+uint(n)], nil
}
