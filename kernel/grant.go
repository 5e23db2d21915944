package kernel

// Grant is a driver's table of per-process state. Entries are created
// zero-valued on first access and vanish with their process.
//
// Enter gives exclusive access to one process's entry. Entering the same
// process again while its entry is already held fails with
// ErrAlreadyEntered.
type Grant[T any] struct {
	procs   *Processes
	driver  uint32
	entries map[ProcessID]*grantEntry[T]
}

type grantEntry[T any] struct {
	gen     uint32
	entered bool
	data    T
}

// NewGrant creates a grant for the given driver number.
func NewGrant[T any](procs *Processes, driverNum uint32) *Grant[T] {
	return &Grant[T]{
		procs:   procs,
		driver:  driverNum,
		entries: make(map[ProcessID]*grantEntry[T]),
	}
}

// Enter runs fn with the process's entry and an upcall handle. It fails
// with ErrNoSuchApp or ErrInactiveApp when the process cannot be entered.
func (g *Grant[T]) Enter(pid ProcessID, fn func(app *T, upcalls *Upcalls)) error {
	e, err := g.entry(pid)
	if err != nil {
		return err
	}
	if e.entered {
		return ErrAlreadyEntered
	}

	e.entered = true
	defer func() { e.entered = false }()

	fn(&e.data, &Upcalls{procs: g.procs, pid: pid, driver: g.driver})
	return nil
}

// Each enters every allocated entry of a running process in ascending
// process order. Entries that are already entered are skipped.
func (g *Grant[T]) Each(fn func(pid ProcessID, app *T, upcalls *Upcalls)) {
	for _, pid := range g.procs.IDs() {
		if _, ok := g.entries[pid]; !ok {
			continue
		}
		_ = g.Enter(pid, func(app *T, upcalls *Upcalls) {
			fn(pid, app, upcalls)
		})
	}
}

// Allocate materializes the process's entry without entering it.
func (g *Grant[T]) Allocate(pid ProcessID) error {
	_, err := g.entry(pid)
	return err
}

func (g *Grant[T]) entry(pid ProcessID) (*grantEntry[T], error) {
	p, err := g.procs.lookup(pid)
	if err != nil {
		if err == ErrNoSuchApp {
			delete(g.entries, pid)
		}
		return nil, err
	}

	e, ok := g.entries[pid]
	if !ok || e.gen != p.generation {
		e = &grantEntry[T]{gen: p.generation}
		g.entries[pid] = e
	}
	return e, nil
}
