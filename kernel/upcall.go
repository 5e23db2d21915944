package kernel

// Upcall is an asynchronous notification queued for a process.
type Upcall struct {
	Driver    uint32
	Subscribe int
	Args      [3]uint
}

// Upcalls schedules upcalls for one process on behalf of one driver. It is
// only handed out inside Grant.Enter.
type Upcalls struct {
	procs  *Processes
	pid    ProcessID
	driver uint32
}

// Schedule queues an upcall for the process.
func (u *Upcalls) Schedule(subscribeNum int, a0, a1, a2 uint) error {
	return u.procs.deliver(u.pid, Upcall{
		Driver:    u.driver,
		Subscribe: subscribeNum,
		Args:      [3]uint{a0, a1, a2},
	})
}
