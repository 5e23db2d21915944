package board

import (
	"tinygo.org/x/drivers"

	hil "adcore/hil/adc"
	"adcore/kernel"
	"adcore/protocol"
)

// Process states reported by process_state. Live states use the kernel's
// numbering.
const (
	StateGone    = 0
	StateRunning = uint8(kernel.ProcessRunning)
	StateFaulted = uint8(kernel.ProcessFaulted)
)

// MemoryChunkMax is the largest memory_read a single frame can answer.
const MemoryChunkMax = 40

// registerCommands registers every message. identify_response and identify
// must be first so the host can bootstrap with fixed IDs 0 and 1.
func (b *Board) registerCommands() {
	r := b.registry
	r.RegisterResponse("identify_response", "offset=%u data=%*s")
	r.Register("identify", "offset=%u count=%c", b.handleIdentify)

	r.Register("get_clock", "", b.handleGetClock)
	r.Register("advance_clock", "ticks=%u", b.handleAdvanceClock)
	r.Register("process_spawn", "", b.handleSpawn)
	r.Register("process_kill", "pid=%u", b.processOp((*kernel.Processes).Kill))
	r.Register("process_fault", "pid=%u", b.processOp((*kernel.Processes).Fault))
	r.Register("process_restart", "pid=%u", b.processOp((*kernel.Processes).Restart))
	r.Register("syscall_command", "pid=%u driver=%u cmd=%u arg1=%u arg2=%u", b.handleSyscallCommand)
	r.Register("syscall_allow", "pid=%u driver=%u num=%u addr=%u len=%u", b.handleSyscallAllow)
	r.Register("memory_read", "pid=%u addr=%u count=%c", b.handleMemoryRead)
	r.Register("adc_measure", "channel=%u", b.handleMeasure)

	r.RegisterResponse("clock", "clock=%u")
	r.RegisterResponse("process_state", "pid=%u state=%c")
	r.RegisterResponse("syscall_result", "pid=%u variant=%c error=%c value=%u")
	r.RegisterResponse("allow_result", "pid=%u error=%c addr=%u len=%u")
	r.RegisterResponse("memory_data", "pid=%u addr=%u data=%*s")
	r.RegisterResponse("upcall", "pid=%u driver=%u sub=%c arg0=%i arg1=%u arg2=%u")
	r.RegisterResponse("adc_voltage", "channel=%u uv=%i")
	r.RegisterResponse("shutdown", "reason=%*s")
}

func (b *Board) handleIdentify(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 2)
	if err != nil {
		return err
	}
	offset, count := args[0], uint8(args[1])

	chunk := b.dict.GetChunk(offset, count)
	b.sendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func (b *Board) handleGetClock(*[]byte) error {
	b.sendClock()
	return nil
}

func (b *Board) sendClock() {
	now := b.timers.Now()
	b.sendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, now)
	})
}

// handleAdvanceClock runs the timer queue forward. Upcalls raised while
// advancing are sent before the clock response.
func (b *Board) handleAdvanceClock(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 1)
	if err != nil {
		return err
	}
	b.timers.Advance(args[0])
	b.sendClock()
	return nil
}

func (b *Board) handleSpawn(*[]byte) error {
	pid := b.procs.Spawn()
	kernel.DebugPrintln("[BOARD] spawned " + pid.String())
	b.sendProcessState(pid)
	return nil
}

// processOp adapts a process-table operation to a pid command. Failures
// show up in the reported state.
func (b *Board) processOp(op func(*kernel.Processes, kernel.ProcessID) error) CommandHandler {
	return func(data *[]byte) error {
		args, err := protocol.DecodeVLQUints(data, 1)
		if err != nil {
			return err
		}
		pid := kernel.ProcessID(args[0])
		if err := op(b.procs, pid); err != nil {
			kernel.DebugPrintln("[BOARD] " + pid.String() + ": " + err.Error())
		}
		b.sendProcessState(pid)
		return nil
	}
}

func (b *Board) sendProcessState(pid kernel.ProcessID) {
	state := uint8(StateGone)
	if s, err := b.procs.State(pid); err == nil {
		state = uint8(s)
	}
	b.sendResponse("process_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(pid))
		protocol.EncodeVLQUint(output, uint32(state))
	})
}

func (b *Board) handleSyscallCommand(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 5)
	if err != nil {
		return err
	}
	pid := kernel.ProcessID(args[0])

	ret := b.syscalls.Command(pid, args[1], uint(args[2]), uint(args[3]), uint(args[4]))
	b.sendResponse("syscall_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(pid))
		protocol.EncodeVLQUint(output, uint32(ret.Variant))
		protocol.EncodeVLQUint(output, uint32(ret.Err))
		protocol.EncodeVLQUint(output, ret.Value)
	})
	return nil
}

func (b *Board) handleSyscallAllow(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 5)
	if err != nil {
		return err
	}
	pid := kernel.ProcessID(args[0])

	addr, length, err := b.syscalls.AllowReadWrite(pid, args[1], uint(args[2]), uint(args[3]), int(args[4]))
	code := kernel.ToErrorCode(err)
	b.sendResponse("allow_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(pid))
		protocol.EncodeVLQUint(output, uint32(code))
		protocol.EncodeVLQUint(output, uint32(addr))
		protocol.EncodeVLQUint(output, uint32(length))
	})
	return nil
}

// handleMemoryRead answers with an empty data field when the range cannot
// be read.
func (b *Board) handleMemoryRead(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 3)
	if err != nil {
		return err
	}
	pid := kernel.ProcessID(args[0])
	addr := args[1]
	count := min(int(args[2]), MemoryChunkMax)

	mem, err := b.procs.ReadMemory(pid, uint(addr), count)
	if err != nil {
		kernel.DebugPrintln("[BOARD] memory_read " + pid.String() + ": " + err.Error())
		mem = nil
	}
	b.sendResponse("memory_data", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(pid))
		protocol.EncodeVLQUint(output, addr)
		protocol.EncodeVLQBytes(output, mem)
	})
	return nil
}

// handleMeasure latches every channel and reports one input voltage.
func (b *Board) handleMeasure(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 1)
	if err != nil {
		return err
	}
	channel := hil.Channel(args[0])

	if err := b.chip.Update(drivers.Voltage); err != nil {
		return err
	}
	uv := b.chip.Voltage(channel)
	b.sendResponse("adc_voltage", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(channel))
		protocol.EncodeVLQInt(output, uv)
	})
	return nil
}

// sendShutdown tells the host the board is going away.
func (b *Board) sendShutdown(reason string) {
	b.sendResponse("shutdown", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQString(output, reason)
	})
}
