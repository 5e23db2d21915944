// Package board assembles a simulated ADC board: the kernel, the simulated
// converter and one ADC driver variant, served to a host over the framed
// wire protocol.
package board

import (
	"fmt"
	"io"

	"tinygo.org/x/drivers"

	"adcore/capsules/adc"
	"adcore/capsules/virtualadc"
	"adcore/chips/simadc"
	hil "adcore/hil/adc"
	"adcore/kernel"
	"adcore/protocol"
)

// inputFifoSize bounds the bytes received but not yet parsed.
const inputFifoSize = 1024

// Board is one simulated board. Apart from Feed, its methods must be
// called from a single goroutine.
type Board struct {
	cfg *Config

	procs    *kernel.Processes
	timers   *kernel.TimerQueue
	chip     Chip
	syscalls *kernel.Syscalls

	// Exactly one of these serves DriverNumADC.
	dedicated   *adc.Dedicated
	virtualized *adc.Virtualized

	registry *Registry
	dict     *Dictionary

	input     *protocol.FifoBuffer
	output    *protocol.ScratchOutput
	transport *protocol.Transport
	sink      io.Writer

	stats Stats
}

// Chip is the converter a board serves. It also reports its raw inputs
// for adc_measure. The dedicated variant needs a hil.HighSpeedAdc.
type Chip interface {
	hil.Adc
	drivers.Sensor
	Channels() []hil.Channel
	Voltage(channel hil.Channel) int32
}

// ChipFactory builds a chip on the board's timer queue.
type ChipFactory func(cfg *Config, timers *kernel.TimerQueue) (Chip, error)

// Stats counts link activity.
type Stats struct {
	FramesParsed  uint32
	BytesSent     uint32
	BytesDropped  uint32
	CommandErrors uint32
	Panics        uint32
}

// New builds a simulated board from cfg.
func New(cfg *Config) (*Board, error) {
	return NewWithChip(cfg, simulatedChip)
}

func simulatedChip(cfg *Config, timers *kernel.TimerQueue) (Chip, error) {
	sources := make([]simadc.Source, cfg.Channels)
	for i := range sources {
		sources[i] = cfg.Sources[i].source()
	}
	return simadc.New(timers, simadc.Config{
		ResolutionBits:  cfg.ResolutionBits,
		ReferenceMV:     cfg.ReferenceMV,
		ConversionTicks: kernel.TimerFromUS(cfg.ConversionUS),
		Sources:         sources,
	}), nil
}

// NewWithChip builds a board around the chip newChip returns.
func NewWithChip(cfg *Config, newChip ChipFactory) (*Board, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("board config: %w", err)
	}

	b := &Board{
		cfg:      cfg,
		procs:    kernel.NewProcesses(cfg.ProcessMemory),
		timers:   kernel.NewTimerQueue(),
		registry: NewRegistry(),
		input:    protocol.NewFifoBuffer(inputFifoSize),
		output:   protocol.NewScratchOutput(),
		sink:     io.Discard,
	}
	b.syscalls = kernel.NewSyscalls(b.procs)

	chip, err := newChip(cfg, b.timers)
	if err != nil {
		return nil, err
	}
	b.chip = chip

	switch cfg.Variant {
	case VariantVirtualized:
		mux := virtualadc.NewMux(b.chip)
		devices := make([]hil.AdcChannel, 0, cfg.Channels)
		for _, ch := range b.chip.Channels() {
			devices = append(devices, virtualadc.NewDevice(mux, ch))
		}
		grant := kernel.NewGrant[adc.AppSys](b.procs, kernel.DriverNumADC)
		b.virtualized = adc.NewVirtualized(devices, grant)
		b.syscalls.Register(kernel.DriverNumADC, b.virtualized)
	default:
		hs, ok := b.chip.(hil.HighSpeedAdc)
		if !ok {
			return nil, fmt.Errorf("board config: %s variant needs buffered sampling", cfg.Variant)
		}
		grant := kernel.NewGrant[adc.App](b.procs, kernel.DriverNumADC)
		b.dedicated = adc.NewDedicated(hs, grant, b.chip.Channels(),
			hil.NewBuffer(cfg.BufferSamples),
			hil.NewBuffer(cfg.BufferSamples),
			hil.NewBuffer(cfg.BufferSamples))
		b.syscalls.Register(kernel.DriverNumADC, b.dedicated)
	}

	b.transport = protocol.NewTransport(b.output, b.registry.Dispatch)
	b.transport.SetFlushCallback(b.flush)
	b.transport.SetResetCallback(func() {
		kernel.DebugPrintln("[BOARD] host restarted its sequence")
	})
	b.transport.SetErrorCallback(func(cmdID uint16, err error) {
		b.stats.CommandErrors++
		kernel.DebugPrintln("[BOARD] command " + kernel.Itoa(int(cmdID)) + ": " + err.Error())
	})

	b.procs.SetUpcallObserver(b.forwardUpcall)
	b.registerCommands()

	b.dict = NewDictionary(b.registry)
	b.dict.AddConstant("ADC_CHANNELS", cfg.Channels)
	b.dict.AddConstant("ADC_BUFFER_SAMPLES", cfg.BufferSamples)
	b.dict.AddConstant("ADC_RESOLUTION_BITS", cfg.ResolutionBits)
	b.dict.AddConstant("ADC_REFERENCE_MV", cfg.ReferenceMV)
	b.dict.AddConstant("ADC_VARIANT", cfg.Variant)
	b.dict.AddConstant("CLOCK_FREQ", kernel.TimerFreq)
	b.dict.AddConstant("PROCESS_MEMORY", cfg.ProcessMemory)
	b.dict.AddConstant("PROCESS_MEMORY_BASE", kernel.MemoryBase)
	stepped := 0
	if cfg.Stepped {
		stepped = 1
	}
	b.dict.AddConstant("CLOCK_STEPPED", stepped)
	if err := b.dict.Build(); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Board) Config() *Config               { return b.cfg }
func (b *Board) Processes() *kernel.Processes  { return b.procs }
func (b *Board) Timers() *kernel.TimerQueue    { return b.timers }
func (b *Board) Chip() Chip                    { return b.chip }
func (b *Board) Syscalls() *kernel.Syscalls    { return b.syscalls }
func (b *Board) Registry() *Registry           { return b.registry }
func (b *Board) Dictionary() *Dictionary       { return b.dict }
func (b *Board) Stats() Stats                  { return b.stats }
func (b *Board) Dedicated() *adc.Dedicated     { return b.dedicated }
func (b *Board) Virtualized() *adc.Virtualized { return b.virtualized }

// SetOutput directs flushed frames to w.
func (b *Board) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	b.sink = w
}

// forwardUpcall reports an upcall to the host and drains it from the
// process, which has no other reader on a simulated board.
func (b *Board) forwardUpcall(pid kernel.ProcessID, up kernel.Upcall) {
	b.sendResponse("upcall", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(pid))
		protocol.EncodeVLQUint(output, up.Driver)
		protocol.EncodeVLQUint(output, uint32(up.Subscribe))
		protocol.EncodeVLQInt(output, int32(up.Args[0]))
		protocol.EncodeVLQUint(output, uint32(up.Args[1]))
		protocol.EncodeVLQUint(output, uint32(up.Args[2]))
	})
	b.procs.TakeUpcalls(pid)
}

// sendResponse frames one response and flushes it.
func (b *Board) sendResponse(name string, args func(output protocol.OutputBuffer)) {
	cmd, ok := b.registry.Lookup(name)
	if !ok {
		kernel.DebugPrintln("[BOARD] unknown response " + name)
		return
	}
	b.transport.SendCommand(cmd.ID, args)
	b.flush()
}

func (b *Board) flush() {
	if b.output.Overflowed() {
		kernel.DebugPrintln("[BOARD] output overflow")
	}
	result := b.output.Result()
	if len(result) == 0 {
		return
	}
	n, err := b.sink.Write(result)
	b.stats.BytesSent += uint32(n)
	if err != nil {
		b.stats.BytesDropped += uint32(len(result) - n)
		kernel.DebugPrintln("[BOARD] write: " + err.Error())
	}
	b.output.Reset()
}
