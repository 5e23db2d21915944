// Package client talks to a board over the framed wire protocol.
package client

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"adcore/host/serial"
	"adcore/kernel"
	"adcore/protocol"
)

// Bootstrap message IDs, fixed before the dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1
)

const (
	// DefaultTimeout bounds the wait for a command's response.
	DefaultTimeout = 2 * time.Second

	identifyChunk = 40
	memoryChunk   = 32
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrNoDictionary  = errors.New("dictionary not loaded")
	ErrBoardShutdown = errors.New("board shut down")
)

// Upcall is an upcall a board process received.
type Upcall struct {
	PID       uint32
	Driver    uint32
	Subscribe uint8
	Arg0      int32
	Arg1      uint32
	Arg2      uint32
}

// CommandResult is the outcome of a command syscall.
type CommandResult struct {
	Variant kernel.ReturnVariant
	Err     kernel.ErrorCode
	Value   uint32
}

// Error returns the failure, or nil on success.
func (r CommandResult) Error() error {
	if r.Variant == kernel.ReturnFailure {
		return r.Err
	}
	return nil
}

type reply struct {
	id   uint16
	data []byte
}

// Client is one connection to a board. Requests are serialized; upcalls
// arrive on Upcalls independently.
type Client struct {
	transport *protocol.HostTransport
	port      serial.Port

	mu             sync.Mutex
	dictionary     *Dictionary
	dictionaryData []byte

	// IDs of unsolicited responses, -1 until the dictionary is loaded.
	upcallID   atomic.Int32
	shutdownID atomic.Int32

	replies chan reply
	upcalls chan Upcall
	dropped atomic.Uint32

	Timeout time.Duration
}

// New creates an unconnected client.
func New() *Client {
	c := &Client{
		replies: make(chan reply, 64),
		upcalls: make(chan Upcall, 1024),
		Timeout: DefaultTimeout,
	}
	c.upcallID.Store(-1)
	c.shutdownID.Store(-1)
	return c
}

// Connect opens a serial device.
func (c *Client) Connect(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.ConnectPort(port)
	return nil
}

// ConnectPort starts talking over an already open port.
func (c *Client) ConnectPort(port serial.Port) {
	c.port = port
	c.transport = protocol.NewHostTransport(port)
	c.transport.SetResponseHandler(c.handleResponse)
}

// Close closes the transport and its port.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

// Upcalls delivers every upcall reported by the board. When the channel is
// full new upcalls are dropped and counted.
func (c *Client) Upcalls() <-chan Upcall {
	return c.upcalls
}

// DroppedUpcalls returns the number of upcalls lost to a full channel.
func (c *Client) DroppedUpcalls() uint32 {
	return c.dropped.Load()
}

func (c *Client) Dictionary() *Dictionary {
	return c.dictionary
}

func (c *Client) DictionaryRaw() []byte {
	return c.dictionaryData
}

// handleResponse runs on the transport's read loop and must not block.
func (c *Client) handleResponse(cmdID uint16, data *[]byte) error {
	if int32(cmdID) == c.upcallID.Load() {
		up, err := decodeUpcall(*data)
		if err != nil {
			return err
		}
		select {
		case c.upcalls <- up:
		default:
			c.dropped.Add(1)
		}
		return nil
	}

	payload := make([]byte, len(*data))
	copy(payload, *data)
	select {
	case c.replies <- reply{id: cmdID, data: payload}:
	default:
		// Nobody is waiting for it.
	}
	return nil
}

func decodeUpcall(data []byte) (Upcall, error) {
	var up Upcall
	fields := []func() error{
		func() (err error) { up.PID, err = protocol.DecodeVLQUint(&data); return },
		func() (err error) { up.Driver, err = protocol.DecodeVLQUint(&data); return },
		func() error {
			v, err := protocol.DecodeVLQUint(&data)
			up.Subscribe = uint8(v)
			return err
		},
		func() (err error) { up.Arg0, err = protocol.DecodeVLQInt(&data); return },
		func() (err error) { up.Arg1, err = protocol.DecodeVLQUint(&data); return },
		func() (err error) { up.Arg2, err = protocol.DecodeVLQUint(&data); return },
	}
	for _, f := range fields {
		if err := f(); err != nil {
			return Upcall{}, fmt.Errorf("decode upcall: %w", err)
		}
	}
	return up, nil
}

// exchange sends one command and returns the arguments of the response
// with ID want. Other replies received meanwhile are discarded.
func (c *Client) exchange(cmdID, want uint16, args func(output protocol.OutputBuffer)) ([]byte, error) {
	if c.transport == nil {
		return nil, ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Stale replies belong to requests that already timed out.
	for len(c.replies) > 0 {
		<-c.replies
	}

	if err := c.transport.SendCommand(cmdID, args); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(c.Timeout)
	defer deadline.Stop()
	for {
		select {
		case r := <-c.replies:
			if r.id == want {
				return r.data, nil
			}
			if int32(r.id) == c.shutdownID.Load() {
				reason, _ := protocol.DecodeVLQString(&r.data)
				return nil, fmt.Errorf("%w: %s", ErrBoardShutdown, reason)
			}
		case <-deadline.C:
			return nil, fmt.Errorf("no response %d to command %d after %v", want, cmdID, c.Timeout)
		case <-c.transport.Done():
			return nil, protocol.ErrTransportClosed
		}
	}
}

// request looks both messages up by name and decodes n unsigned response
// arguments.
func (c *Client) request(command, response string, n int, args ...uint32) ([]uint32, error) {
	data, err := c.requestRaw(command, response, args...)
	if err != nil {
		return nil, err
	}
	out, err := protocol.DecodeVLQUints(&data, n)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", response, err)
	}
	return out, nil
}

func (c *Client) requestRaw(command, response string, args ...uint32) ([]byte, error) {
	if c.dictionary == nil {
		return nil, ErrNoDictionary
	}
	cmdID, ok := c.dictionary.CommandID(command)
	if !ok {
		return nil, fmt.Errorf("board has no command %s", command)
	}
	respID, ok := c.dictionary.ResponseID(response)
	if !ok {
		return nil, fmt.Errorf("board has no response %s", response)
	}
	return c.exchange(cmdID, respID, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	})
}

// RetrieveDictionary downloads and parses the board's dictionary.
func (c *Client) RetrieveDictionary() error {
	var buf bytes.Buffer
	for offset := uint32(0); ; {
		chunk, err := c.identify(offset)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}

	r, err := zlib.NewReader(&buf)
	if err != nil {
		return fmt.Errorf("dictionary: %w", err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("dictionary: %w", err)
	}

	dict := &Dictionary{}
	if err := json.Unmarshal(raw, dict); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}

	c.dictionaryData = raw
	c.dictionary = dict
	if id, ok := dict.ResponseID("upcall"); ok {
		c.upcallID.Store(int32(id))
	}
	if id, ok := dict.ResponseID("shutdown"); ok {
		c.shutdownID.Store(int32(id))
	}
	return nil
}

func (c *Client) identify(offset uint32) ([]byte, error) {
	data, err := c.exchange(identifyID, identifyResponseID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, identifyChunk)
	})
	if err != nil {
		return nil, err
	}

	respOffset, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return nil, fmt.Errorf("decode offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}
	chunk, err := protocol.DecodeVLQBytes(&data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return chunk, nil
}

// Clock returns the board's timer.
func (c *Client) Clock() (uint32, error) {
	out, err := c.request("get_clock", "clock", 1)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Advance runs the board's timer forward and returns the new time. Upcalls
// raised on the way are on Upcalls when it returns.
func (c *Client) Advance(ticks uint32) (uint32, error) {
	out, err := c.request("advance_clock", "clock", 1, ticks)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Spawn starts a process and returns its ID.
func (c *Client) Spawn() (uint32, error) {
	out, err := c.request("process_spawn", "process_state", 2)
	if err != nil {
		return 0, err
	}
	if out[1] != uint32(kernel.ProcessRunning) {
		return 0, fmt.Errorf("spawned process %d is in state %d", out[0], out[1])
	}
	return out[0], nil
}

// Kill removes a process. Killing a missing process is not an error.
func (c *Client) Kill(pid uint32) error {
	_, err := c.processOp("process_kill", pid)
	return err
}

// Fault marks a process as crashed and returns its new state.
func (c *Client) Fault(pid uint32) (uint8, error) {
	return c.processOp("process_fault", pid)
}

// Restart revives a faulted process and returns its new state.
func (c *Client) Restart(pid uint32) (uint8, error) {
	return c.processOp("process_restart", pid)
}

func (c *Client) processOp(command string, pid uint32) (uint8, error) {
	out, err := c.request(command, "process_state", 2, pid)
	if err != nil {
		return 0, err
	}
	return uint8(out[1]), nil
}

// Command issues a command syscall for pid.
func (c *Client) Command(pid, driver, cmd, arg1, arg2 uint32) (CommandResult, error) {
	out, err := c.request("syscall_command", "syscall_result", 4, pid, driver, cmd, arg1, arg2)
	if err != nil {
		return CommandResult{}, err
	}
	return CommandResult{
		Variant: kernel.ReturnVariant(out[1]),
		Err:     kernel.ErrorCode(out[2]),
		Value:   out[3],
	}, nil
}

// Allow shares length bytes at addr of pid's memory with a driver. It
// returns the buffer the driver handed back; on failure that is the one
// just offered.
func (c *Client) Allow(pid, driver, num, addr, length uint32) (prevAddr, prevLen uint32, err error) {
	out, err := c.request("syscall_allow", "allow_result", 4, pid, driver, num, addr, length)
	if err != nil {
		return 0, 0, err
	}
	if out[1] != 0 {
		err = kernel.ErrorCode(out[1])
	}
	return out[2], out[3], err
}

// ReadMemory reads n bytes of pid's memory.
func (c *Client) ReadMemory(pid, addr uint32, n int) ([]byte, error) {
	mem := make([]byte, 0, n)
	for len(mem) < n {
		count := min(n-len(mem), memoryChunk)
		at := addr + uint32(len(mem))

		data, err := c.requestRaw("memory_read", "memory_data", pid, at, uint32(count))
		if err != nil {
			return nil, err
		}
		for range 2 {
			if _, err := protocol.DecodeVLQUint(&data); err != nil {
				return nil, fmt.Errorf("decode memory_data: %w", err)
			}
		}
		chunk, err := protocol.DecodeVLQBytes(&data)
		if err != nil {
			return nil, fmt.Errorf("decode memory_data: %w", err)
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("read %d bytes at %#x of pid %d: %w", count, at, pid, kernel.ErrAddressOutOfBounds)
		}
		mem = append(mem, chunk...)
	}
	return mem, nil
}

// Measure returns a channel's input voltage in microvolts.
func (c *Client) Measure(channel uint32) (int32, error) {
	data, err := c.requestRaw("adc_measure", "adc_voltage", channel)
	if err != nil {
		return 0, err
	}
	if _, err := protocol.DecodeVLQUint(&data); err != nil {
		return 0, fmt.Errorf("decode adc_voltage: %w", err)
	}
	uv, err := protocol.DecodeVLQInt(&data)
	if err != nil {
		return 0, fmt.Errorf("decode adc_voltage: %w", err)
	}
	return uv, nil
}
