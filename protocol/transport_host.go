package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAckTimeout bounds how long SendCommand waits for the board.
const DefaultAckTimeout = 2 * time.Second

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrAckTimeout      = errors.New("ack timeout")
)

// ResponseHandler handles one response from the board. data holds the
// arguments following the command ID.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host side of the link: it frames commands, waits for
// the board's ack and hands responses to a handler or a channel.
type HostTransport struct {
	framer

	port io.ReadWriteCloser

	// currentSeq is the sequence of the next command (0x10-0x1F).
	currentSeq uint32

	inputBuffer *FifoBuffer

	ackChan      chan *Message
	responseChan chan *Message

	// responseHandler, when set, receives responses instead of
	// responseChan. Guarded by readMutex.
	responseHandler ResponseHandler

	sendMutex sync.Mutex
	readMutex sync.Mutex

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
	readErr   atomic.Value
}

// NewHostTransport starts reading from port in the background.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		inputBuffer:  NewFifoBuffer(1024),
		ackChan:      make(chan *Message, 4),
		responseChan: make(chan *Message, 64),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.setSynchronized(true)

	go t.readLoop()

	return t
}

// SendCommand sends one command and waits for the board to acknowledge it.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout is SendCommand with a custom ack timeout.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.sendMutex.Lock()
	defer t.sendMutex.Unlock()

	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	msg, err := buildCommandMessage(seq, cmdID, args)
	if err != nil {
		return fmt.Errorf("build command %d: %w", cmdID, err)
	}

	if err := t.writeMessage(msg); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	}

	if err := t.waitForAck(nextSeq(seq), timeout); err != nil {
		return fmt.Errorf("command %d: %w", cmdID, err)
	}
	atomic.StoreUint32(&t.currentSeq, uint32(nextSeq(seq)))
	return nil
}

func buildCommandMessage(seq uint8, cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}

	payload := scratch.Result()
	if len(payload) > MessagePayloadMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)",
			len(payload)+MessageLengthMin, MessageLengthMax)
	}
	return EncodeMessage(seq, payload), nil
}

func (t *HostTransport) writeMessage(msg []byte) error {
	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

// waitForAck waits for an ack carrying want. Acks for other sequences are
// stale and skipped.
func (t *HostTransport) waitForAck(want uint8, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ack := <-t.ackChan:
			if ack.Sequence == want {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
		case <-t.doneChan:
			return t.closedErr()
		}
	}
}

// ReceiveResponse waits for the next response not taken by a handler.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.doneChan:
		return nil, t.closedErr()
	}
}

// SetResponseHandler routes every later response to handler.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()
	t.responseHandler = handler
}

// Done is closed once the transport stops reading.
func (t *HostTransport) Done() <-chan struct{} {
	return t.doneChan
}

// Err returns the error that stopped the read loop, if any.
func (t *HostTransport) Err() error {
	if err, ok := t.readErr.Load().(error); ok {
		return err
	}
	return nil
}

func (t *HostTransport) closedErr() error {
	if err := t.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return ErrTransportClosed
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.inputBuffer.Write(buffer[:n])
			t.processMessages()
		}
		if err != nil {
			if isClosed(err) {
				t.readErr.Store(err)
				return
			}
			select {
			case <-t.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed)
}

func (t *HostTransport) processMessages() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	consumed := t.scan(t.inputBuffer.Data(), t.dispatchMessage)
	if consumed > 0 {
		t.inputBuffer.Pop(consumed)
	}
}

// dispatchMessage routes an ack to the waiting sender and a response to
// the handler or the response channel.
func (t *HostTransport) dispatchMessage(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
			// Nobody is waiting; drop the oldest ack.
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- msg
		}
		return
	}

	payload := make([]byte, len(msg.Payload))
	copy(payload, msg.Payload)
	msg.Payload = payload

	if t.responseHandler != nil {
		data := payload
		cmdID, err := DecodeVLQUint(&data)
		if err == nil {
			_ = t.responseHandler(uint16(cmdID), &data)
		}
		return
	}

	select {
	case t.responseChan <- msg:
	default:
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the transport and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset returns the transport to its initial sequence and drops anything
// buffered.
func (t *HostTransport) Reset() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	t.setSynchronized(true)
	atomic.StoreUint32(&t.currentSeq, MessageDest)

	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}
	t.inputBuffer.Reset()
}

// CurrentSequence returns the sequence of the next command.
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
