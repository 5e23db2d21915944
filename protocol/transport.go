package protocol

import (
	"errors"
	"sync/atomic"
)

var errHandlerPanic = errors.New("command handler panicked")

// CommandHandler handles one decoded command. It must consume exactly the
// command's arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the board side of the link: it validates and acknowledges
// frames from the host, dispatches their commands and frames responses.
type Transport struct {
	framer

	// nextSequence is the sequence expected from the host (0x10-0x1F).
	// Acks and responses carry the same value.
	nextSequence uint32

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()
	errorCallback func(cmdID uint16, err error)
}

// NewTransport creates a transport writing frames to output.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
	t.checkDest = true
	t.onResync = t.encodeAckNak
	t.setSynchronized(true)
	return t
}

// Receive consumes every complete frame in input.
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.scan(input.Data(), func(msg *Message) {
		seq := msg.Sequence
		expected := uint8(atomic.LoadUint32(&t.nextSequence))

		// A host that restarts begins again at MessageDest.
		if seq == MessageDest && expected != MessageDest {
			atomic.StoreUint32(&t.nextSequence, MessageDest)
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if seq == expected {
			atomic.StoreUint32(&t.nextSequence, uint32(nextSeq(seq)))
			t.parseFrame(msg.Payload)
		}
		// Out-of-sequence frames are not processed; the ack carrying the
		// expected sequence acts as a nak.
		t.encodeAckNak()
	})
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame dispatches the commands in a frame. A handler error stops the
// rest of the frame.
func (t *Transport) parseFrame(frame []byte) {
	var cmdID uint32
	defer func() {
		if r := recover(); r != nil {
			t.setSynchronized(false)
			t.reportError(uint16(cmdID), errHandlerPanic)
		}
	}()

	for len(frame) > 0 {
		var err error
		cmdID, err = DecodeVLQUint(&frame)
		if err != nil {
			t.setSynchronized(false)
			t.reportError(0, err)
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			t.reportError(uint16(cmdID), err)
			return
		}
	}
}

func (t *Transport) reportError(cmdID uint16, err error) {
	if t.errorCallback != nil {
		t.errorCallback(cmdID, err)
	}
}

// encodeAckNak writes an empty frame carrying the next expected sequence.
func (t *Transport) encodeAckNak() {
	ns := uint8(atomic.LoadUint32(&t.nextSequence))
	t.output.Output(EncodeMessage(ns, nil))

	// The host waits for the ack before sending again.
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one frame whose payload is produced by frameData.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()

	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	t.output.Output([]byte{0, seq})

	frameData(t.output)

	changed := len(t.output.DataSince(cursor))
	t.output.Update(cursor, uint8(changed+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{
		uint8(crc >> 8),
		uint8(crc),
		MessageValueSync,
	})
}

// SendCommand frames one message with its arguments.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its initial sequence.
func (t *Transport) Reset() {
	t.setSynchronized(true)
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback run when the host restarts its sequence.
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback run after every ack is written.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorCallback sets a callback run when a command fails to decode or
// its handler returns an error.
func (t *Transport) SetErrorCallback(callback func(cmdID uint16, err error)) {
	t.errorCallback = callback
}
