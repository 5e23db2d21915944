package protocol

import "sync/atomic"

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	// MessagePayloadMax is the largest payload that fits in one frame.
	MessagePayloadMax = MessageLengthMax - MessageLengthMin
)

// Message is one validated frame.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
	CRC      uint16
}

// framer splits a byte stream into frames. After a bad frame it discards
// input up to the next sync byte.
type framer struct {
	isSynchronized uint32 // atomic bool (0 = false, 1 = true)

	// checkDest rejects frames whose sequence byte lacks MessageDest.
	checkDest bool

	// onResync is called when synchronization is regained.
	onResync func()
}

// scan calls fn for every complete frame in data and returns the number of
// bytes consumed. The payload passed to fn aliases data.
func (f *framer) scan(data []byte, fn func(msg *Message)) int {
	total := len(data)

	for len(data) > 0 {
		if !f.synchronized() {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			f.setSynchronized(true)
			if f.onResync != nil {
				f.onResync()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			f.setSynchronized(false)
			continue
		}

		seq := data[MessagePositionSeq]
		if f.checkDest && seq&^MessageSeqMask != MessageDest {
			f.setSynchronized(false)
			continue
		}

		if len(data) < msgLen {
			break
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			f.setSynchronized(false)
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			f.setSynchronized(false)
			continue
		}

		msg := &Message{
			Length:   uint8(msgLen),
			Sequence: seq,
			Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
			CRC:      frameCRC,
		}
		data = data[msgLen:]
		fn(msg)
	}

	return total - len(data)
}

func (f *framer) synchronized() bool {
	return atomic.LoadUint32(&f.isSynchronized) != 0
}

func (f *framer) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&f.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&f.isSynchronized, 0)
	}
}

// nextSeq returns the sequence following seq.
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// EncodeMessage frames a payload with the given sequence byte.
func EncodeMessage(seq uint8, payload []byte) []byte {
	msg := make([]byte, 0, len(payload)+MessageLengthMin)
	msg = append(msg, uint8(len(payload)+MessageLengthMin), seq)
	msg = append(msg, payload...)
	return appendTrailer(msg)
}
