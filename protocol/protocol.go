// Package protocol implements the framed wire protocol spoken between the
// simulated board and host tools.
//
// A frame is [len][seq][payload...][crc16 hi][crc16 lo][0x7E]; the payload
// is a sequence of VLQ-encoded command IDs each followed by its arguments.
package protocol

// Version is the wire protocol version reported in the data dictionary.
const Version = "adcore-0.1.0"

// Protocol constants
const (
	MessageMax = 512 // Scratch buffer size; holds several frames between flushes

	// Message sequence masks
	MessageSeqMask  = 0x0F
	MessageSeqShift = 4
)
