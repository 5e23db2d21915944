package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// maxVLQLen is the longest encoding of a 32-bit value.
const maxVLQLen = 5

// EncodeVLQInt writes v as 1-5 bytes, most significant group first, in a
// single Output call. A leading 7-bit group is emitted while v lies outside
// [-2^(s-2), 3*2^(s-2)), the range the groups below shift s can carry, so
// values in [-32, 96) take one byte.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [maxVLQLen]byte
	n := 0
	for shift := 28; shift > 0; shift -= 7 {
		lo, hi := int32(-1)<<(shift-2), int32(3)<<(shift-2)
		if v < lo || v >= hi {
			buf[n] = byte(v>>shift)&0x7F | 0x80
			n++
		}
	}
	buf[n] = byte(v) & 0x7F
	output.Output(buf[:n+1])
}

// EncodeVLQUint encodes an unsigned integer. It shares the signed encoding,
// so values above 2^31 round-trip through DecodeVLQUint.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt decodes a signed integer and advances data past it. The
// first byte's bits 5-6 both set means a negative value.
func DecodeVLQInt(data *[]byte) (int32, error) {
	in := *data
	if len(in) == 0 {
		return 0, ErrBufferTooSmall
	}

	var v uint32
	if in[0]&0x60 == 0x60 {
		v = ^uint32(0)
	}
	for n := 0; ; n++ {
		if n == maxVLQLen {
			return 0, ErrInvalidVLQ
		}
		if n == len(in) {
			return 0, ErrBufferTooSmall
		}
		c := in[n]
		v = v<<7 | uint32(c&0x7F)
		if c&0x80 == 0 {
			*data = in[n+1:]
			return int32(v), nil
		}
	}
}

// DecodeVLQUint decodes an unsigned integer and advances data past it.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	val, err := DecodeVLQInt(data)
	return uint32(val), err
}

// DecodeVLQUints decodes n consecutive unsigned integers, the argument
// list of most commands.
func DecodeVLQUints(data *[]byte, n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// EncodeVLQ returns the encoding of v.
func EncodeVLQ(v int32) []byte {
	output := NewScratchOutput()
	EncodeVLQInt(output, v)
	return output.Result()
}

// DecodeVLQ decodes a value without consuming data and reports the number
// of bytes it occupies.
func DecodeVLQ(data []byte) (int32, int, error) {
	original := len(data)
	val, err := DecodeVLQInt(&data)
	if err != nil {
		return 0, 0, err
	}
	return val, original - len(data), nil
}

// EncodeVLQBytes encodes a length-prefixed byte string.
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes decodes a length-prefixed byte string. The result aliases
// data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	length, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < length {
		return nil, ErrBufferTooSmall
	}
	result := (*data)[:length]
	*data = (*data)[length:]
	return result, nil
}

// EncodeVLQString encodes a length-prefixed string.
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQBytes(output, []byte(s))
}

// DecodeVLQString decodes a length-prefixed string.
func DecodeVLQString(data *[]byte) (string, error) {
	b, err := DecodeVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
