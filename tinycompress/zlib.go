// Package tinycompress writes zlib streams made of stored DEFLATE blocks.
// It never compresses, so it needs no window or tables and allocates
// nothing after construction beyond the data it is given.
package tinycompress

import (
	"errors"
	"hash"
	"hash/adler32"
	"io"
)

// maxStoredBlock is the largest payload of one stored DEFLATE block.
const maxStoredBlock = 0xFFFF

// zlibHeader is CMF/FLG for deflate with a 32K window and default level.
var zlibHeader = [2]byte{0x78, 0x9C}

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers everything written to it and emits the zlib stream on
// Close.
type Writer struct {
	output io.Writer
	buf    []byte
	adler  hash.Hash32
	closed bool
}

// NewWriter returns a writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{output: w, adler: adler32.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the header, one stored block per 64K of input and the
// Adler-32 trailer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.output.Write(zlibHeader[:]); err != nil {
		return err
	}

	data := w.buf
	for {
		n := min(len(data), maxStoredBlock)
		final := n == len(data)
		if err := w.writeBlock(data[:n], final); err != nil {
			return err
		}
		data = data[n:]
		if final {
			break
		}
	}

	w.adler.Write(w.buf)
	sum := w.adler.Sum32()
	_, err := w.output.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return err
}

func (w *Writer) writeBlock(block []byte, final bool) error {
	var hdr [5]byte
	if final {
		hdr[0] = 0x01
	}
	length := uint16(len(block))
	hdr[1], hdr[2] = byte(length), byte(length>>8)
	hdr[3], hdr[4] = byte(^length), byte(^length>>8)
	if _, err := w.output.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.output.Write(block)
	return err
}

// Compress returns data as a zlib stream.
func Compress(data []byte) []byte {
	var out sliceWriter
	w := NewWriter(&out)
	_, _ = w.Write(data)
	_ = w.Close()
	return out
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}
