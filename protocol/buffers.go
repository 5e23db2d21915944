package protocol

// InputBuffer is a source of received bytes.
type InputBuffer interface {
	// Data returns the buffered bytes without consuming them.
	Data() []byte
	Available() int
	// Pop consumes n bytes from the front.
	Pop(n int)
}

// OutputBuffer is a sink for frames under construction. Update and
// DataSince let the framer patch the length byte and checksum the frame.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a byte slice.
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte {
	return s.data
}

func (s *SliceInputBuffer) Available() int {
	return len(s.data)
}

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput is a fixed-size OutputBuffer. Output beyond MessageMax
// bytes is dropped; Overflowed reports it.
type ScratchOutput struct {
	buf      [MessageMax]byte
	pos      int
	overflow bool
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.overflow = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < len(s.buf) {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Overflowed reports whether output was dropped since the last Reset.
func (s *ScratchOutput) Overflowed() bool {
	return s.overflow
}

func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.overflow = false
}

// FifoBuffer is a byte ring buffer. One slot is kept free to tell full
// from empty, so it holds capacity-1 bytes. It is not synchronized; the
// board guards it with the interrupt critical section.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count written.
func (f *FifoBuffer) Write(data []byte) int {
	n := min(len(data), f.Free())
	first := copy(f.buf[f.write:], data[:n])
	copy(f.buf, data[first:n])
	f.write = (f.write + n) % len(f.buf)
	return n
}

// Read consumes up to len(data) bytes.
func (f *FifoBuffer) Read(data []byte) int {
	n := min(len(data), f.Available())
	first := copy(data[:n], f.buf[f.read:])
	copy(data[first:n], f.buf)
	f.Pop(n)
	return n
}

func (f *FifoBuffer) Available() int {
	return (f.write - f.read + len(f.buf)) % len(f.buf)
}

// Free returns the number of bytes that can still be written.
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available() - 1
}

// Data returns the buffered bytes as one slice, copying when the contents
// wrap around the end of the ring.
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	out := make([]byte, f.Available())
	f.peek(out)
	return out
}

func (f *FifoBuffer) peek(out []byte) {
	first := copy(out, f.buf[f.read:])
	copy(out[first:], f.buf[:f.write])
}

// Pop discards up to n bytes from the front.
func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.Available())
	f.read = (f.read + n) % len(f.buf)
}

func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}
