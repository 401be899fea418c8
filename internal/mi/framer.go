package mi

import (
	"bytes"
	"runtime"
)

// DefaultSentinel returns the prompt line GDB prints after each batch of output
// on the current platform.
func DefaultSentinel() string {
	if runtime.GOOS == "windows" {
		return "(gdb) \r\n"
	}
	return "(gdb) \n"
}

// Framer cuts GDB's output stream into batches terminated by the prompt
// sentinel. It keeps whatever follows the last sentinel until more input
// arrives. A Framer is not safe for concurrent use.
type Framer struct {
	sentinel []byte
	buf      []byte
}

// NewFramer returns a framer splitting on sentinel, or on DefaultSentinel when
// sentinel is empty.
func NewFramer(sentinel string) *Framer {
	if sentinel == "" {
		sentinel = DefaultSentinel()
	}
	return &Framer{sentinel: []byte(sentinel)}
}

// Write appends chunk to the buffer and returns the batches it completed, in
// order. The sentinel itself is not part of any batch.
func (f *Framer) Write(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var batches []string
	for {
		i := bytes.Index(f.buf, f.sentinel)
		if i < 0 {
			break
		}
		batches = append(batches, string(f.buf[:i]))
		f.buf = f.buf[i+len(f.sentinel):]
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return batches
}

// Buffered returns the bytes not yet part of a complete batch.
func (f *Framer) Buffered() []byte {
	return f.buf
}

// Sentinel returns the separator the framer splits on.
func (f *Framer) Sentinel() string {
	return string(f.sentinel)
}
