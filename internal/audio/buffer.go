package audio

import (
	"sync"
)

// RingBuffer is a fixed-capacity, thread-safe byte FIFO.
// Synthesis uses it to turn provider reads of arbitrary size into fixed playout quanta.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []byte
	read  int
	write int
	count int
}

// NewRingBuffer creates a buffer holding at most capacity bytes
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write copies as much of data as fits and returns the number of bytes stored
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := 0
	for n < len(data) && rb.count < len(rb.buf) {
		chunk := len(rb.buf) - rb.write
		if free := len(rb.buf) - rb.count; chunk > free {
			chunk = free
		}
		if rest := len(data) - n; chunk > rest {
			chunk = rest
		}
		copy(rb.buf[rb.write:rb.write+chunk], data[n:n+chunk])
		rb.write = (rb.write + chunk) % len(rb.buf)
		rb.count += chunk
		n += chunk
	}
	return n
}

// Read drains up to len(p) bytes into p
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.readLocked(p)
}

func (rb *RingBuffer) readLocked(p []byte) int {
	n := 0
	for n < len(p) && rb.count > 0 {
		chunk := len(rb.buf) - rb.read
		if chunk > rb.count {
			chunk = rb.count
		}
		if rest := len(p) - n; chunk > rest {
			chunk = rest
		}
		copy(p[n:n+chunk], rb.buf[rb.read:rb.read+chunk])
		rb.read = (rb.read + chunk) % len(rb.buf)
		rb.count -= chunk
		n += chunk
	}
	return n
}

// Next removes exactly n bytes when at least n are buffered.
// It returns false and leaves the buffer untouched otherwise.
func (rb *RingBuffer) Next(n int) ([]byte, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n <= 0 || rb.count < n {
		return nil, false
	}
	out := make([]byte, n)
	rb.readLocked(out)
	return out, true
}

// Drain removes and returns everything buffered
func (rb *RingBuffer) Drain() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.count)
	rb.readLocked(out)
	return out
}

// Len returns the number of buffered bytes
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of bytes that can still be written
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buf) - rb.count
}

// Reset discards buffered data
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read, rb.write, rb.count = 0, 0, 0
}
