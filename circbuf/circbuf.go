// Package circbuf implements the fixed-size circular buffer backing the
// console's stdin queue: an interrupt handler is the sole producer, the
// owning process is the sole consumer, and reads never block: an empty
// buffer just reports no byte available rather than waiting for one.
package circbuf

import "sync/atomic"

// Circbuf_t is a single-producer/single-consumer ring buffer of bytes.
// head and tail are monotonically increasing; only their difference and
// their value modulo bufsz matter, which lets PutByte/GetByte run without
// a mutex as long as there is exactly one producer and one consumer.
type Circbuf_t struct {
	buf   []uint8
	bufsz int
	head  atomic.Uint64 /// next write index (producer-owned)
	tail  atomic.Uint64 /// next read index (consumer-owned)
}

/// MkCircbuf allocates a buffer able to hold sz bytes.
func MkCircbuf(sz int) *Circbuf_t {
	if sz <= 0 {
		panic("bad circbuf size")
	}
	return &Circbuf_t{
		buf:   make([]uint8, sz),
		bufsz: sz,
	}
}

/// Full reports whether the buffer cannot accept more bytes.
func (cb *Circbuf_t) Full() bool {
	return int(cb.head.Load()-cb.tail.Load()) == cb.bufsz
}

/// Empty reports whether the buffer holds no bytes.
func (cb *Circbuf_t) Empty() bool {
	return cb.head.Load() == cb.tail.Load()
}

/// Used returns the number of bytes currently queued.
func (cb *Circbuf_t) Used() int {
	return int(cb.head.Load() - cb.tail.Load())
}

/// PutByte appends b to the buffer. Called from interrupt context; it
/// silently drops the byte when the queue is full, matching a UART FIFO
/// overrun rather than blocking the interrupt handler.
func (cb *Circbuf_t) PutByte(b byte) bool {
	if cb.Full() {
		return false
	}
	h := cb.head.Load()
	cb.buf[int(h)%cb.bufsz] = b
	cb.head.Store(h + 1)
	return true
}

/// GetByte removes and returns the oldest byte. ok is false when the
/// buffer is empty; callers (stdin Read) loop on this non-blocking result.
func (cb *Circbuf_t) GetByte() (b byte, ok bool) {
	t := cb.tail.Load()
	if t == cb.head.Load() {
		return 0, false
	}
	b = cb.buf[int(t)%cb.bufsz]
	cb.tail.Store(t + 1)
	return b, true
}

/// Read drains up to len(dst) queued bytes into dst without blocking,
/// returning the number actually copied.
func (cb *Circbuf_t) Read(dst []byte) int {
	n := 0
	for n < len(dst) {
		b, ok := cb.GetByte()
		if !ok {
			break
		}
		dst[n] = b
		n++
	}
	return n
}
