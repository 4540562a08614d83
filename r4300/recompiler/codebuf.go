package recompiler

import (
	"encoding/binary"
	"fmt"
)

// HeapArena hands out the backing store of code buffers and enforces a byte limit.
type HeapArena struct {
	Limit int
	used  int
	peak  int
}

func NewHeapArena(limit int) *HeapArena {
	return &HeapArena{Limit: limit}
}

func (a *HeapArena) Alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("alloc %d bytes: %w", n, ErrBufferAlloc)
	}
	if a.Limit > 0 && a.used+n > a.Limit {
		return nil, fmt.Errorf("alloc %d bytes with %d/%d in use: %w", n, a.used, a.Limit, ErrBufferAlloc)
	}
	a.used += n
	if a.used > a.peak {
		a.peak = a.used
	}
	return make([]byte, n), nil
}

func (a *HeapArena) Free(b []byte) {
	a.used -= cap(b)
	if a.used < 0 {
		a.used = 0
	}
}

func (a *HeapArena) Used() int { return a.used }
func (a *HeapArena) Peak() int { return a.peak }

// CodeBuffer is the growable byte buffer a unit's host code lives in. Emission errors
// are sticky: once a write fails every later write is dropped and Err reports the
// first failure.
type CodeBuffer struct {
	arena   *HeapArena
	buf     []byte
	n       int
	err     error
	grows   int
	version uint64
}

func NewCodeBuffer(arena *HeapArena, size int) (*CodeBuffer, error) {
	b, err := arena.Alloc(size)
	if err != nil {
		return nil, err
	}
	return &CodeBuffer{arena: arena, buf: b}, nil
}

func (c *CodeBuffer) Len() int        { return c.n }
func (c *CodeBuffer) Cap() int        { return len(c.buf) }
func (c *CodeBuffer) Bytes() []byte   { return c.buf[:c.n] }
func (c *CodeBuffer) Err() error      { return c.err }
func (c *CodeBuffer) Grows() int      { return c.grows }
func (c *CodeBuffer) Version() uint64 { return c.version }

func (c *CodeBuffer) SetErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

// reserve makes room for n more bytes, doubling the capacity as often as needed.
func (c *CodeBuffer) reserve(n int) bool {
	if c.err != nil {
		return false
	}
	if c.n+n <= len(c.buf) {
		return true
	}
	size := len(c.buf) * 2
	if size == 0 {
		size = DefaultInitialCodeSize
	}
	for c.n+n > size {
		size *= 2
	}
	nb, err := c.arena.Alloc(size)
	if err != nil {
		c.err = err
		return false
	}
	copy(nb, c.buf[:c.n])
	c.arena.Free(c.buf)
	c.buf = nb
	c.grows++
	return true
}

func (c *CodeBuffer) Emit(b ...byte) {
	if !c.reserve(len(b)) {
		return
	}
	copy(c.buf[c.n:], b)
	c.n += len(b)
	c.version++
}

func (c *CodeBuffer) Emit32(v uint32) {
	if !c.reserve(4) {
		return
	}
	binary.LittleEndian.PutUint32(c.buf[c.n:], v)
	c.n += 4
	c.version++
}

func (c *CodeBuffer) Emit64(v uint64) {
	if !c.reserve(8) {
		return
	}
	binary.LittleEndian.PutUint64(c.buf[c.n:], v)
	c.n += 8
	c.version++
}

func (c *CodeBuffer) Get32(off int) uint32 {
	return binary.LittleEndian.Uint32(c.buf[off:])
}

func (c *CodeBuffer) Put32(off int, v uint32) {
	binary.LittleEndian.PutUint32(c.buf[off:], v)
	c.version++
}

// Reset empties the buffer and clears the sticky error, keeping the capacity.
func (c *CodeBuffer) Reset() {
	c.n = 0
	c.err = nil
	c.version++
}

// Release returns the backing store to the arena.
func (c *CodeBuffer) Release() {
	if c.buf != nil {
		c.arena.Free(c.buf)
	}
	c.buf, c.n = nil, 0
	c.version++
}
