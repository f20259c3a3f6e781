// Package arena provides a pooled byte-buffer arena used to stage vertex,
// triangle, texel and file data between the import bridge and the builders.
//
// An Arena hands out fixed-size blocks carved from lazily allocated spaces.
// Each space holds 40 blocks; a rent takes the largest contiguous free run
// that fits. Arenas are not safe for concurrent use.
package arena

import (
	"errors"
	"fmt"
	"unsafe"
)

// BlocksPerSpace is the number of blocks carved from each allocated space.
const BlocksPerSpace = 40

// blockAlign keeps every block boundary suitable for float32/int32 views.
const blockAlign = 16

// Arena errors.
var (
	ErrClosed        = errors.New("arena is closed")
	ErrDoubleReturn  = errors.New("buffer already returned")
	ErrForeignBuffer = errors.New("buffer does not belong to this arena")
	ErrInvalidSize   = errors.New("invalid buffer size")
)

// Buffer is a rented span of arena memory. It is owned by the renter until
// passed back to Return and must not be used afterwards.
type Buffer struct {
	bytes []byte
	owner *Arena
	space int // -1 for dedicated allocations
	block int
	id    uint64
}

// Bytes returns the whole rented span.
func (b Buffer) Bytes() []byte { return b.bytes }

// Len returns the size of the rented span in bytes.
func (b Buffer) Len() int { return len(b.bytes) }

// IsZero reports whether b is the zero Buffer.
func (b Buffer) IsZero() bool { return b.owner == nil }

type space struct {
	mem    []byte
	rented [BlocksPerSpace]bool
	// largest contiguous free run
	freeStart int
	freeCount int
}

// Arena is a block-based buffer pool.
type Arena struct {
	blockSize int
	spaces    []*space
	live      map[uint64]struct{}
	nextID    uint64
	closed    bool
}

// New creates an arena whose regular buffers can hold at least
// largestBufferBytes bytes.
func New(largestBufferBytes int) (*Arena, error) {
	if largestBufferBytes <= 0 {
		return nil, fmt.Errorf("%w: largest buffer size must be at least 1 byte, got %d", ErrInvalidSize, largestBufferBytes)
	}
	bs := largestBufferBytes/BlocksPerSpace + 1
	if rem := bs % blockAlign; rem != 0 {
		bs += blockAlign - rem
	}
	return &Arena{
		blockSize: bs,
		live:      make(map[uint64]struct{}),
	}, nil
}

// BlockSize returns the size of one block in bytes.
func (a *Arena) BlockSize() int { return a.blockSize }

// MaxBufferSize returns the largest request served from a pooled space.
// Larger requests still succeed but get a dedicated allocation.
func (a *Arena) MaxBufferSize() int { return a.blockSize * BlocksPerSpace }

// Spaces returns the number of pooled spaces allocated so far.
func (a *Arena) Spaces() int { return len(a.spaces) }

// Outstanding returns the number of buffers rented and not yet returned.
func (a *Arena) Outstanding() int { return len(a.live) }

// Rent returns a buffer of at least n bytes.
func (a *Arena) Rent(n int) (Buffer, error) {
	if a.closed {
		return Buffer{}, ErrClosed
	}
	if n < 0 {
		return Buffer{}, fmt.Errorf("%w: %d bytes", ErrInvalidSize, n)
	}
	blocks := (n + a.blockSize - 1) / a.blockSize
	if blocks == 0 {
		blocks = 1
	}

	if blocks > BlocksPerSpace {
		return a.track(Buffer{bytes: make([]byte, n), space: -1}), nil
	}

	for i, s := range a.spaces {
		if s.freeCount >= blocks {
			return a.rentFrom(i, blocks), nil
		}
	}
	a.spaces = append(a.spaces, &space{
		mem:       make([]byte, a.blockSize*BlocksPerSpace),
		freeCount: BlocksPerSpace,
	})
	return a.rentFrom(len(a.spaces)-1, blocks), nil
}

// RentFor returns a buffer able to hold count values of type T.
func RentFor[T any](a *Arena, count int) (Buffer, error) {
	if count < 0 {
		return Buffer{}, fmt.Errorf("%w: %d elements", ErrInvalidSize, count)
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size != 0 && count > (1<<62)/size {
		return Buffer{}, fmt.Errorf("%w: %d elements of %d bytes overflows", ErrInvalidSize, count, size)
	}
	return a.Rent(count * size)
}

// Return gives a rented buffer back to the arena.
func (a *Arena) Return(b Buffer) error {
	if a.closed {
		return ErrClosed
	}
	if b.owner != a {
		return ErrForeignBuffer
	}
	if _, ok := a.live[b.id]; !ok {
		return ErrDoubleReturn
	}
	delete(a.live, b.id)
	if b.space < 0 {
		return nil
	}
	if b.space >= len(a.spaces) {
		return ErrForeignBuffer
	}
	s := a.spaces[b.space]
	n := len(b.bytes) / a.blockSize
	if b.block < 0 || b.block+n > BlocksPerSpace {
		return ErrForeignBuffer
	}
	s.mark(b.block, n, false)
	return nil
}

// Close releases all spaces. Outstanding buffers become invalid.
func (a *Arena) Close() {
	if a.closed {
		return
	}
	a.spaces = nil
	a.live = nil
	a.closed = true
}

func (a *Arena) rentFrom(idx, blocks int) Buffer {
	s := a.spaces[idx]
	start := s.freeStart
	s.mark(start, blocks, true)
	off := start * a.blockSize
	return a.track(Buffer{
		bytes: s.mem[off : off+blocks*a.blockSize : off+blocks*a.blockSize],
		space: idx,
		block: start,
	})
}

func (a *Arena) track(b Buffer) Buffer {
	a.nextID++
	b.owner = a
	b.id = a.nextID
	a.live[b.id] = struct{}{}
	return b
}

// mark flips the ledger for a block run and recomputes the largest free run.
func (s *space) mark(first, n int, rented bool) {
	for i := first; i < first+n; i++ {
		s.rented[i] = rented
	}
	s.freeStart, s.freeCount = 0, 0
	runStart, runLen := 0, 0
	for i := 0; i < BlocksPerSpace; i++ {
		if s.rented[i] {
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = i
		}
		runLen++
		if runLen > s.freeCount {
			s.freeStart, s.freeCount = runStart, runLen
		}
	}
}

// View reinterprets the first n elements of a buffer as []T.
// It panics if the buffer is too small.
func View[T any](b Buffer, n int) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if n < 0 || n*size > len(b.bytes) {
		panic(fmt.Sprintf("arena: buffer of %d bytes cannot hold %d elements of %d bytes", len(b.bytes), n, size))
	}
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b.bytes[0])), n)
}
