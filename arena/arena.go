package arena

import (
	"io"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"github.com/evanhoyt/fixedheap/heaputils"
)

const (
	// MaxAlign is the alignment of every pointer returned from Alloc. It matches the
	// strictest alignment any primitive value can require on supported platforms.
	MaxAlign = 16

	// HeaderSize is the number of bytes of bookkeeping that prefix every block in a
	// region, free or allocated.
	HeaderSize = int(unsafe.Sizeof(blockHeader{}))
)

const (
	// nextNone terminates the free list.
	nextNone uint64 = ^uint64(0)
	// nextAllocated marks a block as live. A block is a free-list member if and only
	// if its next field holds something other than nextAllocated.
	nextAllocated uint64 = ^uint64(0) - 1
)

const blockFlagFree uint64 = 1

// blockHeader prefixes every block, threaded directly through the managed buffer.
// next holds the byte offset of the following free-list entry relative to the
// region base, or one of the two reserved values above. size is the payload byte
// count, excluding the header itself. The free flag is redundant with next and
// exists to catch double frees coming in from a stale user pointer.
type blockHeader struct {
	next  uint64
	size  uint64
	flags uint64
}

func (h *blockHeader) isFree() bool {
	return h.flags&blockFlagFree != 0
}

func (h *blockHeader) markFree() {
	h.flags |= blockFlagFree
}

func (h *blockHeader) markTaken() {
	h.flags &= ^blockFlagFree
}

// Arena manages variable-size allocations inside a single caller-owned byte
// buffer. Block headers, the free list, and all padding live inside the buffer
// itself; only error values and log records are allocated on the Go heap.
//
// An Arena is single-owner. It performs no locking and must not be shared
// between goroutines without external serialization.
type Arena struct {
	buf  []byte
	base unsafe.Pointer
	size int

	available  int
	allocCount int
	freeHead   uint64

	logger *slog.Logger
}

var _ heaputils.Validatable = &Arena{}

// Init points the arena at a caller-owned buffer and formats it as a single
// spanning free block. The buffer base is aligned up to MaxAlign first, so up to
// MaxAlign-1 leading bytes may be sacrificed. Init fails if the buffer is nil or
// too small to hold a header plus at least one payload byte after alignment.
//
// The arena does not take ownership: the caller must keep the buffer alive for
// as long as the arena is in use. Passing a nil logger disables logging.
func (a *Arena) Init(buf []byte, logger *slog.Logger) error {
	heaputils.DebugCheckPow2(MaxAlign, "max primitive alignment")

	if buf == nil {
		return errors.New("arena: backing buffer is nil")
	}
	if len(buf) < HeaderSize {
		return errors.Errorf("arena: backing buffer holds %d bytes, the block header alone requires %d", len(buf), HeaderSize)
	}

	base := unsafe.Pointer(unsafe.SliceData(buf))
	aligned := heaputils.AlignUp(uintptr(base), uintptr(MaxAlign))
	adjust := int(aligned - uintptr(base))
	effective := len(buf) - adjust
	if effective < HeaderSize+1 {
		return errors.Errorf("arena: only %d bytes remain after aligning the buffer base, need at least %d", effective, HeaderSize+1)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	a.buf = buf
	a.base = unsafe.Add(base, adjust)
	a.size = effective
	a.available = effective - HeaderSize
	a.allocCount = 0
	a.logger = logger

	head := a.header(0)
	head.size = uint64(a.available)
	head.next = nextNone
	head.flags = 0
	head.markFree()
	a.freeHead = 0

	heaputils.DebugValidate(a)

	return nil
}

// Reset instantly frees every allocation, returning the arena to its
// just-initialized state. Outstanding pointers become invalid.
func (a *Arena) Reset() {
	if a.base == nil {
		return
	}

	a.available = a.size - HeaderSize
	a.allocCount = 0

	head := a.header(0)
	head.size = uint64(a.available)
	head.next = nextNone
	head.flags = 0
	head.markFree()
	a.freeHead = 0

	heaputils.DebugValidate(a)
}

// Size returns the number of usable bytes in the region after base alignment.
func (a *Arena) Size() int {
	return a.size
}

// Available returns the total free payload bytes across all free blocks. A
// single allocation can never quite reach this value because of header and
// alignment overhead.
func (a *Arena) Available() int {
	return a.available
}

// AllocationCount returns the number of live allocations.
func (a *Arena) AllocationCount() int {
	return a.allocCount
}

// IsEmpty will return true if this arena has no live allocations
func (a *Arena) IsEmpty() bool {
	return a.allocCount == 0
}

// FreeBlockCount walks the free list and returns its length.
func (a *Arena) FreeBlockCount() int {
	count := 0
	for cur := a.freeHead; cur != nextNone; cur = a.header(int(cur)).next {
		count++
	}
	return count
}

// VisitAllBlocks calls the provided callback once for each physical block in the
// region, in address order, whether allocated or free. The offset is relative to
// the aligned region base and locates the block header; size is the block's
// payload byte count.
func (a *Arena) VisitAllBlocks(handleBlock func(offset, size int, free bool) error) error {
	for off := 0; off < a.size; {
		h := a.header(off)
		err := handleBlock(off, int(h.size), h.isFree())
		if err != nil {
			return err
		}
		off += HeaderSize + int(h.size)
	}
	return nil
}

// VisitFreeList calls the provided callback once for each free block, in
// free-list order rather than address order.
func (a *Arena) VisitFreeList(handleBlock func(offset, size int) error) error {
	for cur := a.freeHead; cur != nextNone; {
		h := a.header(int(cur))
		err := handleBlock(int(cur), int(h.size))
		if err != nil {
			return err
		}
		cur = h.next
	}
	return nil
}

func (a *Arena) header(offset int) *blockHeader {
	return (*blockHeader)(unsafe.Add(a.base, offset))
}

// contains reports whether p lies inside the aligned region.
func (a *Arena) contains(p unsafe.Pointer) bool {
	return uintptr(p) >= uintptr(a.base) && uintptr(p) < uintptr(a.base)+uintptr(a.size)
}
