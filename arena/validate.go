package arena

import (
	"github.com/pkg/errors"

	"github.com/evanhoyt/fixedheap/heaputils"
)

// Validate performs internal consistency checks on the whole region: physical
// blocks must tile it exactly, the free list must contain exactly the free
// blocks, no two adjacent blocks may both be free, and the cached available
// count must equal the sum of free payload sizes. When the arena is functioning
// correctly this method cannot return an error, but it is the backbone of the
// debug build (heaputils.DebugValidate runs it after every mutation) and of the
// test suite.
func (a *Arena) Validate() error {
	if a.base == nil {
		return errors.New("arena has not been initialized")
	}
	if a.available > a.size-HeaderSize {
		return errors.Errorf("available is %d, more than the region could ever hold (%d)", a.available, a.size-HeaderSize)
	}

	// Physical walk: blocks must tile the region contiguously.
	freeBlocks := map[int]bool{}
	freeSize := 0
	freeCount := 0
	allocCount := 0
	prevFree := false
	off := 0
	for off < a.size {
		if off+HeaderSize > a.size {
			return errors.Errorf("block header at offset %d overruns the region", off)
		}
		if !heaputils.IsAligned(off, MaxAlign) {
			return errors.Errorf("block at offset %d does not start on a %d-byte boundary", off, MaxAlign)
		}
		h := a.header(off)
		if h.size == 0 || h.size > uint64(a.size-off-HeaderSize) {
			return errors.Errorf("block at offset %d has size %d, which overruns the region", off, h.size)
		}
		if h.isFree() {
			if prevFree {
				return errors.Errorf("the free block at offset %d physically follows another free block", off)
			}
			if h.next == nextAllocated {
				return errors.Errorf("block at offset %d is flagged free but carries the live-allocation marker", off)
			}
			freeBlocks[off] = false
			freeSize += int(h.size)
			freeCount++
			prevFree = true
		} else {
			if h.next != nextAllocated {
				return errors.Errorf("block at offset %d is live but does not carry the live-allocation marker", off)
			}
			allocCount++
			prevFree = false
		}
		off += HeaderSize + int(h.size)
	}
	if off != a.size {
		return errors.Errorf("physical blocks tile %d bytes but the region holds %d", off, a.size)
	}

	// Free-list walk: exactly the free blocks, each exactly once.
	listCount := 0
	for cur := a.freeHead; cur != nextNone; {
		visited, ok := freeBlocks[int(cur)]
		if !ok {
			return errors.Errorf("the free list references offset %d, which is not the start of a free block", int(cur))
		}
		if visited {
			return errors.Errorf("the free list visits the block at offset %d twice", int(cur))
		}
		freeBlocks[int(cur)] = true
		listCount++
		cur = a.header(int(cur)).next
	}
	if listCount != freeCount {
		return errors.Errorf("the free list holds %d blocks but the region holds %d free blocks", listCount, freeCount)
	}

	if freeSize != a.available {
		return errors.Errorf("available is %d but the free blocks only add up to %d", a.available, freeSize)
	}
	if allocCount != a.allocCount {
		return errors.Errorf("the allocation count is %d but the region holds %d live blocks", a.allocCount, allocCount)
	}

	return nil
}

// CheckCorruption verifies the tail guards written after every live
// allocation. Guards are only written when the module is built with the
// heap_debug tag; without it this method cannot fail, but it walks the region
// regardless and should only be run as a diagnostic.
func (a *Arena) CheckCorruption() error {
	return a.VisitAllBlocks(func(offset, size int, free bool) error {
		if free {
			return nil
		}
		if !heaputils.CheckTailGuard(a.base, offset+HeaderSize+size-heaputils.TailGuardSize) {
			return errors.Errorf("memory corruption detected after the allocation at offset %d", offset)
		}
		return nil
	})
}
