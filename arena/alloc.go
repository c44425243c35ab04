package arena

import (
	"context"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"github.com/evanhoyt/fixedheap/heaputils"
)

const noOffset = -1

// Alloc carves n bytes out of the region and returns a pointer aligned to
// MaxAlign. The byte immediately behind the returned pointer records the
// distance back to the block header, which is how Free finds its way home.
//
// Alloc walks the free list once and picks the candidate whose leftover after
// the allocation would be smallest, computing the real cost per candidate since
// padding depends on each block's address. Ties go to the earlier block in
// free-list order. On any failure the arena is left exactly as it was and
// ErrOutOfMemory (or a sizing error) is returned with a nil pointer.
func (a *Arena) Alloc(n int) (unsafe.Pointer, error) {
	if a.base == nil {
		return nil, errors.New("arena: Alloc called before Init")
	}
	if n <= 0 {
		return nil, errors.Errorf("arena: allocation size must be positive, got %d", n)
	}

	needed := n + heaputils.TailGuardSize

	// MaxAlign is the worst-case padding-plus-offset-byte cost of any block.
	if needed > a.available-MaxAlign || a.freeHead == nextNone {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "allocation refused",
			slog.Int("requested", n),
			slog.Int("available", a.available))
		return nil, cerrors.Wrapf(ErrOutOfMemory, "requested %d bytes with %d available", n, a.available)
	}

	var (
		prev     = noOffset
		bestOff  = noOffset
		bestPrev = noOffset
		bestFit  = 0
		bestCost = 0
		bestUser = 0
	)

	for cur := a.freeHead; cur != nextNone; {
		h := a.header(int(cur))
		hdrEnd := int(cur) + HeaderSize
		// The user pointer must land on an aligned byte strictly past the header,
		// leaving at least one byte behind it for the reverse offset.
		userOff := heaputils.AlignUp(hdrEnd+1, MaxAlign)
		allocSize := userOff + needed - hdrEnd

		if allocSize <= int(h.size) {
			fit := int(h.size) - allocSize
			if bestOff == noOffset || fit < bestFit {
				bestOff = int(cur)
				bestPrev = prev
				bestFit = fit
				bestCost = allocSize
				bestUser = userOff
				if fit == 0 {
					break
				}
			}
		}

		prev = int(cur)
		cur = h.next
	}

	if bestOff == noOffset {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "allocation refused",
			slog.Int("requested", n),
			slog.Int("available", a.available),
			slog.Int("freeBlocks", a.FreeBlockCount()))
		return nil, cerrors.Wrapf(ErrOutOfMemory, "no free block fits %d bytes", n)
	}

	best := a.header(bestOff)
	hdrEnd := bestOff + HeaderSize

	// Round the post-allocation boundary up to the alignment; the remainder
	// block, if one is carved off, begins there.
	allocSize := heaputils.AlignUp(hdrEnd+bestCost, MaxAlign) - hdrEnd
	remainder := int(best.size) - allocSize

	split := remainder >= HeaderSize+1
	if !split {
		// The leftover cannot hold a header plus a single payload byte, so the
		// whole block is consumed and the candidate leaves the free list.
		allocSize = int(best.size)
		if bestPrev == noOffset {
			a.freeHead = best.next
		} else {
			a.header(bestPrev).next = best.next
		}
		a.available -= allocSize
	} else {
		remOff := hdrEnd + allocSize
		rem := a.header(remOff)
		rem.size = uint64(remainder - HeaderSize)
		rem.next = best.next
		rem.flags = 0
		rem.markFree()
		if bestPrev == noOffset {
			a.freeHead = uint64(remOff)
		} else {
			a.header(bestPrev).next = uint64(remOff)
		}
		// The remainder's header comes out of the free byte count as well.
		a.available -= allocSize + HeaderSize
	}

	best.size = uint64(allocSize)
	best.next = nextAllocated
	best.markTaken()
	a.allocCount++

	userPtr := unsafe.Add(a.base, bestUser)
	*(*uint8)(unsafe.Add(userPtr, -1)) = uint8(bestUser - hdrEnd)

	if heaputils.TailGuardSize > 0 {
		heaputils.WriteTailGuard(a.base, bestOff+HeaderSize+allocSize-heaputils.TailGuardSize)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelInfo, "allocated block",
		slog.Int("offset", bestOff),
		slog.Int("requested", n),
		slog.Int("blockSize", allocSize),
		slog.Int("fit", bestFit),
		slog.Bool("split", split),
		slog.Int("available", a.available))

	heaputils.DebugValidate(a)

	return userPtr, nil
}
