package arena

import (
	"context"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"github.com/evanhoyt/fixedheap/heaputils"
)

// Free returns a block previously handed out by Alloc to the free list, merging
// it with any physically adjacent free neighbor on either side so that no two
// adjacent blocks are ever both free.
//
// Free validates before it mutates: a nil pointer, a pointer outside the
// region, a pointer whose reconstructed header lacks the live-allocation
// marker, and a double free all return an error and leave the arena untouched.
func (a *Arena) Free(p unsafe.Pointer) error {
	if a.base == nil {
		return errors.New("arena: Free called before Init")
	}
	if p == nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "freeing a nil pointer")
		return ErrNilFree
	}
	if !a.contains(p) {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "freeing a pointer from outside the arena",
			slog.Uint64("addr", uint64(uintptr(p))))
		return cerrors.Wrapf(ErrPointerOutOfRange, "pointer %#x is not in [%#x, %#x)",
			uintptr(p), uintptr(a.base), uintptr(a.base)+uintptr(a.size))
	}

	userOff := int(uintptr(p) - uintptr(a.base))

	// The byte behind the user pointer records the distance from the header end
	// to the pointer; a valid value is at least 1.
	reverse := 0
	if userOff >= 1 {
		reverse = int(*(*uint8)(unsafe.Add(p, -1)))
	}
	hdrOff := userOff - reverse - HeaderSize
	if reverse < 1 || hdrOff < 0 {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "freed pointer does not lead back to a block header",
			slog.Int("userOffset", userOff),
			slog.Int("reverseOffset", reverse))
		return cerrors.Wrapf(ErrNotAllocated, "pointer at region offset %d has reverse offset %d", userOff, reverse)
	}

	h := a.header(hdrOff)
	// A freed header never carries the live-allocation marker, so the free flag
	// is checked first for a double free to be reported as one.
	if h.isFree() {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "double free",
			slog.Int("offset", hdrOff),
			slog.Int("size", int(h.size)))
		return cerrors.Wrapf(ErrDoubleFree, "block at offset %d", hdrOff)
	}
	if h.next != nextAllocated {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "freed pointer does not identify a live allocation",
			slog.Int("offset", hdrOff))
		return cerrors.Wrapf(ErrNotAllocated, "block at offset %d does not carry the live-allocation marker", hdrOff)
	}
	if h.size == 0 || h.size > uint64(a.size-hdrOff-HeaderSize) {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "freed block has a corrupted size",
			slog.Int("offset", hdrOff),
			slog.Uint64("size", h.size))
		return cerrors.Wrapf(ErrNotAllocated, "block at offset %d has size %d, which overruns the region", hdrOff, h.size)
	}

	freedPayload := int(h.size)
	blockEnd := hdrOff + HeaderSize + freedPayload

	// One walk finds both physical neighbors. Unlinked neighbors keep the walk
	// cursor's predecessor, so prev only advances past untouched entries.
	left, right := noOffset, noOffset
	prev := noOffset
	for cur := a.freeHead; cur != nextNone && (left == noOffset || right == noOffset); {
		ch := a.header(int(cur))
		next := ch.next
		curEnd := int(cur) + HeaderSize + int(ch.size)

		if int(cur) == blockEnd {
			right = int(cur)
			a.unlink(prev, ch)
		} else if curEnd == hdrOff {
			left = int(cur)
			a.unlink(prev, ch)
		} else {
			prev = int(cur)
		}
		cur = next
	}

	// Merge left first so a three-way join grows the left neighbor across both
	// the freed block and the right neighbor. Each absorbed header turns into
	// free payload; the freed block's own payload is added at the end.
	target := h
	targetOff := hdrOff
	if left != noOffset {
		lh := a.header(left)
		lh.size += uint64(HeaderSize) + h.size
		a.available += HeaderSize

		// The freed block's header is now interior free space; scrub its marker
		// so a stale user pointer cannot pass the liveness checks again.
		h.next = nextNone
		h.markFree()

		target = lh
		targetOff = left
	}
	if right != noOffset {
		rh := a.header(right)
		target.size += uint64(HeaderSize) + rh.size
		a.available += HeaderSize
	}

	target.markFree()
	a.available += freedPayload
	target.next = a.freeHead
	a.freeHead = uint64(targetOff)
	a.allocCount--

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "freed block",
		slog.Int("offset", hdrOff),
		slog.Int("size", freedPayload),
		slog.Bool("mergedLeft", left != noOffset),
		slog.Bool("mergedRight", right != noOffset),
		slog.Int("available", a.available))

	heaputils.DebugValidate(a)

	return nil
}

// unlink removes the block from the free list, patching either the list head or
// the predecessor's link, and clears its next field.
func (a *Arena) unlink(prev int, h *blockHeader) {
	if prev == noOffset {
		a.freeHead = h.next
	} else {
		a.header(prev).next = h.next
	}
	h.next = nextNone
}
