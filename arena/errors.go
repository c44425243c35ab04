package arena

import "github.com/pkg/errors"

// ErrOutOfMemory is returned from Alloc when no free block can satisfy the
// request, either because the arena lacks the bytes outright or because
// fragmentation leaves no single block large enough.
var ErrOutOfMemory = errors.New("insufficient free space in the arena")

// ErrNilFree is returned from Free when the pointer is nil. The arena is not
// mutated.
var ErrNilFree = errors.New("freeing a nil pointer")

// ErrPointerOutOfRange is returned from Free when the pointer does not lie
// inside the arena's buffer. The arena is not mutated.
var ErrPointerOutOfRange = errors.New("pointer lies outside the arena")

// ErrNotAllocated is returned from Free when the header reconstructed from the
// pointer does not carry the live-allocation marker: the pointer was never
// returned by this arena's Alloc, or the header has been overwritten. The arena
// is not mutated.
var ErrNotAllocated = errors.New("pointer does not identify a live allocation")

// ErrDoubleFree is returned from Free when the reconstructed header says the
// block is already free. The arena is not mutated.
var ErrDoubleFree = errors.New("block has already been freed")
