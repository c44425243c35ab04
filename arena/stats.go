package arena

import (
	"context"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// Fragmentation reports how badly the free space is scattered, as 1 minus the
// share of it held by the single largest free block. 0 means all remaining
// space is one contiguous run (or there is none at all); values near 1 mean the
// space is shredded into many small blocks.
func (a *Arena) Fragmentation() float64 {
	total := 0
	largest := 0
	for cur := a.freeHead; cur != nextNone; {
		h := a.header(int(cur))
		total += int(h.size)
		if int(h.size) > largest {
			largest = int(h.size)
		}
		cur = h.next
	}

	if total == 0 {
		return 0
	}
	return 1 - float64(largest)/float64(total)
}

// Stats is a point-in-time census of a region: how its bytes split between
// live payloads, free payloads, and header bookkeeping, plus the block-size
// extremes that matter when judging fragmentation.
type Stats struct {
	LiveBlocks  int // blocks currently allocated
	LiveBytes   int // payload bytes held by live blocks, padding included
	FreeBlocks  int // blocks on the free list
	FreeBytes   int // payload bytes still available for allocation
	HeaderBytes int // bytes consumed by block headers, live and free

	LargestFree  int // payload of the biggest free block, 0 when none
	LargestLive  int // payload of the biggest live block, 0 when none
	SmallestLive int // payload of the smallest live block, 0 when none
}

// CollectStats walks the physical block chain once and returns a census of the
// region. The three byte counters always sum to Size; FreeBytes is re-derived
// from the blocks rather than read from the cached available count.
func (a *Arena) CollectStats() Stats {
	var stats Stats
	_ = a.VisitAllBlocks(func(offset, size int, free bool) error {
		stats.HeaderBytes += HeaderSize
		if free {
			stats.FreeBlocks++
			stats.FreeBytes += size
			if size > stats.LargestFree {
				stats.LargestFree = size
			}
			return nil
		}

		stats.LiveBlocks++
		stats.LiveBytes += size
		if size > stats.LargestLive {
			stats.LargestLive = size
		}
		if stats.SmallestLive == 0 || size < stats.SmallestLive {
			stats.SmallestLive = size
		}
		return nil
	})
	return stats
}

// BlockJsonData populates a json object with a summary of the region and a
// per-block breakdown in address order.
func (a *Arena) BlockJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(a.size)
	json.Name("UnusedBytes").Int(a.available)
	json.Name("Allocations").Int(a.allocCount)
	json.Name("UnusedRanges").Int(a.FreeBlockCount())
	json.Name("Fragmentation").Float64(a.Fragmentation())

	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	_ = a.VisitAllBlocks(func(offset, size int, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		obj.Name("Free").Bool(free)
		return nil
	})
}

// ReportUnfreed logs every live allocation still present in the arena at error
// level and returns how many there were. Callers tearing down an arena that
// should be empty can use this to surface leaks.
func (a *Arena) ReportUnfreed() int {
	count := 0
	_ = a.VisitAllBlocks(func(offset, size int, free bool) error {
		if free {
			return nil
		}
		count++
		a.logger.LogAttrs(context.Background(), slog.LevelError, "unfreed allocation",
			slog.Int("offset", offset),
			slog.Int("size", size))
		return nil
	})
	return count
}
