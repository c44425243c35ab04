// Command heapprobe runs a scripted allocate/free workload against a
// fixed-region arena and prints the region's detailed state as JSON on stdout.
// It is a probe, not a benchmark: use it to watch how a given mix of request
// sizes fragments a region of a given size.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"

	"github.com/evanhoyt/fixedheap/arena"
	"github.com/evanhoyt/fixedheap/membuf"
)

func main() {
	var (
		regionSize = flag.Int("size", 1<<20, "region size in bytes")
		iterations = flag.Int("iterations", 10000, "number of workload steps")
		seed       = flag.Int64("seed", 1, "workload seed")
		maxAlloc   = flag.Int("max-alloc", 4096, "largest single request in bytes")
		verbose    = flag.Bool("v", false, "log every allocator decision")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))

	buf, err := membuf.Map(*regionSize)
	if err != nil {
		logger.Warn("mmap unavailable, falling back to a heap buffer", slog.Any("error", err))
		buf = make([]byte, *regionSize)
	} else {
		defer func() {
			_ = membuf.Unmap(buf)
		}()
	}

	var heap arena.Arena
	if err := heap.Init(buf, logger); err != nil {
		logger.LogAttrs(context.Background(), slog.LevelError, "failed to initialize the arena",
			slog.Any("error", err))
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	live := swiss.NewMap[uint64, int](128)
	var ptrs []unsafe.Pointer

	release := func(idx int) {
		victim := ptrs[idx]
		ptrs[idx] = ptrs[len(ptrs)-1]
		ptrs = ptrs[:len(ptrs)-1]
		live.Delete(uint64(uintptr(victim)))
		if err := heap.Free(victim); err != nil {
			logger.LogAttrs(context.Background(), slog.LevelError, "free failed mid-workload",
				slog.Any("error", err))
			os.Exit(1)
		}
	}

	for i := 0; i < *iterations; i++ {
		if len(ptrs) == 0 || rng.Intn(100) < 60 {
			n := 1 + rng.Intn(*maxAlloc)
			p, err := heap.Alloc(n)
			if err != nil {
				// The region is too full or too fragmented for this request;
				// drain a few live allocations and move on.
				for j := 0; j < 4 && len(ptrs) > 0; j++ {
					release(rng.Intn(len(ptrs)))
				}
				continue
			}
			ptrs = append(ptrs, p)
			live.Put(uint64(uintptr(p)), n)
		} else {
			release(rng.Intn(len(ptrs)))
		}
	}

	if err := heap.Validate(); err != nil {
		logger.LogAttrs(context.Background(), slog.LevelError, "arena failed validation after the workload",
			slog.Any("error", err))
		os.Exit(1)
	}
	if live.Count() != heap.AllocationCount() {
		logger.LogAttrs(context.Background(), slog.LevelError, "allocation bookkeeping mismatch",
			slog.Int("tracked", live.Count()),
			slog.Int("arena", heap.AllocationCount()))
		heap.ReportUnfreed()
		os.Exit(1)
	}

	census := heap.CollectStats()
	logger.Info("workload complete",
		slog.Int("live", live.Count()),
		slog.Int("available", heap.Available()),
		slog.Int("freeBlocks", census.FreeBlocks),
		slog.Int("largestFree", census.LargestFree),
		slog.Float64("fragmentation", heap.Fragmentation()))

	w := jwriter.NewWriter()
	obj := w.Object()
	heap.BlockJsonData(obj)
	obj.End()
	if err := w.Error(); err != nil {
		logger.LogAttrs(context.Background(), slog.LevelError, "failed to build the region report",
			slog.Any("error", err))
		os.Exit(1)
	}

	_, _ = os.Stdout.Write(w.Bytes())
	fmt.Println()
}
