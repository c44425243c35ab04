package arena_test

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/evanhoyt/fixedheap/arena"
)

func BenchmarkAllocFree(b *testing.B) {
	a := &arena.Arena{}
	require.NoError(b, a.Init(make([]byte, 1<<20), nil))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, err := a.Alloc(128)
		if err != nil {
			b.Fatal(err)
		}
		if err := a.Free(p); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAllocFreeFragmented measures the cost of the free-list walks once
// the region holds many separated holes, which is the allocator's worst case.
func BenchmarkAllocFreeFragmented(b *testing.B) {
	a := &arena.Arena{}
	require.NoError(b, a.Init(make([]byte, 1<<20), nil))

	var ptrs []unsafe.Pointer
	for {
		p, err := a.Alloc(128)
		if err != nil {
			break
		}
		ptrs = append(ptrs, p)
	}
	for i := 1; i < len(ptrs); i += 2 {
		if err := a.Free(ptrs[i]); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, err := a.Alloc(100)
		if err != nil {
			b.Fatal(err)
		}
		if err := a.Free(p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAllocFreeMixedSizes(b *testing.B) {
	a := &arena.Arena{}
	require.NoError(b, a.Init(make([]byte, 1<<20), nil))

	rng := rand.New(rand.NewSource(1))
	var ptrs []unsafe.Pointer

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if len(ptrs) == 0 || rng.Intn(100) < 60 {
			p, err := a.Alloc(1 + rng.Intn(1024))
			if err != nil {
				for _, q := range ptrs {
					if err := a.Free(q); err != nil {
						b.Fatal(err)
					}
				}
				ptrs = ptrs[:0]
				continue
			}
			ptrs = append(ptrs, p)
		} else {
			idx := rng.Intn(len(ptrs))
			if err := a.Free(ptrs[idx]); err != nil {
				b.Fatal(err)
			}
			ptrs[idx] = ptrs[len(ptrs)-1]
			ptrs = ptrs[:len(ptrs)-1]
		}
	}
}
