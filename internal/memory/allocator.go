package memory

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime/debug"

	"github.com/cloudbedlam/eatmem/internal/sysmem"
)

const (
	// AllocatorHeap carves chunks out of Go heap slabs
	AllocatorHeap = "heap"
	// AllocatorMmap carves chunks out of anonymous private mappings
	AllocatorMmap = "mmap"

	// DefaultSlabSize is the size of the regions chunks are carved from
	DefaultSlabSize = 1 << 20

	// RuntimeReserve is the address space left unmapped for the Go runtime
	// (heap growth, thread stacks) when RLIMIT_AS caps the process.
	RuntimeReserve = 256 << 20
)

// ErrAddressSpace is returned when a slab would not fit under the
// address-space budget.
var ErrAddressSpace = errors.New("address space limit reached")

// addressSpaceAvailable reports the mappable address space left under
// RLIMIT_AS, if the process has a finite limit.
var addressSpaceAvailable = sysmem.AddressSpaceAvailable

// Allocator acquires chunks of memory and releases everything it handed out
// in one step. Acquired chunks are not guaranteed to be zeroed.
type Allocator interface {
	// Acquire returns a chunk of exactly n bytes
	Acquire(n int) ([]byte, error)

	// Release frees every chunk acquired so far
	Release() error

	// Name returns the allocator implementation name
	Name() string
}

// platformNewMmap is replaced by platform files that can map memory outside
// the Go heap (mmap on unix, VirtualAlloc on windows). It returns nil where
// no such mapping exists.
var platformNewMmap = func(slabSize int) *slabAllocator {
	return nil
}

// MmapSupported reports whether the mmap allocator exists on this platform.
func MmapSupported() bool {
	return platformNewMmap(DefaultSlabSize) != nil
}

// DefaultAllocator returns the allocator name used when none is configured
func DefaultAllocator() string {
	if MmapSupported() {
		return AllocatorMmap
	}
	return AllocatorHeap
}

// NewAllocator creates the named allocator. An empty name selects
// DefaultAllocator.
//
// Under a finite RLIMIT_AS the allocator stops RuntimeReserve short of the
// limit and reports ErrAddressSpace instead of starving the runtime. With
// the heap allocator, exhausting memory any other way is fatal to the
// process and is not reported.
func NewAllocator(name string) (Allocator, error) {
	if name == "" {
		name = DefaultAllocator()
	}

	var a *slabAllocator
	switch name {
	case AllocatorHeap:
		a = newHeapAllocator(DefaultSlabSize)
	case AllocatorMmap:
		a = platformNewMmap(DefaultSlabSize)
		if a == nil {
			return nil, fmt.Errorf("allocator %q is not supported on this platform", name)
		}
	default:
		return nil, fmt.Errorf("unknown allocator %q (expected %q or %q)", name, AllocatorHeap, AllocatorMmap)
	}

	if available, ok := addressSpaceAvailable(); ok {
		a.setBudget(addressSpaceBudget(available))
	}
	return a, nil
}

// addressSpaceBudget is what may be mapped out of available once the
// runtime reserve is set aside.
func addressSpaceBudget(available uint64) int64 {
	if available <= RuntimeReserve {
		return 0
	}
	room := available - RuntimeReserve
	if room > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(room)
}

// slabAllocator hands out chunks from larger regions obtained through
// mapSlab. Only the slabs are tracked, so per-chunk bookkeeping stays
// constant no matter how small the chunks are. Pages of a slab are committed
// when a chunk is written, not when the slab is mapped.
type slabAllocator struct {
	name      string
	slabSize  int
	mapSlab   func(n int) ([]byte, error)
	unmapSlab func(b []byte) error
	afterFree func()

	limited bool
	budget  int64 // bytes that may be mapped when limited
	mapped  int64

	slabs [][]byte
	free  []byte // unused tail of the newest slab
}

// setBudget caps the total size of mapped slabs
func (a *slabAllocator) setBudget(budget int64) {
	a.limited = true
	a.budget = budget
}

// Acquire returns the next n bytes of the current slab, mapping a new slab
// when the current one is exhausted.
func (a *slabAllocator) Acquire(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", n)
	}

	if len(a.free) < n {
		size := roundUp(max(a.slabSize, n), os.Getpagesize())
		if a.limited && int64(size) > a.budget-a.mapped {
			return nil, fmt.Errorf("%w: %d bytes mapped, budget %d", ErrAddressSpace, a.mapped, a.budget)
		}
		slab, err := a.mapSlab(size)
		if err != nil {
			return nil, err
		}
		a.mapped += int64(size)
		a.slabs = append(a.slabs, slab)
		a.free = slab
	}

	chunk := a.free[:n:n]
	a.free = a.free[n:]
	return chunk, nil
}

// Release unmaps every slab.
func (a *slabAllocator) Release() error {
	var errs []error
	for _, slab := range a.slabs {
		if a.unmapSlab == nil {
			continue
		}
		if err := a.unmapSlab(slab); err != nil {
			errs = append(errs, err)
		}
	}
	a.slabs = nil
	a.free = nil
	a.mapped = 0

	if a.afterFree != nil {
		a.afterFree()
	}
	return errors.Join(errs...)
}

// Name returns the allocator name.
func (a *slabAllocator) Name() string {
	return a.name
}

func newHeapAllocator(slabSize int) *slabAllocator {
	return &slabAllocator{
		name:     AllocatorHeap,
		slabSize: slabSize,
		mapSlab: func(n int) ([]byte, error) {
			return make([]byte, n), nil
		},
		// dropping the references is the release; hand the pages back
		// to the OS instead of waiting for the scavenger
		afterFree: debug.FreeOSMemory,
	}
}

func roundUp(n, multiple int) int {
	if multiple <= 0 {
		return n
	}
	return (n + multiple - 1) / multiple * multiple
}
