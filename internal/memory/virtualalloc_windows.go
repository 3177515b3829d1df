package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func init() {
	platformNewMmap = newVirtualAllocAllocator
}

// newVirtualAllocAllocator maps committed VirtualAlloc regions as slabs. A
// commit charge the system cannot satisfy comes back as an error instead
// of a runtime abort.
func newVirtualAllocAllocator(slabSize int) *slabAllocator {
	return &slabAllocator{
		name:     AllocatorMmap,
		slabSize: slabSize,
		mapSlab: func(n int) ([]byte, error) {
			addr, err := windows.VirtualAlloc(0, uintptr(n), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
			if err != nil {
				return nil, fmt.Errorf("VirtualAlloc %d bytes: %w", n, err)
			}
			return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n), nil
		},
		unmapSlab: func(b []byte) error {
			// MEM_RELEASE frees the whole region and requires a zero size
			return windows.VirtualFree(uintptr(unsafe.Pointer(unsafe.SliceData(b))), 0, windows.MEM_RELEASE)
		},
	}
}
