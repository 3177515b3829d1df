//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package memory

import (
	"golang.org/x/sys/unix"
)

func init() {
	platformNewMmap = newMmapAllocator
}

func newMmapAllocator(slabSize int) *slabAllocator {
	return &slabAllocator{
		name:     AllocatorMmap,
		slabSize: slabSize,
		mapSlab: func(n int) ([]byte, error) {
			return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
		},
		unmapSlab: unix.Munmap,
	}
}
