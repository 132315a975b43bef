//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package buf

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

var sizeofPacketBuffer = int(unsafe.Sizeof(PacketBuffer{}))

// allocateStorage tries a huge-page mapping first, then a plain
// anonymous mapping, then plain heap allocation. PacketBuffer has no pointer fields, so reinterpreting raw
// mapped bytes as []PacketBuffer is safe for the garbage collector.
func allocateStorage(n int) ([]PacketBuffer, BackingMode, func() error, error) {
	want := n * sizeofPacketBuffer

	if mem, err := unix.Mmap(-1, 0, roundUpHugePage(want),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB); err == nil {
		return sliceFromMmap(mem, n), BackingHugePage, unmapper(mem), nil
	}

	if mem, err := unix.Mmap(-1, 0, want,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS); err == nil {
		return sliceFromMmap(mem, n), BackingMmap, unmapper(mem), nil
	}

	return make([]PacketBuffer, n), BackingHeap, func() error { return nil }, nil
}

func sliceFromMmap(mem []byte, n int) []PacketBuffer {
	return unsafe.Slice((*PacketBuffer)(unsafe.Pointer(&mem[0])), n)
}

func unmapper(mem []byte) func() error {
	return func() error { return unix.Munmap(mem) }
}
