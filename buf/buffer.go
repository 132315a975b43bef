// Package buf implements the fixed-size packet buffer storage and the
// two-tier lock-free pool that owns it.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package buf

import "time"

// Capacity is the fixed payload capacity of every PacketBuffer (2 KiB).
const Capacity = 2048

// PacketBuffer is a fixed-size, owned frame holder. At any moment it
// belongs to exactly one of: the pool's free stack, a thread-local
// cache, a ring slot, a worker, or a worker's TX batch. Ownership
// transfers are explicit and total — there is no shared ownership.
//
// Every field is a value type (no pointers) so the storage array can
// be carved out of a raw mmap'd/huge-page region without the garbage
// collector needing to scan it.
type PacketBuffer struct {
	Data        [Capacity]byte
	Len         int
	IngestNanos int64 // UnixNano ingress timestamp; 0 means unset.
}

// Bytes returns the in-use slice of the buffer's backing array.
func (b *PacketBuffer) Bytes() []byte {
	return b.Data[:b.Len]
}

// IngestAt reconstructs the ingress timestamp, or the zero Time if unset.
func (b *PacketBuffer) IngestAt() time.Time {
	if b.IngestNanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, b.IngestNanos)
}

// Reset clears length and timestamp. Data bytes are left untouched;
// the next filler overwrites what it needs and sets Len accordingly.
func (b *PacketBuffer) Reset() {
	b.Len = 0
	b.IngestNanos = 0
}

// Handle is a lightweight index into a BufferPool's storage array.
// Handles move through the free stack and thread-local caches instead
// of raw pointers.
type Handle uint32

// NoHandle is the sentinel returned on allocation failure; it never
// aliases a valid storage index.
const NoHandle Handle = ^Handle(0)
