// Package ring implements the lock-free single-producer/single-consumer
// queue that connects ingress to each worker.
//
// Unlike an MPMC ring with a per-cell sequence number, the SPSC
// protocol needs only one atomic head owned by the producer and one
// atomic tail owned by the consumer, plus burst push/pop. Parameterized
// by element type rather than erasing pointers through unsafe.Pointer.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ring

import (
	"sync/atomic"

	"github.com/momentics/upe/api"
)

// cacheLinePad absorbs false sharing between the producer's head and
// the consumer's tail.
type cacheLinePad [64]byte

// SpscRing is a bounded, lock-free, power-of-two-sized FIFO queue of
// opaque pointer-sized values. Exactly one producer and one consumer
// identity may use a given ring for its lifetime.
type SpscRing[T any] struct {
	slots []T
	mask  uint64

	_    cacheLinePad
	head atomic.Uint64 // producer cursor
	_    cacheLinePad
	tail atomic.Uint64 // consumer cursor
}

// New allocates a ring of the given capacity, which must be a power of
// two.
func New[T any](capacity int) (*SpscRing[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "ring: capacity must be a power of two").
			WithContext("capacity", capacity)
	}
	return &SpscRing[T]{
		slots: make([]T, capacity),
		mask:  uint64(capacity - 1),
	}, nil
}

// Cap returns the ring's fixed slot capacity (S).
func (r *SpscRing[T]) Cap() int { return len(r.slots) }

// Len returns the number of items currently queued. Only advisory when
// called from neither the producer nor the consumer thread.
func (r *SpscRing[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int(head - tail)
}

// PushBurst writes up to len(objs) items starting at slots[(head+i) &
// mask], then releases the new head. Returns k = min(len(objs), S -
// (head - tail)); a caller that gets k < len(objs) must decide to drop
// the remainder or back off. Producer-only.
//
// Memory ordering: tail is observed with an acquire load so no slot is
// overwritten before its prior consumer read has completed; the head
// store is a release so the consumer's subsequent acquire load of head
// happens-after every plain slot write below it. Go's atomic package
// only exposes sequentially consistent loads/stores, strictly stronger
// than the acquire/release pairing this needs, so the happens-before
// contract still holds.
func (r *SpscRing[T]) PushBurst(objs []T) int {
	head := r.head.Load()
	tail := r.tail.Load()

	free := (r.mask + 1) - (head - tail)
	k := uint64(len(objs))
	if free < k {
		k = free
	}
	for i := uint64(0); i < k; i++ {
		r.slots[(head+i)&r.mask] = objs[i]
	}
	r.head.Store(head + k)
	return int(k)
}

// Push is PushBurst with n = 1.
func (r *SpscRing[T]) Push(obj T) bool {
	var one [1]T
	one[0] = obj
	return r.PushBurst(one[:]) == 1
}

// PopBurst reads up to len(out) items starting at slots[(tail+i) &
// mask], then releases the new tail. Returns k = min(len(out), head -
// tail); k == 0 means the ring was empty and the caller should sleep
// briefly. Consumer-only.
func (r *SpscRing[T]) PopBurst(out []T) int {
	tail := r.tail.Load()
	head := r.head.Load()

	avail := head - tail
	k := uint64(len(out))
	if avail < k {
		k = avail
	}
	for i := uint64(0); i < k; i++ {
		out[i] = r.slots[(tail+i)&r.mask]
	}
	r.tail.Store(tail + k)
	return int(k)
}

// Pop is PopBurst with n = 1.
func (r *SpscRing[T]) Pop() (T, bool) {
	var one [1]T
	if r.PopBurst(one[:]) == 1 {
		return one[0], true
	}
	var zero T
	return zero, false
}
