// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BufferPool: a process-wide lock-free stack of free handles over a
// fixed storage array, plus per-thread LIFO caches. Indices, not
// pointers, are what get pushed and popped — a bump-style array stack
// with a single atomic top index, rather than a ring of entries.

package buf

import (
	"sync/atomic"

	"github.com/momentics/upe/api"
)

// DefaultLocalCacheCapacity is the recommended per-thread cache size.
const DefaultLocalCacheCapacity = 64

// Pool is a two-tier buffer allocator: a process-wide lock-free
// stack of free handles plus per-thread LIFO caches.
type Pool struct {
	storage  []PacketBuffer
	stack    []Handle
	top      atomic.Uint32
	backing  BackingMode
	unmap    func() error
	capacity int
}

// NewPool allocates a pool of n PacketBuffers, preferring huge pages,
// falling back to a plain mapping, falling back to the heap.
func NewPool(n int) (*Pool, error) {
	if n <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "buf: pool capacity must be positive").
			WithContext("capacity", n)
	}
	storage, mode, unmap, err := allocateStorage(n)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		storage:  storage,
		stack:    make([]Handle, n),
		backing:  mode,
		unmap:    unmap,
		capacity: n,
	}
	for i := 0; i < n; i++ {
		p.stack[i] = Handle(i)
	}
	p.top.Store(uint32(n))
	return p, nil
}

// Capacity returns N, the fixed number of buffers the pool owns.
func (p *Pool) Capacity() int { return p.capacity }

// Backing reports which backing-memory strategy succeeded at init.
func (p *Pool) Backing() BackingMode { return p.backing }

// At dereferences a handle into its PacketBuffer. The caller must hold
// ownership of h (it must not be concurrently freed or reallocated).
func (p *Pool) At(h Handle) *PacketBuffer { return &p.storage[h] }

// globalFree returns N minus however many handles are currently reserved
// from the global stack (i.e. "in the wild": in a thread-local cache,
// on a ring, or held by a worker). Used by pool-conservation tests.
func (p *Pool) globalFree() int { return int(p.top.Load()) }

// popGlobal reserves up to len(out) handles from the top of the
// global stack into out, returning how many were reserved. A single
// CAS on top reserves the whole range; the popper then reads those
// slots non-atomically, which is safe because the CAS succeeding
// happens-after whatever push last wrote them.
func (p *Pool) popGlobal(out []Handle) int {
	for {
		top := p.top.Load()
		if top == 0 {
			return 0
		}
		k := len(out)
		if int(top) < k {
			k = int(top)
		}
		newTop := top - uint32(k)
		if p.top.CompareAndSwap(top, newTop) {
			copy(out[:k], p.stack[newTop:top])
			return k
		}
	}
}

// pushGlobal writes hs into the stack above the current top, then
// CAS-advances top. Writes happen before the CAS is attempted; on CAS
// failure the writes are discarded and retried against the new top.
// Advancing top before writing would expose uninitialized slots to a
// concurrent popper.
func (p *Pool) pushGlobal(hs []Handle) {
	n := len(hs)
	start := 0
	for start < n {
		top := p.top.Load()
		capLeft := len(p.stack) - int(top)
		if capLeft <= 0 {
			// Every handle is accounted for across free stack + live
			// holders at all times; reaching here means a caller is
			// returning a handle that was never reserved. Treat as a
			// no-op rather than corrupt the stack.
			return
		}
		k := n - start
		if k > capLeft {
			k = capLeft
		}
		copy(p.stack[top:int(top)+k], hs[start:start+k])
		if p.top.CompareAndSwap(top, top+uint32(k)) {
			start += k
		}
	}
}

// Close releases backing memory. Not concurrent-safe: the caller must
// quiesce every allocator/freer first. Handles still parked in
// thread-local caches are leaked into the destroyed storage — a
// documented caveat, not a bug.
func (p *Pool) Close() error {
	if p.unmap == nil {
		return nil
	}
	return p.unmap()
}

// LocalCache is a per-thread, per-pool LIFO cache of up to C_local
// handles. Not safe for concurrent use — each
// worker owns exactly one.
type LocalCache struct {
	capacity int
	xfer     int // B_xfer = C_local / 2
	pool     *Pool
	handles  []Handle
}

// NewLocalCache creates a cache with the given capacity (recommended
// DefaultLocalCacheCapacity). Capacity below 2 is rounded up to 2 so
// B_xfer is always at least 1.
func NewLocalCache(capacity int) *LocalCache {
	if capacity < 2 {
		capacity = 2
	}
	return &LocalCache{
		capacity: capacity,
		xfer:     capacity / 2,
		handles:  make([]Handle, 0, capacity),
	}
}

// bind switches the cache to pool p, first draining any handles it
// holds back to the previous pool.
func (c *LocalCache) bind(p *Pool) {
	if c.pool == p {
		return
	}
	if c.pool != nil && len(c.handles) > 0 {
		c.pool.pushGlobal(c.handles)
		c.handles = c.handles[:0]
	}
	c.pool = p
}

// Alloc returns a handle from pool p: fast path pops the cache, slow
// path refills from the global stack in one burst. Returns NoHandle
// if both tiers are empty.
func (c *LocalCache) Alloc(p *Pool) Handle {
	c.bind(p)
	if n := len(c.handles); n > 0 {
		h := c.handles[n-1]
		c.handles = c.handles[:n-1]
		return h
	}
	xfer := make([]Handle, c.xfer)
	got := p.popGlobal(xfer)
	if got == 0 {
		return NoHandle
	}
	c.handles = append(c.handles, xfer[:got]...)
	n := len(c.handles)
	h := c.handles[n-1]
	c.handles = c.handles[:n-1]
	return h
}

// Free returns h to the cache bound to pool p: fast path pushes onto
// the cache, slow path flushes B_xfer handles from the bottom of the
// cache to the global stack first. NoHandle is a no-op.
func (c *LocalCache) Free(p *Pool, h Handle) {
	if h == NoHandle {
		return
	}
	c.bind(p)
	if len(c.handles) < c.capacity {
		c.handles = append(c.handles, h)
		return
	}
	k := c.xfer
	if k > len(c.handles) {
		k = len(c.handles)
	}
	flushed := append([]Handle(nil), c.handles[:k]...)
	p.pushGlobal(flushed)
	c.handles = append(c.handles[:0], c.handles[k:]...)
	c.handles = append(c.handles, h)
}

// Drain empties the cache back to its bound pool. Call at worker exit
// so no handles are leaked outside the pool's free stack.
func (c *LocalCache) Drain() {
	if c.pool != nil && len(c.handles) > 0 {
		c.pool.pushGlobal(c.handles)
		c.handles = c.handles[:0]
	}
}

// Len reports the number of handles currently cached locally.
func (c *LocalCache) Len() int { return len(c.handles) }
