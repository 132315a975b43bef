// Package ingress implements the single producer-side thread that
// reads frames from a capture source and fans them out to worker
// rings.
//
// The read/idle-sleep shape follows the usual reactor poll loop; the
// raw-socket setup idiom in capture_linux.go follows a similar
// AF_INET raw-socket listener.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ingress

import (
	"sync/atomic"
	"time"

	"github.com/momentics/upe/api"
	"github.com/momentics/upe/buf"
	"github.com/momentics/upe/flowhash"
	"github.com/momentics/upe/parser"
	"github.com/momentics/upe/ring"
)

// idleSleep is the ingress thread's back-off when the pool is
// exhausted or the source has nothing to offer.
const idleSleep = time.Microsecond

// Pump reads frames from a CaptureSource, allocates a PacketBuffer per
// frame, and pushes its handle onto a FlowHash-selected worker ring,
// falling back to round-robin for frames it cannot parse.
type Pump struct {
	Source api.CaptureSource
	Pool   *buf.Pool
	Rings  []*ring.SpscRing[buf.Handle]

	local     *buf.LocalCache
	rrCounter uint64
	frameBuf  []byte

	PktsRead    uint64
	PoolDropped uint64
	RingDropped uint64
}

// NewPump builds a pump. len(rings) must be a power of two.
func NewPump(source api.CaptureSource, pool *buf.Pool, rings []*ring.SpscRing[buf.Handle]) *Pump {
	return &Pump{
		Source:   source,
		Pool:     pool,
		Rings:    rings,
		local:    buf.NewLocalCache(buf.DefaultLocalCacheCapacity),
		frameBuf: make([]byte, buf.Capacity),
	}
}

// SelectRing computes the destination ring index: FlowHash(parse(frame))
// & (ring_count-1) when the frame parses, round-robin otherwise.
func (p *Pump) SelectRing(frame []byte) int {
	mask := uint32(len(p.Rings) - 1)
	key, err := parser.Parse(frame)
	if err != nil {
		next := atomic.AddUint64(&p.rrCounter, 1)
		return int(uint32(next) & mask)
	}
	return int(flowhash.Hash(key) & mask)
}

// Run drains Source until stop is set or ReadFrame returns a non-nil
// error, which it reports to the caller as the capture loop's
// terminal condition.
func (p *Pump) Run(stop *atomic.Bool) error {
	for !stop.Load() {
		n, err := p.Source.ReadFrame(p.frameBuf)
		if err != nil {
			return err
		}
		if n == 0 {
			time.Sleep(idleSleep)
			continue
		}
		p.PktsRead++
		p.dispatch(p.frameBuf[:n])
	}
	return nil
}

func (p *Pump) dispatch(frame []byte) {
	h := p.local.Alloc(p.Pool)
	if h == buf.NoHandle {
		p.PoolDropped++
		time.Sleep(idleSleep)
		return
	}
	pb := p.Pool.At(h)
	pb.Len = copy(pb.Data[:], frame)
	pb.IngestNanos = time.Now().UnixNano()

	idx := p.SelectRing(frame)
	if !p.Rings[idx].Push(h) {
		p.RingDropped++
		p.local.Free(p.Pool, h)
	}
}

// Close drains the pump's local buffer cache back to the pool.
func (p *Pump) Close() {
	p.local.Drain()
}
