// Package worker implements the per-core packet pipeline: drain the
// ingress ring, parse, classify, rewrite, and batch-transmit.
//
// The run loop follows the usual poll/dispatch/idle-sleep reactor
// shape, generalized from an I/O multiplexer loop to a fixed-pipeline
// packet loop; the parse/classify stages reuse the parser, ruletable,
// checksum and neighbor packages built elsewhere in this module.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package worker

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/momentics/upe/affinity"
	"github.com/momentics/upe/api"
	"github.com/momentics/upe/buf"
	"github.com/momentics/upe/checksum"
	"github.com/momentics/upe/neighbor"
	"github.com/momentics/upe/parser"
	"github.com/momentics/upe/ring"
	"github.com/momentics/upe/ruletable"
)

// idleSleep is the worker's back-off when its ring is empty.
const idleSleep = time.Microsecond

// burstSize bounds how many handles are drained from the ring, and how
// many frames accumulate in a TX batch, per iteration.
const burstSize = 32

// Counters are the private per-worker packet-count statistics.
type Counters struct {
	PktsIn    uint64
	Parsed    uint64
	Matched   uint64
	Forwarded uint64
	Dropped   uint64
}

// RuleStat accumulates per-rule match traffic, indexed by RuleID.
type RuleStat struct {
	Packets uint64
	Bytes   uint64
}

// Worker owns every field in its pipeline state for its entire
// lifetime: nothing here is shared with another worker.
type Worker struct {
	ID     int
	CoreID int

	RxRing    *ring.SpscRing[buf.Handle]
	Pool      *buf.Pool
	Local     *buf.LocalCache
	RuleTable *ruletable.AtomicTable
	TxSink    api.TransmitSink
	ArpTable  *neighbor.Table[neighbor.ArpKey]
	NdpTable  *neighbor.Table[neighbor.NdpKey]
	TxMAC     neighbor.MAC

	ruleStats []RuleStat
	counters  Counters
	lastArp   neighbor.LastHit[neighbor.ArpKey]
	lastNdp   neighbor.LastHit[neighbor.NdpKey]

	drainBuf []buf.Handle
	txBatch  []buf.Handle
	txFrames [][]byte
}

// New constructs a worker. localCacheCapacity is typically
// buf.DefaultLocalCacheCapacity.
func New(id, coreID int, rxRing *ring.SpscRing[buf.Handle], pool *buf.Pool,
	localCacheCapacity int, ruleTable *ruletable.AtomicTable, txSink api.TransmitSink,
	arp *neighbor.Table[neighbor.ArpKey], ndp *neighbor.Table[neighbor.NdpKey],
	txMAC neighbor.MAC) *Worker {
	return &Worker{
		ID:        id,
		CoreID:    coreID,
		RxRing:    rxRing,
		Pool:      pool,
		Local:     buf.NewLocalCache(localCacheCapacity),
		RuleTable: ruleTable,
		TxSink:    txSink,
		ArpTable:  arp,
		NdpTable:  ndp,
		TxMAC:     txMAC,
		drainBuf:  make([]buf.Handle, burstSize),
		txBatch:   make([]buf.Handle, 0, burstSize),
		txFrames:  make([][]byte, 0, burstSize),
	}
}

// Pin attempts to pin the calling OS thread to CoreID. The caller must
// invoke Pin from the goroutine that will run Run, locked to its OS
// thread (runtime.LockOSThread), for it to have any effect.
func (w *Worker) Pin() error {
	return affinity.SetAffinity(w.CoreID)
}

// Counters returns a snapshot of the worker's packet counters.
func (w *Worker) Counters() Counters { return w.counters }

// RuleStats returns the per-rule match counters, indexed by RuleID.
func (w *Worker) RuleStats() []RuleStat { return w.ruleStats }

// Run drains RxRing until the stop flag is observed on an empty ring.
// The flag is checked only when a pop returns nothing, so in-flight
// packets are always drained before exit.
func (w *Worker) Run(stop *atomic.Bool) {
	for {
		n := w.RxRing.PopBurst(w.drainBuf)
		if n == 0 {
			if stop.Load() {
				break
			}
			time.Sleep(idleSleep)
			continue
		}
		for i := 0; i < n; i++ {
			w.handle(w.drainBuf[i])
		}
		w.flushTxBatch()
	}
	w.flushTxBatch()
	w.Local.Drain()
}

func (w *Worker) free(h buf.Handle) {
	pb := w.Pool.At(h)
	pb.Reset()
	w.Local.Free(w.Pool, h)
}

// handle runs one buffer through the full pipeline: control-plane
// snoop, parse, classify, forward/drop.
func (w *Worker) handle(h buf.Handle) {
	pb := w.Pool.At(h)
	w.counters.PktsIn++
	frame := pb.Bytes()

	if w.snoop(frame) {
		w.free(h)
		return
	}

	key, err := parser.Parse(frame)
	if err != nil {
		w.counters.Dropped++
		w.free(h)
		return
	}
	w.counters.Parsed++

	rule, ok := w.RuleTable.Load().Match(key)
	if !ok {
		w.counters.Dropped++
		w.free(h)
		return
	}
	w.counters.Matched++
	w.bumpRuleStat(rule.RuleID, len(frame))

	if rule.Action == ruletable.ActionDrop {
		w.counters.Dropped++
		w.free(h)
		return
	}

	var ok2 bool
	if key.IPVer == 4 {
		ok2 = w.forwardIPv4(frame, key)
	} else {
		ok2 = w.forwardIPv6(frame, key)
	}
	if !ok2 {
		w.free(h)
		return
	}
	w.enqueueTx(h)
}

func (w *Worker) bumpRuleStat(ruleID uint32, frameLen int) {
	if int(ruleID) >= len(w.ruleStats) {
		grown := make([]RuleStat, ruleID+1)
		copy(grown, w.ruleStats)
		w.ruleStats = grown
	}
	w.ruleStats[ruleID].Packets++
	w.ruleStats[ruleID].Bytes += uint64(frameLen)
}

// forwardIPv4 runs the IPv4 forwarding path: TTL check, TTL decrement,
// checksum recompute, neighbor rewrite (or transparent bridging on
// miss).
func (w *Worker) forwardIPv4(frame []byte, key parser.FlowKey) bool {
	const ethLen = 14
	ihl := int(frame[ethLen]&0x0F) * 4
	ttl := frame[ethLen+8]
	if ttl <= 1 {
		w.counters.Dropped++
		return false
	}
	frame[ethLen+8] = ttl - 1

	frame[ethLen+10] = 0
	frame[ethLen+11] = 0
	csum := checksum.IPv4Header(frame[ethLen : ethLen+ihl])
	binary.BigEndian.PutUint16(frame[ethLen+10:ethLen+12], csum)

	var dst neighbor.ArpKey
	copy(dst[:], key.DstAddr[:4])
	mac, found := w.lastArp.Lookup(dst)
	if !found {
		mac, found = w.ArpTable.Lookup(dst)
	}
	if found {
		w.lastArp.Set(dst, mac)
		copy(frame[0:6], mac[:])
		copy(frame[6:12], w.TxMAC[:])
	}
	// !found: transparent bridging, original L2 addresses are kept
	// unchanged — a documented design choice, not an error.
	return true
}

// forwardIPv6 runs the IPv6 forwarding path: hop-limit check and
// decrement, NDP rewrite. IPv6 carries no header checksum to
// recompute.
func (w *Worker) forwardIPv6(frame []byte, key parser.FlowKey) bool {
	const ethLen = 14
	hopLimit := frame[ethLen+7]
	if hopLimit <= 1 {
		w.counters.Dropped++
		return false
	}
	frame[ethLen+7] = hopLimit - 1

	var dst neighbor.NdpKey
	copy(dst[:], key.DstAddr[:])
	mac, found := w.lastNdp.Lookup(dst)
	if !found {
		mac, found = w.NdpTable.Lookup(dst)
	}
	if found {
		w.lastNdp.Set(dst, mac)
		copy(frame[0:6], mac[:])
		copy(frame[6:12], w.TxMAC[:])
	}
	return true
}

func (w *Worker) enqueueTx(h buf.Handle) {
	w.txBatch = append(w.txBatch, h)
	if len(w.txBatch) >= burstSize {
		w.flushTxBatch()
	}
}

// flushTxBatch sends the accumulated batch. A send that accepts fewer
// frames than offered costs each unsent frame a Dropped increment;
// every frame — sent or not — is freed, since packets are disposable
// and never retried.
func (w *Worker) flushTxBatch() {
	if len(w.txBatch) == 0 {
		return
	}
	w.txFrames = w.txFrames[:0]
	for _, h := range w.txBatch {
		w.txFrames = append(w.txFrames, w.Pool.At(h).Bytes())
	}
	sent, _ := w.TxSink.SendBatch(w.txFrames)
	for i, h := range w.txBatch {
		if i < sent {
			w.counters.Forwarded++
		} else {
			w.counters.Dropped++
		}
		w.free(h)
	}
	w.txBatch = w.txBatch[:0]
}
