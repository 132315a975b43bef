// Package engine wires the dataplane packages (pool, rings, rule
// table, neighbor tables, workers, ingress pump) into one running
// instance and is the component the CLI binary in cmd/upe drives.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package engine

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/momentics/upe/api"
	"github.com/momentics/upe/buf"
	"github.com/momentics/upe/ingress"
	"github.com/momentics/upe/neighbor"
	"github.com/momentics/upe/ring"
	"github.com/momentics/upe/ruletable"
	"github.com/momentics/upe/worker"
)

// Config holds the engine-wide tunables a control.ConfigStore snapshot
// would carry (ring size, worker count, pool capacity, local cache
// size, neighbor-table capacities), plus the TX MAC and core
// assignment.
type Config struct {
	PoolCapacity       int
	RingCapacity       int // must be a power of two
	WorkerCount        int // equals the number of rings
	LocalCacheCapacity int
	ArpTableCapacity   int
	NdpTableCapacity   int
	TxMAC              neighbor.MAC
	// CoreIDs optionally assigns a CPU core per worker index. A nil or
	// short slice leaves the remaining workers unpinned.
	CoreIDs []int
}

// Engine owns every core dataplane component for one running instance.
type Engine struct {
	cfg Config

	Pool      *buf.Pool
	Rings     []*ring.SpscRing[buf.Handle]
	RuleTable *ruletable.AtomicTable
	ArpTable  *neighbor.Table[neighbor.ArpKey]
	NdpTable  *neighbor.Table[neighbor.NdpKey]
	Workers   []*worker.Worker
	Pump      *ingress.Pump

	stop         atomic.Bool
	wg           sync.WaitGroup
	pumpErr      error
	pinFailures  []error
	pinFailureMu sync.Mutex
}

// New builds an engine from cfg, an external capture source, an
// external transmit sink, and the initial frozen rule table.
func New(cfg Config, source api.CaptureSource, sink api.TransmitSink, initialRules *ruletable.RuleTable) (*Engine, error) {
	if cfg.WorkerCount <= 0 || cfg.WorkerCount&(cfg.WorkerCount-1) != 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "engine: worker count must be a power of two").
			WithContext("workers", cfg.WorkerCount)
	}
	pool, err := buf.NewPool(cfg.PoolCapacity)
	if err != nil {
		return nil, err
	}

	rings := make([]*ring.SpscRing[buf.Handle], cfg.WorkerCount)
	for i := range rings {
		r, err := ring.New[buf.Handle](cfg.RingCapacity)
		if err != nil {
			return nil, err
		}
		rings[i] = r
	}

	at := ruletable.NewAtomicTable(initialRules)
	arp := neighbor.NewArpTable(cfg.ArpTableCapacity)
	ndp := neighbor.NewNdpTable(cfg.NdpTableCapacity)

	workers := make([]*worker.Worker, cfg.WorkerCount)
	for i := range workers {
		coreID := 0
		if i < len(cfg.CoreIDs) {
			coreID = cfg.CoreIDs[i]
		}
		workers[i] = worker.New(i, coreID, rings[i], pool, cfg.LocalCacheCapacity, at, sink, arp, ndp, cfg.TxMAC)
	}

	pump := ingress.NewPump(source, pool, rings)

	return &Engine{
		cfg:       cfg,
		Pool:      pool,
		Rings:     rings,
		RuleTable: at,
		ArpTable:  arp,
		NdpTable:  ndp,
		Workers:   workers,
		Pump:      pump,
	}, nil
}

// Start launches one goroutine per worker (each locked to its own OS
// thread) plus the ingress pump's goroutine.
func (e *Engine) Start() {
	for i, w := range e.Workers {
		w := w
		pin := i < len(e.cfg.CoreIDs)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if pin {
				if err := w.Pin(); err != nil {
					e.recordPinFailure(err)
				}
			}
			w.Run(&e.stop)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pumpErr = e.Pump.Run(&e.stop)
	}()
}

func (e *Engine) recordPinFailure(err error) {
	e.pinFailureMu.Lock()
	defer e.pinFailureMu.Unlock()
	e.pinFailures = append(e.pinFailures, err)
}

// PinFailures returns every error returned by a worker's affinity pin
// attempt. Pinning is best-effort; a failure here is diagnostic,
// not fatal.
func (e *Engine) PinFailures() []error {
	e.pinFailureMu.Lock()
	defer e.pinFailureMu.Unlock()
	return append([]error(nil), e.pinFailures...)
}

// PumpErr returns the ingress pump's terminal error, valid only after
// Stop returns.
func (e *Engine) PumpErr() error { return e.pumpErr }

// Stop sets the shared stop flag, waits for every worker and the pump
// to drain and exit, then releases the pump's local buffer cache.
func (e *Engine) Stop() {
	e.stop.Store(true)
	e.wg.Wait()
	e.Pump.Close()
}
