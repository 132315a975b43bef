// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ConfigFromStore overlays a control.ConfigStore snapshot onto a
// Config, so the store's snapshot/hot-reload mechanism actually backs
// the engine's ring/pool/worker sizing instead of sitting unused
// beside it.

package engine

import "github.com/momentics/upe/control"

// ConfigFromStore returns a copy of base with every tunable that is
// set (non-zero) in cs's snapshot overlaid on top. A zero field in
// the snapshot leaves the corresponding base field untouched; the
// snapshot's RulesPath is not an engine tunable and is ignored here
// (the rule reloader watches it instead).
func ConfigFromStore(cs *control.ConfigStore, base Config) Config {
	cfg := base
	s := cs.Snapshot()

	if s.PoolCapacity > 0 {
		cfg.PoolCapacity = s.PoolCapacity
	}
	if s.RingCapacity > 0 {
		cfg.RingCapacity = s.RingCapacity
	}
	if s.WorkerCount > 0 {
		cfg.WorkerCount = s.WorkerCount
	}
	if s.LocalCacheCapacity > 0 {
		cfg.LocalCacheCapacity = s.LocalCacheCapacity
	}
	if s.ArpCapacity > 0 {
		cfg.ArpTableCapacity = s.ArpCapacity
	}
	if s.NdpCapacity > 0 {
		cfg.NdpTableCapacity = s.NdpCapacity
	}
	return cfg
}
