// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ruletable

import (
	"sort"
	"sync/atomic"

	"github.com/momentics/upe/parser"
)

// isZero16 reports whether a 16-byte mask is all-zero (wildcard).
func isZero16(b [16]byte) bool {
	return b == [16]byte{}
}

// RuleTable is a priority-sorted, frozen-after-build rule set. Readers
// never synchronize with each other or with a builder that has
// finished.
type RuleTable struct {
	rules []Rule
}

// NewRuleTable returns an empty, buildable table.
func NewRuleTable() *RuleTable {
	return &RuleTable{}
}

// Add assigns rule_id as the insertion ordinal, normalizes wildcarded
// address fields, appends, then re-sorts by (priority asc, rule_id
// asc). Cost is not a correctness concern: rules load at startup.
func (t *RuleTable) Add(r Rule) Rule {
	r.RuleID = uint32(len(t.rules))
	if isZero16(r.SrcMask) {
		r.SrcAddr = [16]byte{}
	}
	if isZero16(r.DstMask) {
		r.DstAddr = [16]byte{}
	}
	t.rules = append(t.rules, r)
	sort.SliceStable(t.rules, func(i, j int) bool {
		if t.rules[i].Priority != t.rules[j].Priority {
			return t.rules[i].Priority < t.rules[j].Priority
		}
		return t.rules[i].RuleID < t.rules[j].RuleID
	})
	return r
}

// Len returns the number of rules in the table.
func (t *RuleTable) Len() int { return len(t.rules) }

// Rules returns the frozen iteration order (priority asc, rule_id asc).
// The caller must not mutate the returned slice.
func (t *RuleTable) Rules() []Rule { return t.rules }

// Match performs a first-match linear scan.
func (t *RuleTable) Match(key parser.FlowKey) (Rule, bool) {
	width := 4
	if key.IPVer == 6 {
		width = 16
	}
	for _, r := range t.rules {
		if !predicateMatch(r, key, width) {
			continue
		}
		return r, true
	}
	return Rule{}, false
}

func predicateMatch(r Rule, key parser.FlowKey, width int) bool {
	if r.IPVer != 0 && r.IPVer != key.IPVer {
		return false
	}
	if r.Protocol != 0 && r.Protocol != key.Protocol {
		return false
	}
	if r.SrcPort != 0 && r.SrcPort != key.SrcPort {
		return false
	}
	if r.DstPort != 0 && r.DstPort != key.DstPort {
		return false
	}
	if !addrMatches(key.SrcAddr, r.SrcAddr, r.SrcMask, width) {
		return false
	}
	if !addrMatches(key.DstAddr, r.DstAddr, r.DstMask, width) {
		return false
	}
	return true
}

// addrMatches implements the wildcard-via-mask rule: (key.addr &
// mask) == (rule.addr & mask), so an all-zero mask always matches.
func addrMatches(keyAddr, ruleAddr, mask [16]byte, width int) bool {
	for i := 0; i < width; i++ {
		if keyAddr[i]&mask[i] != ruleAddr[i]&mask[i] {
			return false
		}
	}
	return true
}

// AtomicTable holds a *RuleTable behind an atomic pointer so readers
// can observe a consistent, frozen snapshot while control.RuleReloader
// (see the control package) swaps in a freshly built table. Dynamic
// updates only ever replace the whole table, never mutate one in place.
type AtomicTable struct {
	ptr atomic.Pointer[RuleTable]
}

// NewAtomicTable wraps an initial frozen table.
func NewAtomicTable(initial *RuleTable) *AtomicTable {
	a := &AtomicTable{}
	a.ptr.Store(initial)
	return a
}

// Load returns the currently visible frozen table.
func (a *AtomicTable) Load() *RuleTable { return a.ptr.Load() }

// Swap atomically replaces the visible table with next. The table
// being replaced is never mutated; it simply becomes unreachable once
// every reader has moved on.
func (a *AtomicTable) Swap(next *RuleTable) { a.ptr.Store(next) }
