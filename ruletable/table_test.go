// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ruletable

import (
	"testing"

	"github.com/momentics/upe/parser"
)

// TestRuleOrdering checks that after adding rules with priorities
// {100, 10, 66}, iteration order is 10, 66, 100.
func TestRuleOrdering(t *testing.T) {
	rt := NewRuleTable()
	rt.Add(Rule{Priority: 100})
	rt.Add(Rule{Priority: 10})
	rt.Add(Rule{Priority: 66})

	got := rt.Rules()
	want := []uint32{10, 66, 100}
	if len(got) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(got))
	}
	for i, p := range want {
		if got[i].Priority != p {
			t.Fatalf("rule[%d].Priority = %d, want %d", i, got[i].Priority, p)
		}
	}
}

// TestWildcardRuleMatchesEveryKeyOfItsVersion checks that a rule with
// all masks 0 and all ports 0 matches every parseable key of its
// declared ip_version.
func TestWildcardRuleMatchesEveryKeyOfItsVersion(t *testing.T) {
	rt := NewRuleTable()
	rt.Add(Rule{Priority: 1, IPVer: 4, Action: ActionForward})

	keys := []parser.FlowKey{
		{IPVer: 4, Protocol: parser.ProtoTCP, SrcPort: 1, DstPort: 2},
		{IPVer: 4, Protocol: parser.ProtoUDP, SrcPort: 53, DstPort: 53},
	}
	for _, k := range keys {
		if _, ok := rt.Match(k); !ok {
			t.Fatalf("expected wildcard rule to match key %+v", k)
		}
	}

	v6key := parser.FlowKey{IPVer: 6, Protocol: parser.ProtoTCP}
	if _, ok := rt.Match(v6key); ok {
		t.Fatal("expected ipv4-only rule not to match an ipv6 key")
	}
}

func TestFirstMatchWins(t *testing.T) {
	rt := NewRuleTable()
	rt.Add(Rule{Priority: 100, Protocol: parser.ProtoTCP, Action: ActionForward})
	rt.Add(Rule{Priority: 10, Protocol: parser.ProtoTCP, DstPort: 22, Action: ActionDrop})

	key := parser.FlowKey{IPVer: 4, Protocol: parser.ProtoTCP, DstPort: 22}
	rule, ok := rt.Match(key)
	if !ok {
		t.Fatal("expected a match")
	}
	if rule.Action != ActionDrop {
		t.Fatalf("expected the higher-priority (lower number) drop rule to win, got %+v", rule)
	}
}

func TestAddrMaskWildcard(t *testing.T) {
	rt := NewRuleTable()
	r := Rule{Priority: 1, IPVer: 4, Action: ActionForward}
	rt.Add(r)

	key := parser.FlowKey{IPVer: 4}
	key.SrcAddr[0] = 203
	if _, ok := rt.Match(key); !ok {
		t.Fatal("zero mask must wildcard the address")
	}
}

func TestAddrMaskPrefix(t *testing.T) {
	rt := NewRuleTable()
	r := Rule{Priority: 1, IPVer: 4, Action: ActionForward}
	r.DstAddr[0], r.DstAddr[1], r.DstAddr[2], r.DstAddr[3] = 10, 0, 0, 0
	r.DstMask[0], r.DstMask[1], r.DstMask[2], r.DstMask[3] = 0xFF, 0, 0, 0
	rt.Add(r)

	hit := parser.FlowKey{IPVer: 4}
	hit.DstAddr[0] = 10
	if _, ok := rt.Match(hit); !ok {
		t.Fatal("expected /8 prefix match to hit")
	}

	miss := parser.FlowKey{IPVer: 4}
	miss.DstAddr[0] = 11
	if _, ok := rt.Match(miss); ok {
		t.Fatal("expected /8 prefix match to miss a different first octet")
	}
}

func TestAtomicTableSwap(t *testing.T) {
	first := NewRuleTable()
	first.Add(Rule{Priority: 1, Action: ActionDrop})
	second := NewRuleTable()
	second.Add(Rule{Priority: 1, Action: ActionForward})

	at := NewAtomicTable(first)
	if at.Load() != first {
		t.Fatal("expected initial load to return first table")
	}
	at.Swap(second)
	if at.Load() != second {
		t.Fatal("expected swap to make second table visible")
	}
	// first is untouched, not mutated in place.
	if r, _ := first.Match(parser.FlowKey{}); r.Action != ActionDrop {
		t.Fatal("swap must not mutate the table being replaced")
	}
}
