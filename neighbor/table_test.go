// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package neighbor

import "testing"

// TestRoundTrip is the "Neighbor round-trip" property: after
// update(ip, mac), lookup(ip) == mac; lookup(unknown) == none.
func TestRoundTrip(t *testing.T) {
	tbl := NewArpTable(16)
	ip := ArpKey{10, 128, 0, 2}
	mac := MAC{0xaa, 0, 0, 0, 0, 0xbb}

	if _, ok := tbl.Lookup(ip); ok {
		t.Fatal("expected miss before any update")
	}

	tbl.Update(ip, mac)
	got, ok := tbl.Lookup(ip)
	if !ok || got != mac {
		t.Fatalf("lookup after update = %v, %v; want %v, true", got, ok, mac)
	}

	unknown := ArpKey{10, 128, 0, 3}
	if _, ok := tbl.Lookup(unknown); ok {
		t.Fatal("expected miss for unknown key")
	}
}

// TestOverwrite is the "Neighbor overwrite" property: after two
// updates with the same ip, the latest mac wins.
func TestOverwrite(t *testing.T) {
	tbl := NewArpTable(16)
	ip := ArpKey{192, 168, 1, 1}
	first := MAC{1, 1, 1, 1, 1, 1}
	second := MAC{2, 2, 2, 2, 2, 2}

	tbl.Update(ip, first)
	tbl.Update(ip, second)

	got, ok := tbl.Lookup(ip)
	if !ok || got != second {
		t.Fatalf("lookup = %v, %v; want %v, true", got, ok, second)
	}
}

// TestFillsThenSilentlyDropsFurtherInserts: a full table does not
// panic or error on an insert of a never-seen key; it is a silent
// no-op.
func TestFillsThenSilentlyDropsFurtherInserts(t *testing.T) {
	tbl := NewArpTable(4)
	for i := 0; i < 4; i++ {
		tbl.Update(ArpKey{10, 0, 0, byte(i)}, MAC{byte(i)})
	}
	// table is full; this insert must not replace any existing entry
	// nor panic.
	tbl.Update(ArpKey{10, 0, 0, 99}, MAC{99})
	if _, ok := tbl.Lookup(ArpKey{10, 0, 0, 99}); ok {
		t.Fatal("expected the overflow insert to be silently dropped")
	}
	for i := 0; i < 4; i++ {
		mac, ok := tbl.Lookup(ArpKey{10, 0, 0, byte(i)})
		if !ok || mac[0] != byte(i) {
			t.Fatalf("entry %d lost after overflow insert", i)
		}
	}
}

func TestLastHitCache(t *testing.T) {
	var c LastHit[ArpKey]
	ip := ArpKey{1, 2, 3, 4}
	if _, ok := c.Lookup(ip); ok {
		t.Fatal("expected empty cache to miss")
	}
	mac := MAC{9, 9, 9, 9, 9, 9}
	c.Set(ip, mac)
	got, ok := c.Lookup(ip)
	if !ok || got != mac {
		t.Fatalf("cache lookup = %v, %v; want %v, true", got, ok, mac)
	}
	if _, ok := c.Lookup(ArpKey{0, 0, 0, 0}); ok {
		t.Fatal("expected miss for a different key than the cached one")
	}
}

func TestNdpTableRoundTrip(t *testing.T) {
	tbl := NewNdpTable(8)
	ip := NdpKey{0xfe, 0x80}
	mac := MAC{1, 2, 3, 4, 5, 6}
	tbl.Update(ip, mac)
	got, ok := tbl.Lookup(ip)
	if !ok || got != mac {
		t.Fatalf("ndp lookup = %v, %v; want %v, true", got, ok, mac)
	}
}
