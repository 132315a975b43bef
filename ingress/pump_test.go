// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ingress

import (
	"encoding/binary"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/upe/buf"
	"github.com/momentics/upe/fake"
	"github.com/momentics/upe/parser"
	"github.com/momentics/upe/ring"
)

func newRings(t *testing.T, n, capacity int) []*ring.SpscRing[buf.Handle] {
	t.Helper()
	rings := make([]*ring.SpscRing[buf.Handle], n)
	for i := range rings {
		r, err := ring.New[buf.Handle](capacity)
		if err != nil {
			t.Fatalf("ring.New: %v", err)
		}
		rings[i] = r
	}
	return rings
}

func tcpFrame(src, dst uint32, srcPort, dstPort uint16) []byte {
	frame := make([]byte, 14)
	binary.BigEndian.PutUint16(frame[12:14], parser.EtherTypeIPv4)
	ip := make([]byte, 20)
	ip[0] = 4<<4 | 5
	ip[8] = 64
	ip[9] = parser.ProtoTCP
	binary.BigEndian.PutUint32(ip[12:16], src)
	binary.BigEndian.PutUint32(ip[16:20], dst)
	frame = append(frame, ip...)
	tcp := make([]byte, 20)
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	tcp[12] = 5 << 4
	frame = append(frame, tcp...)
	return frame
}

// TestSelectRingIsRSSSymmetric is the "RSS symmetry" property: a
// flow and its reverse direction must land on the same ring index.
func TestSelectRingIsRSSSymmetric(t *testing.T) {
	pool, err := buf.NewPool(16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	rings := newRings(t, 8, 4)
	p := NewPump(fake.NewCaptureSource(), pool, rings)

	fwd := tcpFrame(0x0A000001, 0x0A000002, 1234, 80)
	rev := tcpFrame(0x0A000002, 0x0A000001, 80, 1234)

	if got, want := p.SelectRing(fwd), p.SelectRing(rev); got != want {
		t.Fatalf("expected matching ring index for reverse flow, got %d vs %d", got, want)
	}
}

func TestSelectRingFallsBackToRoundRobinForUnparseable(t *testing.T) {
	pool, err := buf.NewPool(16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	rings := newRings(t, 4, 4)
	p := NewPump(fake.NewCaptureSource(), pool, rings)

	garbage := []byte{1, 2, 3}
	seen := make(map[int]bool)
	for i := 0; i < 4; i++ {
		seen[p.SelectRing(garbage)] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected round-robin to visit all 4 rings over 4 calls, got %v", seen)
	}
}

func TestRunDispatchesFramesToRings(t *testing.T) {
	pool, err := buf.NewPool(16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	rings := newRings(t, 4, 4)
	source := fake.NewCaptureSource()
	source.Feed(tcpFrame(0x0A000001, 0x0A000002, 1, 2))

	p := NewPump(source, pool, rings)
	var stop atomic.Bool
	done := make(chan error, 1)
	go func() { done <- p.Run(&stop) }()

	deadline := time.After(2 * time.Second)
	for {
		total := 0
		for _, r := range rings {
			total += r.Len()
		}
		if total == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected a frame to be dispatched to some ring before deadline")
		case <-time.After(time.Millisecond):
		}
	}

	stop.Store(true)
	source.Close()
	<-done
	p.Close()
}
