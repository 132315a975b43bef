// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package parser

import (
	"encoding/binary"
	"testing"

	"github.com/momentics/upe/api"
)

func ethHeader(etherType uint16) []byte {
	h := make([]byte, 14)
	binary.BigEndian.PutUint16(h[12:14], etherType)
	return h
}

func ipv4Header(totalOptionsLen int, protocol byte, src, dst uint32) []byte {
	ihl := 5 + totalOptionsLen/4
	h := make([]byte, ihl*4)
	h[0] = byte(4<<4 | ihl)
	h[9] = protocol
	binary.BigEndian.PutUint32(h[12:16], src)
	binary.BigEndian.PutUint32(h[16:20], dst)
	return h
}

func tcpHeader(srcPort, dstPort uint16) []byte {
	h := make([]byte, 20)
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	h[12] = 5 << 4 // data offset = 20 bytes
	return h
}

func udpHeader(srcPort, dstPort uint16) []byte {
	h := make([]byte, 8)
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	return h
}

func TestParseRejectsShortEthernet(t *testing.T) {
	frame := make([]byte, 12)
	if _, err := Parse(frame); err != api.ErrParse {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParseRejectsShortIPv4(t *testing.T) {
	frame := append(ethHeader(EtherTypeIPv4), []byte{1, 2, 3}...)
	if _, err := Parse(frame); err != api.ErrParse {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParseRejectsShortTCP(t *testing.T) {
	frame := ethHeader(EtherTypeIPv4)
	frame = append(frame, ipv4Header(0, ProtoTCP, 0x0A000001, 0x0A000002)...)
	frame = append(frame, []byte{1, 2, 3}...)
	if _, err := Parse(frame); err != api.ErrParse {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParseRejectsARP(t *testing.T) {
	frame := append(ethHeader(EtherTypeARP), make([]byte, 28)...)
	if _, err := Parse(frame); err != api.ErrParse {
		t.Fatalf("expected ARP to be not classifiable, got nil error")
	}
}

func TestParseIPv4TCP(t *testing.T) {
	frame := ethHeader(EtherTypeIPv4)
	frame = append(frame, ipv4Header(0, ProtoTCP, 0x0A000001, 0x0A000002)...)
	frame = append(frame, tcpHeader(1234, 22)...)

	key, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if key.IPVer != 4 || key.Protocol != ProtoTCP {
		t.Fatalf("unexpected key: %+v", key)
	}
	if key.SrcIPv4() != 0x0A000001 || key.DstIPv4() != 0x0A000002 {
		t.Fatalf("unexpected addrs: %+v", key)
	}
	if key.SrcPort != 1234 || key.DstPort != 22 {
		t.Fatalf("unexpected ports: %+v", key)
	}
}

func TestParseIPv4UDP(t *testing.T) {
	frame := ethHeader(EtherTypeIPv4)
	frame = append(frame, ipv4Header(0, ProtoUDP, 1, 2)...)
	frame = append(frame, udpHeader(53, 5353)...)

	key, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if key.SrcPort != 53 || key.DstPort != 5353 {
		t.Fatalf("unexpected ports: %+v", key)
	}
}

func TestParseIPv6TCP(t *testing.T) {
	frame := ethHeader(EtherTypeIPv6)
	ip6 := make([]byte, 40)
	ip6[6] = ProtoTCP // next header
	src := [16]byte{0: 0xfe, 1: 0x80, 15: 1}
	dst := [16]byte{0: 0xfe, 1: 0x80, 15: 2}
	copy(ip6[8:24], src[:])
	copy(ip6[24:40], dst[:])
	frame = append(frame, ip6...)
	frame = append(frame, tcpHeader(443, 51000)...)

	key, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if key.IPVer != 6 {
		t.Fatalf("expected ipv6, got %+v", key)
	}
	if key.SrcAddr != src || key.DstAddr != dst {
		t.Fatalf("unexpected addrs: %+v", key)
	}
	if key.SrcPort != 443 || key.DstPort != 51000 {
		t.Fatalf("unexpected ports: %+v", key)
	}
}

// TestICMPMapping is the "ICMP mapping" property: id=0x1234,
// type=8, code=0 -> src_port=0x1234, dst_port=0x0800.
func TestICMPMapping(t *testing.T) {
	frame := ethHeader(EtherTypeIPv4)
	frame = append(frame, ipv4Header(0, ProtoICMP, 1, 2)...)
	icmp := make([]byte, 8)
	icmp[0] = 8 // type = echo request
	icmp[1] = 0 // code
	binary.BigEndian.PutUint16(icmp[4:6], 0x1234)
	frame = append(frame, icmp...)

	key, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if key.SrcPort != 0x1234 || key.DstPort != 0x0800 {
		t.Fatalf("unexpected icmp mapping: src=%#x dst=%#x", key.SrcPort, key.DstPort)
	}
}

// TestParseIPv6AtOddOffset places the frame at an odd byte offset in
// a larger backing array. The 40-byte IPv6 header begins at byte 14 of
// the frame, so every multi-byte field sits on an unaligned address;
// parsing must still succeed because all reads are byte-wise.
func TestParseIPv6AtOddOffset(t *testing.T) {
	frame := ethHeader(EtherTypeIPv6)
	ip6 := make([]byte, 40)
	ip6[6] = ProtoUDP
	src := [16]byte{0: 0x20, 1: 0x01, 15: 7}
	dst := [16]byte{0: 0x20, 1: 0x01, 15: 8}
	copy(ip6[8:24], src[:])
	copy(ip6[24:40], dst[:])
	frame = append(frame, ip6...)
	frame = append(frame, udpHeader(9999, 53)...)

	backing := make([]byte, len(frame)+3)
	copy(backing[3:], frame)
	shifted := backing[3:]

	key, err := Parse(shifted)
	if err != nil {
		t.Fatalf("Parse at odd offset: %v", err)
	}
	if key.SrcAddr != src || key.DstAddr != dst {
		t.Fatalf("unexpected addrs at odd offset: %+v", key)
	}
	if key.SrcPort != 9999 || key.DstPort != 53 {
		t.Fatalf("unexpected ports at odd offset: %+v", key)
	}
}

func TestFlowKeySwap(t *testing.T) {
	var k FlowKey
	k.IPVer = 4
	k.SrcAddr[0] = 1
	k.DstAddr[0] = 2
	k.SrcPort = 10
	k.DstPort = 20

	s := k.Swap()
	if s.SrcAddr != k.DstAddr || s.DstAddr != k.SrcAddr {
		t.Fatal("swap did not exchange addresses")
	}
	if s.SrcPort != k.DstPort || s.DstPort != k.SrcPort {
		t.Fatal("swap did not exchange ports")
	}
}
