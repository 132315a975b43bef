// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package worker

import (
	"encoding/binary"

	"github.com/momentics/upe/neighbor"
	"github.com/momentics/upe/parser"
)

// snoop recognizes and learns from ARP/NDP control traffic. It returns
// true when frame was an ARP or NDP control packet — consumed, never
// handed to the data-plane parser/classifier.
func (w *Worker) snoop(frame []byte) bool {
	if len(frame) < 14 {
		return false
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])
	switch etherType {
	case parser.EtherTypeARP:
		return w.snoopARP(frame[14:])
	case parser.EtherTypeIPv6:
		return w.snoopNDP(frame[14:])
	}
	return false
}

// snoopARP recognizes an Ethernet/IPv4 ARP packet (htype=1, ptype=0x0800,
// hlen=6, plen=4) and learns (sender-protocol-addr, sender-hardware-addr).
func (w *Worker) snoopARP(p []byte) bool {
	const arpLen = 28
	if len(p) < arpLen {
		return false
	}
	htype := binary.BigEndian.Uint16(p[0:2])
	ptype := binary.BigEndian.Uint16(p[2:4])
	hlen := p[4]
	plen := p[5]
	if htype != 1 || ptype != parser.EtherTypeIPv4 || hlen != 6 || plen != 4 {
		return false
	}

	var sha neighbor.MAC
	copy(sha[:], p[8:14])
	var spa neighbor.ArpKey
	copy(spa[:], p[14:18])
	w.ArpTable.Update(spa, sha)
	return true
}

// NDP ICMPv6 message types.
const (
	icmpv6TypeNS = 135 // Neighbor Solicitation
	icmpv6TypeNA = 136 // Neighbor Advertisement

	ndpOptSourceLL = 1
	ndpOptTargetLL = 2
)

// snoopNDP recognizes an ICMPv6 Neighbor Solicitation/Advertisement
// inside an IPv6 payload and learns the announced link-layer address.
// Any other IPv6 traffic is left unconsumed for normal data-plane
// processing.
func (w *Worker) snoopNDP(ipv6 []byte) bool {
	const ipv6HeaderLen = 40
	if len(ipv6) < ipv6HeaderLen {
		return false
	}
	if ipv6[6] != parser.ProtoICMPv6 {
		return false
	}
	icmp := ipv6[ipv6HeaderLen:]
	// type(1) + code(1) + checksum(2) + reserved/flags(4) + target(16).
	const ndpMsgLen = 24
	if len(icmp) < ndpMsgLen {
		return false
	}
	icmpType := icmp[0]
	if icmpType != icmpv6TypeNS && icmpType != icmpv6TypeNA {
		return false
	}

	var learnAddr [16]byte
	wantOpt := byte(ndpOptSourceLL)
	if icmpType == icmpv6TypeNS {
		copy(learnAddr[:], ipv6[8:24]) // ipv6.src
	} else {
		copy(learnAddr[:], icmp[8:24]) // ndp.target
		wantOpt = ndpOptTargetLL
	}

	if mac, found := walkLLOptions(icmp[ndpMsgLen:], wantOpt); found {
		var key neighbor.NdpKey
		copy(key[:], learnAddr[:])
		w.NdpTable.Update(key, mac)
	}
	return true
}

// walkLLOptions scans NDP options in 8-octet units
// looking for a Source/Target Link-Layer Address option carrying an
// Ethernet MAC.
func walkLLOptions(opts []byte, wantType byte) (neighbor.MAC, bool) {
	for len(opts) >= 8 {
		optType := opts[0]
		optLen := int(opts[1]) * 8
		if optLen == 0 || optLen > len(opts) {
			return neighbor.MAC{}, false
		}
		if optType == wantType {
			var mac neighbor.MAC
			copy(mac[:], opts[2:8])
			return mac, true
		}
		opts = opts[optLen:]
	}
	return neighbor.MAC{}, false
}
