// Package parser implements zero-copy extraction of a 5-tuple FlowKey
// from an Ethernet-framed packet.
//
// Big-endian field reads via encoding/binary, explicit length checks
// before every read, never an aligned/unsafe load over
// attacker-controlled bytes.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package parser

import (
	"encoding/binary"

	"github.com/momentics/upe/api"
)

// EtherType values dispatched by Parse.
const (
	EtherTypeIPv4 = 0x0800
	EtherTypeIPv6 = 0x86DD
	EtherTypeARP  = 0x0806
)

// IP protocol numbers dispatched by Parse.
const (
	ProtoICMP   = 1
	ProtoTCP    = 6
	ProtoUDP    = 17
	ProtoICMPv6 = 58
)

const (
	ethHeaderLen  = 14
	ipv4MinLen    = 20
	ipv6HeaderLen = 40
	udpMinLen     = 8
	tcpMinLen     = 20
	icmpMinLen    = 8
)

// FlowKey is the 5-tuple (plus IP version) extracted from a packet.
// For ICMP/ICMPv6, SrcPort carries the 16-bit identifier and DstPort
// carries (type<<8)|code.
type FlowKey struct {
	IPVer    uint8
	SrcAddr  [16]byte // first 4 bytes significant when IPVer == 4
	DstAddr  [16]byte
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// SrcIPv4 returns the first 4 bytes of SrcAddr as a 32-bit host-order
// integer, valid only when IPVer == 4.
func (k FlowKey) SrcIPv4() uint32 { return binary.BigEndian.Uint32(k.SrcAddr[:4]) }

// DstIPv4 returns the first 4 bytes of DstAddr as a 32-bit host-order
// integer, valid only when IPVer == 4.
func (k FlowKey) DstIPv4() uint32 { return binary.BigEndian.Uint32(k.DstAddr[:4]) }

// Swap returns a copy of k with source and destination address and
// port swapped — the reverse-direction flow key (used by FlowHash
// symmetry and by tests).
func (k FlowKey) Swap() FlowKey {
	k.SrcAddr, k.DstAddr = k.DstAddr, k.SrcAddr
	k.SrcPort, k.DstPort = k.DstPort, k.SrcPort
	return k
}

// Parse extracts a FlowKey from an Ethernet II frame. Returns
// api.ErrParse for anything short or unsupported.
func Parse(frame []byte) (FlowKey, error) {
	var key FlowKey

	if len(frame) < ethHeaderLen {
		return key, api.ErrParse
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])

	switch etherType {
	case EtherTypeIPv4:
		return parseIPv4(frame[ethHeaderLen:])
	case EtherTypeIPv6:
		return parseIPv6(frame[ethHeaderLen:])
	default:
		// Includes ARP (0x0806): not classifiable by this parser.
		return key, api.ErrParse
	}
}

func parseIPv4(ip []byte) (FlowKey, error) {
	var key FlowKey
	if len(ip) < ipv4MinLen {
		return key, api.ErrParse
	}
	version := ip[0] >> 4
	ihl := int(ip[0]&0x0F) * 4
	if version != 4 || ihl < ipv4MinLen || len(ip) < ihl {
		return key, api.ErrParse
	}

	key.IPVer = 4
	copy(key.SrcAddr[:4], ip[12:16])
	copy(key.DstAddr[:4], ip[16:20])
	protocol := ip[9]
	key.Protocol = protocol

	l4 := ip[ihl:]
	return parseL4(key, protocol, l4)
}

func parseIPv6(ip []byte) (FlowKey, error) {
	var key FlowKey
	if len(ip) < ipv6HeaderLen {
		return key, api.ErrParse
	}
	key.IPVer = 6
	copy(key.SrcAddr[:], ip[8:24])
	copy(key.DstAddr[:], ip[24:40])
	nextHeader := ip[6]
	key.Protocol = nextHeader

	l4 := ip[ipv6HeaderLen:]
	return parseL4(key, nextHeader, l4)
}

func parseL4(key FlowKey, protocol byte, l4 []byte) (FlowKey, error) {
	switch protocol {
	case ProtoUDP:
		if len(l4) < udpMinLen {
			return FlowKey{}, api.ErrParse
		}
		key.SrcPort = binary.BigEndian.Uint16(l4[0:2])
		key.DstPort = binary.BigEndian.Uint16(l4[2:4])
		return key, nil

	case ProtoTCP:
		if len(l4) < tcpMinLen {
			return FlowKey{}, api.ErrParse
		}
		dataOffset := int(l4[12]>>4) * 4
		if dataOffset < tcpMinLen || dataOffset > len(l4) {
			return FlowKey{}, api.ErrParse
		}
		key.SrcPort = binary.BigEndian.Uint16(l4[0:2])
		key.DstPort = binary.BigEndian.Uint16(l4[2:4])
		return key, nil

	case ProtoICMP, ProtoICMPv6:
		if len(l4) < icmpMinLen {
			return FlowKey{}, api.ErrParse
		}
		icmpType := l4[0]
		icmpCode := l4[1]
		identifier := binary.BigEndian.Uint16(l4[4:6])
		key.SrcPort = identifier
		key.DstPort = uint16(icmpType)<<8 | uint16(icmpCode)
		return key, nil

	default:
		return FlowKey{}, api.ErrParse
	}
}
