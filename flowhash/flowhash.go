// Package flowhash computes a symmetric 32-bit hash of a FlowKey used
// by ingress to select a worker ring.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package flowhash

import (
	"encoding/binary"

	"github.com/momentics/upe/parser"
)

// Hash returns a symmetric, deterministic 32-bit value: Hash(K) ==
// Hash(K.Swap()) for any FlowKey K. Distribution quality is not
// guaranteed; only symmetry and determinism are load-bearing
// properties.
func Hash(key parser.FlowKey) uint32 {
	var addrFold uint32
	var portProto uint32

	if key.IPVer == 6 {
		addrFold = fold128(key.SrcAddr) ^ fold128(key.DstAddr)
	} else {
		addrFold = key.SrcIPv4() ^ key.DstIPv4()
	}
	portProto = uint32(key.SrcPort) ^ uint32(key.DstPort) ^ uint32(key.Protocol)
	return addrFold ^ portProto
}

// fold128 XORs the four 32-bit words of a 16-byte address into one
// 32-bit value.
func fold128(addr [16]byte) uint32 {
	var out uint32
	for i := 0; i < 16; i += 4 {
		out ^= binary.BigEndian.Uint32(addr[i : i+4])
	}
	return out
}
