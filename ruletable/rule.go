// Package ruletable implements the priority-ordered wildcard 5-tuple
// rule table read concurrently by workers.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ruletable

// Action is the disposition a matched rule assigns to a packet.
type Action int

const (
	ActionDrop Action = iota
	ActionForward
)

// Rule is one priority-ordered wildcard 5-tuple predicate. A
// *_mask of all zeros wildcards the corresponding address; a
// port/protocol/ip_ver of 0 wildcards that predicate.
type Rule struct {
	Priority   uint32
	IPVer      uint8 // 0 = any, 4, or 6
	SrcAddr    [16]byte
	SrcMask    [16]byte
	DstAddr    [16]byte
	DstMask    [16]byte
	SrcPort    uint16 // 0 = any
	DstPort    uint16 // 0 = any
	Protocol   uint8  // 0 = any
	Action     Action
	OutIfindex int // valid only when Action == ActionForward
	RuleID     uint32
}
