//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package txsink

import "fmt"

// AFPacketSink is unavailable outside Linux; AF_PACKET is a
// Linux-specific address family.
type AFPacketSink struct{}

// NewAFPacketSink always fails on this platform.
func NewAFPacketSink(ifaceName string) (*AFPacketSink, error) {
	return nil, fmt.Errorf("txsink: AF_PACKET transmit requires linux")
}

func (s *AFPacketSink) SendBatch(frames [][]byte) (int, error) {
	return 0, fmt.Errorf("txsink: AF_PACKET transmit requires linux")
}

func (s *AFPacketSink) Close() error { return nil }
