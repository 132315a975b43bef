//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ingress

import "fmt"

// AFPacketSource is unavailable outside Linux; AF_PACKET is a
// Linux-specific address family.
type AFPacketSource struct{}

// NewAFPacketSource always fails on this platform.
func NewAFPacketSource(ifaceName string) (*AFPacketSource, error) {
	return nil, fmt.Errorf("ingress: AF_PACKET capture requires linux")
}

func (s *AFPacketSource) ReadFrame(dst []byte) (int, error) {
	return 0, fmt.Errorf("ingress: AF_PACKET capture requires linux")
}

func (s *AFPacketSource) Close() error { return nil }
