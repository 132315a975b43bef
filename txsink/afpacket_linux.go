//go:build linux

// Package txsink implements the AF_PACKET-backed api.TransmitSink that
// workers batch-flush their forwarded frames through.
//
// Mirrors the same raw-socket idiom as the ingress package's
// capture_linux.go, for transmit: one bound AF_PACKET socket,
// unix.Write per frame, partial-batch accounting via the sent-count
// return api.TransmitSink already specifies.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package txsink

import (
	"net"

	"golang.org/x/sys/unix"
)

// AFPacketSink is an api.TransmitSink backed by an AF_PACKET raw
// socket bound to a single egress interface.
type AFPacketSink struct {
	fd int
}

// NewAFPacketSink opens and binds a raw socket on ifaceName for
// transmit. Requires CAP_NET_RAW.
func NewAFPacketSink(ifaceName string) (*AFPacketSink, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, err
	}

	sa := &unix.SockaddrLinklayer{Ifindex: iface.Index}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &AFPacketSink{fd: fd}, nil
}

// SendBatch writes frames one at a time, stopping at the first error
// (other than a transient EAGAIN, which is treated as "no room right
// now" and also stops the batch). The number of frames written
// successfully before that point is returned as sent, matching
// api.TransmitSink's partial-send contract.
func (s *AFPacketSink) SendBatch(frames [][]byte) (int, error) {
	for i, frame := range frames {
		if _, err := unix.Write(s.fd, frame); err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return i, nil
			}
			return i, err
		}
	}
	return len(frames), nil
}

// Close implements api.TransmitSink.
func (s *AFPacketSink) Close() error {
	return unix.Close(s.fd)
}

func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}
