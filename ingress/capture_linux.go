//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ingress

import (
	"net"

	"golang.org/x/sys/unix"
)

// AFPacketSource is an api.CaptureSource backed by an AF_PACKET raw
// socket bound to a single interface, capturing every EtherType.
//
// Socket setup (unix.Socket/Bind/SetNonblock) follows the same idiom
// as an AF_INET/SOCK_RAW ICMP listener, adapted here to
// AF_PACKET/SOCK_RAW link-layer capture.
type AFPacketSource struct {
	fd int
}

// NewAFPacketSource opens and binds a raw socket on ifaceName. Requires
// CAP_NET_RAW.
func NewAFPacketSource(ifaceName string) (*AFPacketSource, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}

	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, err
	}

	sa := &unix.SockaddrLinklayer{Protocol: proto, Ifindex: iface.Index}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &AFPacketSource{fd: fd}, nil
}

// ReadFrame implements api.CaptureSource. EAGAIN/EWOULDBLOCK on the
// non-blocking socket is a harmless empty read, not an error.
func (s *AFPacketSource) ReadFrame(dst []byte) (int, error) {
	n, err := unix.Read(s.fd, dst)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// Close implements api.CaptureSource.
func (s *AFPacketSource) Close() error {
	return unix.Close(s.fd)
}

// htons converts a 16-bit value from host to network byte order, as
// required by sockaddr_ll.Protocol.
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}
