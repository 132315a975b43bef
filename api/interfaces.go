// Package api
// Author: momentics <momentics@gmail.com>
//
// Interface contracts for the core's two external collaborators: the
// capture source (ingress) and the transmit sink (egress). The core
// never depends on a concrete implementation of either.

package api

// CaptureSource reads raw Ethernet frames from a source interface or a
// pre-recorded capture file. Out of scope for the core; the core only
// consumes what CaptureSource hands to the ingress-to-ring pipeline.
type CaptureSource interface {
	// ReadFrame reads one frame into dst, returning the number of bytes
	// written. Returns (0, nil) on a harmless empty read (e.g. transient
	// EAGAIN on a non-blocking socket).
	ReadFrame(dst []byte) (int, error)
	// Close releases the underlying descriptor or file.
	Close() error
}

// TransmitSink exposes a batched send to the egress device.
// SendBatch returns sent, the count of frames accepted starting from
// index 0 — a partial send means [0, sent) succeeded and [sent, count)
// did not. The core never inspects the sink beyond that return.
type TransmitSink interface {
	SendBatch(frames [][]byte) (sent int, err error)
	Close() error
}
