// Package fake provides predictable, controllable test doubles for the
// core's two external collaborators (api.CaptureSource, api.TransmitSink).
//
// A mutex-guarded queue of byte slices with settable error injection
// and accessor methods for assertions, narrowed from a bidirectional
// Send/Recv transport shape down to the unidirectional read and
// batched-send shapes the core actually depends on.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package fake

import (
	"fmt"
	"sync"
)

// ErrCaptureClosed is returned by ReadFrame after Close.
var ErrCaptureClosed = fmt.Errorf("fake: capture source is closed")

// CaptureSource is a fake api.CaptureSource backed by a queue of
// pre-loaded frames.
type CaptureSource struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	readErr error
}

// NewCaptureSource returns an empty fake source.
func NewCaptureSource() *CaptureSource {
	return &CaptureSource{}
}

// Feed appends a frame to be returned by a future ReadFrame call.
func (c *CaptureSource) Feed(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	c.frames = append(c.frames, cp)
}

// SetReadError configures ReadFrame to fail with err until cleared.
func (c *CaptureSource) SetReadError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// ReadFrame implements api.CaptureSource. With no frame queued it
// returns (0, nil), matching a non-blocking socket's harmless empty
// read.
func (c *CaptureSource) ReadFrame(dst []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrCaptureClosed
	}
	if c.readErr != nil {
		return 0, c.readErr
	}
	if len(c.frames) == 0 {
		return 0, nil
	}
	n := copy(dst, c.frames[0])
	c.frames = c.frames[1:]
	return n, nil
}

// Close implements api.CaptureSource.
func (c *CaptureSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Pending reports how many frames remain queued.
func (c *CaptureSource) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}
