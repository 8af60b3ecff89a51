package observability

import (
	"bytes"
	"sync"
)

// DefaultCaptureLimit caps how much of a run's log a CaptureBuffer retains.
const DefaultCaptureLimit = 8 << 20

// CaptureBuffer records log output so a run's log can be shipped after it finishes.
// Writes past the limit are accepted but dropped.
type CaptureBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

// NewCaptureBuffer creates a capture buffer holding at most limit bytes.
// A non-positive limit uses DefaultCaptureLimit.
func NewCaptureBuffer(limit int) *CaptureBuffer {
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}
	return &CaptureBuffer{limit: limit}
}

// Write implements io.Writer. It never fails so it is safe inside an io.MultiWriter.
func (c *CaptureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.limit - c.buf.Len()
	switch {
	case remaining <= 0:
		c.truncated = true
	case len(p) > remaining:
		c.buf.Write(p[:remaining])
		c.truncated = true
	default:
		c.buf.Write(p)
	}
	return len(p), nil
}

// Bytes returns a copy of the captured output.
func (c *CaptureBuffer) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

// Truncated reports whether any output was dropped.
func (c *CaptureBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}

// Reset clears the captured output.
func (c *CaptureBuffer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Reset()
	c.truncated = false
}
