package realtime

import "github.com/orchestra-mcp/jobfeed/src/types"

// bufferLog holds a log line until the next flush, arming the flush timer if
// none is pending. Lines from an attempt that is no longer current are
// dropped and false is returned.
func (c *Client) bufferLog(att *attempt, m types.Log) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != att {
		return false
	}
	c.logBuffer = append(c.logBuffer, m)
	if c.flushTimer != nil {
		return true
	}
	c.flushSeq++
	seq := c.flushSeq
	c.flushTimer = c.clock.AfterFunc(c.cfg.BufferFlushInterval, func() { c.flush(seq) })
	return true
}

// flush delivers every buffered line in arrival order and empties the buffer.
func (c *Client) flush(seq uint64) {
	c.mu.Lock()
	if c.flushTimer == nil || seq != c.flushSeq {
		c.mu.Unlock()
		return
	}
	c.flushTimer = nil
	lines := c.logBuffer
	c.logBuffer = nil
	gen := c.disconnects
	c.mu.Unlock()

	msgs := make([]types.Message, len(lines))
	for i, l := range lines {
		msgs[i] = l
	}
	// A handler that disconnects discards the rest of this flush.
	c.deliver(func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.disconnects == gen
	}, msgs...)
}

// BufferedLogLines returns how many log lines await the next flush.
func (c *Client) BufferedLogLines() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.logBuffer)
}
