package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send when the payload can be neither sent
// nor queued.
var ErrNotConnected = errors.New("not connected")

// Send serializes payload as JSON and writes it to the transport. While
// Connecting with QueueWhileConnecting set, the payload is queued and written
// in order once the transport opens. In every other state Send returns
// ErrNotConnected and the transport is not touched.
//
// Right after open, while the queue is still being written, Send appends
// behind it; a write failure there is reported through OnError.
func (c *Client) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == Connected && c.current != nil && c.current.draining:
		c.sendQueue = append(c.sendQueue, data)
		return nil
	case c.state == Connected && c.current != nil:
		if err := c.current.transport.Send(data); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	case c.state == Connecting && c.cfg.QueueWhileConnecting:
		c.sendQueue = append(c.sendQueue, data)
		return nil
	}
	return fmt.Errorf("%w (state %s)", ErrNotConnected, c.state)
}

// QueuedSends returns how many payloads await the transport opening.
func (c *Client) QueuedSends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sendQueue)
}
