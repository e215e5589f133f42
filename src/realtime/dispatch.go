package realtime

import (
	"fmt"

	"github.com/orchestra-mcp/jobfeed/src/types"
)

// Subscribe registers h for messages of type t. Handlers of the same type are
// invoked in subscription order. Subscribing to types.TypeBatch is allowed but
// never fires, since batches are unwrapped before delivery.
func (c *Client) Subscribe(t types.MessageType, h Handler) *Subscription {
	return c.subs.add(t, h)
}

// Unsubscribe removes exactly the registration identified by sub. Other
// handlers for t are unaffected. It reports whether sub was registered.
func (c *Client) Unsubscribe(t types.MessageType, sub *Subscription) bool {
	if sub == nil {
		return false
	}
	return c.subs.remove(t, sub)
}

// SubscriberCount returns how many handlers are registered for t.
func (c *Client) SubscriberCount(t types.MessageType) int {
	return c.subs.count(t)
}

func (c *Client) handleMessage(att *attempt, data []byte) {
	if !c.isCurrent(att) {
		return
	}

	msg, err := types.Decode(data)
	if err != nil {
		c.logger.Debug().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
		return
	}
	c.route(att, msg)
}

// isCurrent reports whether att is still the client's active attempt.
func (c *Client) isCurrent(att *attempt) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == att
}

// route sends each message to the log buffer or straight to its subscribers.
// It stops, reporting false, as soon as att is no longer current, so a
// handler that disconnects ends the rest of its frame.
func (c *Client) route(att *attempt, msg types.Message) bool {
	switch m := msg.(type) {
	case types.Batch:
		for _, inner := range m.Messages {
			if !c.route(att, inner) {
				return false
			}
		}
		return true
	case types.Log:
		return c.bufferLog(att, m)
	case types.Connected, types.Status, types.Progress:
		return c.deliver(func() bool { return c.isCurrent(att) }, m)
	default:
		c.logger.Debug().Str("type", fmt.Sprintf("%T", msg)).Msg("dropping unroutable message")
		return true
	}
}

// deliver invokes every handler subscribed to each message's type, checking
// live before each message. It reports false if delivery was cut short.
func (c *Client) deliver(live func() bool, msgs ...types.Message) bool {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	for _, msg := range msgs {
		if !live() {
			return false
		}
		for _, sub := range c.subs.snapshot(msg.Type()) {
			c.invoke(sub, msg)
		}
	}
	return true
}

// invoke runs one handler, isolating a panic so later handlers still run.
func (c *Client) invoke(sub *Subscription, msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("type", string(msg.Type())).
				Interface("panic", r).
				Msg("subscriber panicked")
		}
	}()
	sub.handler(msg)
}
