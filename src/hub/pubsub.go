package hub

import (
	"github.com/orchestra-mcp/jobfeed/src/types"
)

// handleAction runs on the Run goroutine and reports whether the action
// took effect.
func (h *Hub) handleAction(clientID string, a types.Action) bool {
	switch a.Action {
	case types.ActionSubscribe:
		if a.Channel == "" {
			h.logger.Debug().Str("client_id", clientID).Msg("subscribe without channel")
			return false
		}
		// Flush first so the replayed tail and the next batch do not overlap.
		h.flushChannel(a.Channel)
		if a.Channel == AggregateChannel {
			h.flushAll()
		}
		if !h.Subscribe(a.Channel, clientID) {
			return false
		}
		h.Replay(clientID, a.Channel)
		return true
	case types.ActionUnsubscribe:
		return h.Unsubscribe(a.Channel, clientID)
	}

	h.mu.RLock()
	handler, ok := h.handlers[a.Action]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug().Str("action", a.Action).Msg("no handler")
		return false
	}
	if err := handler(clientID, a); err != nil {
		h.logger.Error().Err(err).Str("action", a.Action).Msg("handler error")
		return false
	}
	return true
}

// deliver records msg in the channel tail and fans it out. Log lines are
// held until the next batch flush; any other event flushes the channel's
// pending lines first so per-channel order is kept.
func (h *Hub) deliver(channel string, msg types.Message) {
	h.record(channel, msg)

	if _, ok := msg.(types.Log); ok {
		h.pendingLogs[channel] = append(h.pendingLogs[channel], msg)
		if h.cfg.MaxBatchSize > 0 && len(h.pendingLogs[channel]) >= h.cfg.MaxBatchSize {
			h.flushChannel(channel)
		}
		return
	}
	h.flushChannel(channel)
	h.broadcastToChannel(channel, msg)
}

func (h *Hub) flushChannel(channel string) {
	pending := h.pendingLogs[channel]
	if len(pending) == 0 {
		return
	}
	delete(h.pendingLogs, channel)
	h.broadcastToChannel(channel, types.NewBatch(pending...))
}

func (h *Hub) flushAll() {
	for channel := range h.pendingLogs {
		h.flushChannel(channel)
	}
}

// record appends msg to the channel's and the aggregate tail.
func (h *Hub) record(channel string, msg types.Message) {
	if h.cfg.ReplayTail <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendTail(channel, msg)
	if channel != AggregateChannel {
		h.appendTail(AggregateChannel, msg)
	}
}

func (h *Hub) appendTail(channel string, msg types.Message) {
	tail := append(h.tails[channel], msg)
	if over := len(tail) - h.cfg.ReplayTail; over > 0 {
		tail = append([]types.Message(nil), tail[over:]...)
	}
	h.tails[channel] = tail
}

// Replay sends a connected frame for channel followed by its recent tail as
// one batch.
func (h *Hub) Replay(clientID, channel string) bool {
	if !h.SendToClient(clientID, types.Connected{ChannelID: channel}) {
		return false
	}
	tail := h.Tail(channel)
	if len(tail) == 0 {
		return true
	}
	return h.SendToClient(clientID, types.NewBatch(tail...))
}

func (h *Hub) broadcastToChannel(channel string, msg types.Message) {
	h.mu.RLock()
	// Copy subscriber IDs to avoid holding lock during sends.
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, ch := range []string{channel, AggregateChannel} {
		for id := range h.channels[ch] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.mu.RLock()
		client, exists := h.clients[id]
		h.mu.RUnlock()
		if !exists {
			continue
		}
		select {
		case client.Send <- msg:
		default:
			h.logger.Warn().Str("client_id", id).Msg("send buffer full, dropping")
		}
	}
}

// publishToBridge forwards a message to the bridge if one is attached.
func (h *Hub) publishToBridge(channel string, msg types.Message) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(channel, msg); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// Publish sends a message to all subscribers of a channel. It reports false
// if the hub has stopped.
func (h *Hub) Publish(channel string, msg types.Message) bool {
	select {
	case h.broadcast <- broadcastMsg{channel: channel, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// Subscribe adds a client to a channel directly, without the flush and
// replay a subscribe action gets. Use Join for that.
func (h *Hub) Subscribe(channel, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		return false
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[string]bool)
	}
	h.channels[channel][clientID] = true
	h.clients[clientID].AddChannel(channel)
	return true
}

// Unsubscribe removes a client from a channel.
func (h *Hub) Unsubscribe(channel, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		return false
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
	if c, ok := h.clients[clientID]; ok {
		c.RemoveChannel(channel)
	}
	return true
}

// SendToClient sends a message directly to a specific client.
func (h *Hub) SendToClient(clientID string, msg types.Message) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case client.Send <- msg:
		return true
	default:
		return false
	}
}

// Join subscribes a client to channel through the event loop, exactly as if
// the client had sent a subscribe action, and waits until it is done. Events
// published after Join returns reach the client after its replay. Join must
// not be called from a hub callback or action handler.
func (h *Hub) Join(clientID, channel string) bool {
	reply := make(chan bool, 1)
	in := inbound{
		clientID: clientID,
		action:   types.Action{Action: types.ActionSubscribe, Channel: channel},
		reply:    reply,
	}
	select {
	case h.incoming <- in:
	case <-h.done:
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-h.done:
		return false
	}
}
