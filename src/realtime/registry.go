package realtime

import (
	"slices"
	"sync"

	"github.com/orchestra-mcp/jobfeed/src/types"
)

// Handler receives delivered messages of the type it subscribed to.
type Handler func(msg types.Message)

// Subscription identifies one registration of a handler. Removal matches the
// handle, so the same function may be registered more than once.
type Subscription struct {
	msgType types.MessageType
	handler Handler
}

// Type returns the message type the subscription listens to.
func (s *Subscription) Type() types.MessageType { return s.msgType }

// registry maps message types to insertion-ordered subscription lists.
type registry struct {
	mu   sync.RWMutex
	subs map[types.MessageType][]*Subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[types.MessageType][]*Subscription)}
}

func (r *registry) add(t types.MessageType, h Handler) *Subscription {
	sub := &Subscription{msgType: t, handler: h}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[t] = append(r.subs[t], sub)
	return sub
}

func (r *registry) remove(t types.MessageType, sub *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[t]
	i := slices.Index(list, sub)
	if i < 0 {
		return false
	}
	// Copy on write so snapshots held by in-flight deliveries stay intact.
	next := make([]*Subscription, 0, len(list)-1)
	next = append(next, list[:i]...)
	next = append(next, list[i+1:]...)
	if len(next) == 0 {
		delete(r.subs, t)
	} else {
		r.subs[t] = next
	}
	return true
}

// snapshot returns the handlers for t at this instant.
func (r *registry) snapshot(t types.MessageType) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs[t]
}

func (r *registry) count(t types.MessageType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[t])
}
