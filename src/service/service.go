package service

import (
	"errors"
	"fmt"

	"github.com/orchestra-mcp/jobfeed/src/hub"
	"github.com/orchestra-mcp/jobfeed/src/types"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownClient is returned when an operation names a client that is not connected.
	ErrUnknownClient = errors.New("client not found")
	// ErrInvalidEvent is returned for an event that would not decode on the consumer side.
	ErrInvalidEvent = errors.New("invalid event")
)

// Service provides the producer-facing job event API.
type Service struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// New creates a new service backed by the given hub and registers the
// replay action.
func New(h *hub.Hub, logger zerolog.Logger) *Service {
	s := &Service{hub: h, logger: logger.With().Str("component", "service").Logger()}
	h.RegisterHandler(types.ActionReplay, s.handleReplay)
	return s
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// RegisterHandler registers a handler for a custom inbound action.
func (s *Service) RegisterHandler(action string, handler types.ActionHandler) {
	s.hub.RegisterHandler(action, handler)
	s.logger.Debug().Str("action", action).Msg("handler registered")
}

func (s *Service) handleReplay(clientID string, a types.Action) error {
	if a.Channel == "" {
		return fmt.Errorf("%w: replay without channel", ErrInvalidEvent)
	}
	if !s.hub.Replay(clientID, a.Channel) {
		return fmt.Errorf("replay %s for %s: %w", a.Channel, clientID, ErrUnknownClient)
	}
	return nil
}

// PublishStatus announces a job status change on the job's channel.
func (s *Service) PublishStatus(jobID string, status types.JobStatus, progress float64, message, errText string) error {
	if status == "" {
		return fmt.Errorf("%w: empty status", ErrInvalidEvent)
	}
	return s.Publish(jobID, types.Status{
		ChannelID: jobID,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Error:     errText,
	})
}

// PublishProgress announces a job's completion percentage.
func (s *Service) PublishProgress(jobID string, percent float64) error {
	return s.Publish(jobID, types.Progress{ChannelID: jobID, Percent: percent})
}

// PublishLog sends lines of job output. Lines are batched by the hub.
func (s *Service) PublishLog(jobID string, lines ...string) error {
	for _, line := range lines {
		if err := s.Publish(jobID, types.Log{ChannelID: jobID, Line: line}); err != nil {
			return err
		}
	}
	return nil
}

// Publish sends an event to all subscribers of a channel.
func (s *Service) Publish(channel string, msg types.Message) error {
	if channel == "" || channel == hub.AggregateChannel {
		return fmt.Errorf("%w: cannot publish to channel %q", ErrInvalidEvent, channel)
	}
	if _, ok := msg.(types.Batch); ok {
		return fmt.Errorf("%w: batches are assembled by the hub", ErrInvalidEvent)
	}
	s.hub.Publish(channel, msg)
	return nil
}

// Subscribe adds a client to a channel the same way a subscribe action does:
// pending log lines are flushed, then the client gets Connected and the
// channel's tail before any later event.
func (s *Service) Subscribe(channel, clientID string) error {
	if ok := s.hub.Join(clientID, channel); !ok {
		return fmt.Errorf("subscribe %s: %w: %s", channel, ErrUnknownClient, clientID)
	}
	s.logger.Debug().
		Str("client_id", clientID).
		Str("channel", channel).
		Msg("subscribed")
	return nil
}

// Unsubscribe removes a client from a channel.
func (s *Service) Unsubscribe(channel, clientID string) error {
	if ok := s.hub.Unsubscribe(channel, clientID); !ok {
		return fmt.Errorf("channel %s or client %s not found", channel, clientID)
	}
	s.logger.Debug().
		Str("client_id", clientID).
		Str("channel", channel).
		Msg("unsubscribed")
	return nil
}

// OnConnection registers a callback for new connections.
func (s *Service) OnConnection(cb func(clientID string)) {
	s.hub.OnConnection(cb)
}

// OnDisconnection registers a callback for disconnections.
func (s *Service) OnDisconnection(cb func(clientID string)) {
	s.hub.OnDisconnection(cb)
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// SendToClient sends an event directly to a specific client.
func (s *Service) SendToClient(clientID string, msg types.Message) error {
	if ok := s.hub.SendToClient(clientID, msg); !ok {
		return fmt.Errorf("%w or buffer full: %s", ErrUnknownClient, clientID)
	}
	return nil
}

// GetChannels returns active channels with subscriber counts.
func (s *Service) GetChannels() map[string]int {
	return s.hub.Channels()
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
	}
	return info, nil
}
