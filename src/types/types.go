package types

import (
	"encoding/json"
	"time"
)

// MessageType is the discriminator carried in the "type" field of every frame.
type MessageType string

const (
	TypeConnected MessageType = "connected"
	TypeStatus    MessageType = "status"
	TypeProgress  MessageType = "progress"
	TypeLog       MessageType = "log"
	TypeBatch     MessageType = "batch"
)

// JobStatus is the lifecycle status reported in a status event.
type JobStatus string

const (
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// Message is a server-to-client event. The set of implementations is closed:
// Connected, Status, Progress, Log and Batch.
type Message interface {
	Type() MessageType
	isMessage()
}

// Connected is sent once a connection has been bound to a channel.
type Connected struct {
	ChannelID string `json:"channel_id"`
}

// Status reports a job status change.
type Status struct {
	ChannelID string    `json:"channel_id"`
	Status    JobStatus `json:"status"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Progress reports a job's completion percentage.
type Progress struct {
	ChannelID string  `json:"channel_id,omitempty"`
	Percent   float64 `json:"percent"`
}

// Log carries one line of job output.
type Log struct {
	ChannelID string `json:"channel_id,omitempty"`
	Line      string `json:"line"`
}

// Batch carries several messages in one frame. It is unwrapped before
// delivery and never reaches a subscriber.
type Batch struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}

func (Connected) Type() MessageType { return TypeConnected }
func (Status) Type() MessageType    { return TypeStatus }
func (Progress) Type() MessageType  { return TypeProgress }
func (Log) Type() MessageType       { return TypeLog }
func (Batch) Type() MessageType     { return TypeBatch }

func (Connected) isMessage() {}
func (Status) isMessage()    {}
func (Progress) isMessage()  {}
func (Log) isMessage()       {}
func (Batch) isMessage()     {}

// NewBatch wraps msgs in a Batch with a matching count.
func NewBatch(msgs ...Message) Batch {
	return Batch{Messages: msgs, Count: len(msgs)}
}

// ChannelOf returns the channel a message belongs to, or "" when it carries none.
func ChannelOf(msg Message) string {
	switch m := msg.(type) {
	case Connected:
		return m.ChannelID
	case Status:
		return m.ChannelID
	case Progress:
		return m.ChannelID
	case Log:
		return m.ChannelID
	}
	return ""
}

// Action is a client-to-server control frame.
type Action struct {
	Action  string          `json:"action"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Action names understood by the hub.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionReplay      = "replay"
)

// ActionHandler handles a custom inbound action from a connected client.
type ActionHandler func(clientID string, action Action) error

// ClientInfo holds metadata about a connected WebSocket client.
type ClientInfo struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	Channels    []string  `json:"channels"`
	UserAgent   string    `json:"user_agent,omitempty"`
}

// Conn abstracts a server-side WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
