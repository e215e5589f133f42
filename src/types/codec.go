package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a frame is not a well-formed message.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for a frame whose type tag is not recognised.
	ErrUnknownType = errors.New("unknown message type")
)

// maxBatchDepth bounds how deeply batches may nest inside one frame.
const maxBatchDepth = 8

// envelope is the union of every field any message may carry. Pointer fields
// distinguish "absent" from the zero value.
type envelope struct {
	Type      MessageType       `json:"type"`
	ChannelID *string           `json:"channel_id"`
	Status    *JobStatus        `json:"status"`
	Progress  *float64          `json:"progress"`
	Message   string            `json:"message"`
	Error     string            `json:"error"`
	Percent   *float64          `json:"percent"`
	Line      *string           `json:"line"`
	Messages  []json.RawMessage `json:"messages"`
	Count     int               `json:"count"`
}

// Decode parses one inbound frame into a Message. Any shape violation,
// including one inside a batch, fails the whole frame.
func Decode(data []byte) (Message, error) {
	return decode(data, 0)
}

func decode(data []byte, depth int) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeConnected:
		if str(env.ChannelID) == "" {
			return nil, fmt.Errorf("%w: connected without channel_id", ErrMalformed)
		}
		return Connected{ChannelID: *env.ChannelID}, nil

	case TypeStatus:
		if str(env.ChannelID) == "" || env.Status == nil || *env.Status == "" || env.Progress == nil {
			return nil, fmt.Errorf("%w: status requires channel_id, status and progress", ErrMalformed)
		}
		return Status{
			ChannelID: *env.ChannelID,
			Status:    *env.Status,
			Progress:  *env.Progress,
			Message:   env.Message,
			Error:     env.Error,
		}, nil

	case TypeProgress:
		if env.Percent == nil {
			return nil, fmt.Errorf("%w: progress without percent", ErrMalformed)
		}
		return Progress{ChannelID: str(env.ChannelID), Percent: *env.Percent}, nil

	case TypeLog:
		if env.Line == nil {
			return nil, fmt.Errorf("%w: log without line", ErrMalformed)
		}
		return Log{ChannelID: str(env.ChannelID), Line: *env.Line}, nil

	case TypeBatch:
		if env.Messages == nil {
			return nil, fmt.Errorf("%w: batch without messages", ErrMalformed)
		}
		if depth >= maxBatchDepth {
			return nil, fmt.Errorf("%w: batch nested too deeply", ErrMalformed)
		}
		msgs := make([]Message, 0, len(env.Messages))
		for i, raw := range env.Messages {
			m, err := decode(raw, depth+1)
			if err != nil {
				return nil, fmt.Errorf("batch element %d: %w", i, err)
			}
			msgs = append(msgs, m)
		}
		return Batch{Messages: msgs, Count: env.Count}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Encode serializes a message with its type tag.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (m Connected) MarshalJSON() ([]byte, error) {
	type plain Connected
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		plain
	}{TypeConnected, plain(m)})
}

func (m Status) MarshalJSON() ([]byte, error) {
	type plain Status
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		plain
	}{TypeStatus, plain(m)})
}

func (m Progress) MarshalJSON() ([]byte, error) {
	type plain Progress
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		plain
	}{TypeProgress, plain(m)})
}

func (m Log) MarshalJSON() ([]byte, error) {
	type plain Log
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		plain
	}{TypeLog, plain(m)})
}

func (m Batch) MarshalJSON() ([]byte, error) {
	type plain Batch
	p := plain(m)
	if p.Messages == nil {
		p.Messages = []Message{}
	}
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		plain
	}{TypeBatch, p})
}
