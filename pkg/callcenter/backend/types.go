package backend

import (
	"context"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
)

// EventType identifies a backend event within one turn.
type EventType string

const (
	EventPartialText EventType = "partial_text"
	EventToolCall    EventType = "tool_call"
	EventAudio       EventType = "audio"
	EventCompleted   EventType = "completed"
	EventError       EventType = "error"
)

// Event is one item of a turn's event sequence. Every sequence ends with
// exactly one Completed or Error event, after which the channel is closed.
type Event struct {
	Type     EventType
	Text     string
	ToolCall *ToolCall
	Audio    []byte
	Err      error
}

// Terminal reports whether the event ends its turn.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Index     int                    `json:"index"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	// ArgumentsError is set when the model's arguments could not be decoded.
	ArgumentsError string `json:"arguments_error,omitempty"`
}

// ToolResult is the outcome of a tool call, fed back to the model.
type ToolResult struct {
	CallID  string      `json:"call_id,omitempty"`
	Name    string      `json:"name"`
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Input is one caller-role input: text, audio, or tool results.
type Input struct {
	Text        string
	Audio       []byte
	AudioMIME   string
	ToolResults []ToolResult
}

func (i Input) Empty() bool {
	return i.Text == "" && len(i.Audio) == 0 && len(i.ToolResults) == 0
}

// AudioOnly reports whether i carries caller audio and nothing else.
func (i Input) AudioOnly() bool {
	return len(i.Audio) > 0 && i.Text == "" && len(i.ToolResults) == 0
}

// Session is an open conversation on one backend.
type Session interface {
	// Send relays one input and returns the events of the resulting turn.
	Send(ctx context.Context, in Input) (<-chan Event, error)
	Close() error
}

// Connector opens sessions for one backend type.
type Connector interface {
	Type() agent.BackendType
	Connect(ctx context.Context, a *agent.Agent) (Session, error)
}

// emit delivers ev unless ctx is done first.
func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
