package call

import (
	"sync"
	"time"

	"github.com/eburon/callerpro/pkg/callcenter/backend"
)

// Role is the speaker of a transcript turn.
type Role string

const (
	RoleCaller Role = "caller"
	RoleAgent  Role = "agent"
	RoleTool   Role = "tool"
)

// Turn is one transcript entry. Turns are never modified once appended.
type Turn struct {
	Seq        int                 `json:"seq"`
	Role       Role                `json:"role"`
	Text       string              `json:"text,omitempty"`
	AudioBytes int                 `json:"audio_bytes,omitempty"`
	ToolCall   *backend.ToolCall   `json:"tool_call,omitempty"`
	ToolResult *backend.ToolResult `json:"tool_result,omitempty"`
	At         time.Time           `json:"at"`
}

// Transcript is the append-only log of a call.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// Append stamps t with its sequence number and time and stores it.
func (t *Transcript) Append(turn Turn) Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	turn.Seq = len(t.turns)
	turn.At = t.now()
	t.turns = append(t.turns, turn)
	return turn
}

// Turns returns a copy of every turn in append order.
func (t *Transcript) Turns() []Turn {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Turn(nil), t.turns...)
}

func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}
