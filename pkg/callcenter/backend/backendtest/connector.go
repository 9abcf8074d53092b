// Package backendtest provides a scriptable backend connector for tests.
package backendtest

import (
	"context"
	"sync"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"github.com/eburon/callerpro/pkg/callcenter/backend"
)

// Script produces the events for one input. An empty result leaves the turn
// pending until its context is cancelled.
type Script func(in backend.Input) []backend.Event

// Reply is a Script answering every input with text.
func Reply(text string) Script {
	return func(backend.Input) []backend.Event {
		return []backend.Event{
			{Type: backend.EventPartialText, Text: text},
			{Type: backend.EventCompleted, Text: text},
		}
	}
}

// Connector records connects and hands out scripted sessions.
type Connector struct {
	Kind   agent.BackendType
	Script Script
	// Gate, when set, holds Connect until it is closed or ctx ends.
	Gate chan struct{}
	Err  error
	// Reject, when set, may refuse an input before it is scripted.
	Reject func(in backend.Input) error

	mu       sync.Mutex
	attempts int
	sessions []*Session
}

func NewConnector(kind agent.BackendType, script Script) *Connector {
	return &Connector{Kind: kind, Script: script}
}

func (c *Connector) Type() agent.BackendType {
	return c.Kind
}

func (c *Connector) Connect(ctx context.Context, a *agent.Agent) (backend.Session, error) {
	c.mu.Lock()
	c.attempts++
	gate, err, script, reject := c.Gate, c.Err, c.Script, c.Reject
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := &Session{Agent: a, script: script, reject: reject}
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s, nil
}

func (c *Connector) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Connector) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Session(nil), c.sessions...)
}

// Session is a scripted backend session.
type Session struct {
	Agent *agent.Agent

	script Script
	reject func(in backend.Input) error

	mu     sync.Mutex
	inputs []backend.Input
	closed int
}

func (s *Session) Send(ctx context.Context, in backend.Input) (<-chan backend.Event, error) {
	if s.reject != nil {
		if err := s.reject(in); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()

	var evs []backend.Event
	if s.script != nil {
		evs = s.script(in)
	}
	ch := make(chan backend.Event, len(evs))
	go func() {
		defer close(ch)
		if len(evs) == 0 {
			<-ctx.Done()
			return
		}
		for _, ev := range evs {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Inputs returns everything sent on the session.
func (s *Session) Inputs() []backend.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Input(nil), s.inputs...)
}

// Closed counts Close calls.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
