// Package call runs the call session state machine: it dials an agent,
// drives call-progress audio, relays the conversation to the backend and
// dispatches the model's tool calls.
package call

// State is the lifecycle state of the call slot.
type State string

const (
	StateIdle        State = "idle"
	StateDialing     State = "dialing"
	StateRinging     State = "ringing"
	StateConnected   State = "connected"
	StateHolding     State = "holding"
	StateTerminating State = "terminating"
	StateFailed      State = "failed"
)

var transitions = map[State][]State{
	StateIdle:        {StateDialing},
	StateDialing:     {StateRinging, StateFailed, StateTerminating},
	StateRinging:     {StateConnected, StateFailed, StateTerminating},
	StateConnected:   {StateHolding, StateFailed, StateTerminating},
	StateHolding:     {StateConnected, StateFailed, StateTerminating},
	StateFailed:      {StateTerminating},
	StateTerminating: {StateIdle},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether a call occupies the slot.
func (s State) Active() bool {
	return s != StateIdle
}

func (s State) String() string {
	return string(s)
}
