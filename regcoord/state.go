/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package regcoord

// State is the state of the coordinator as a whole.
type State string

// Coordinator states.
//
//	Idle                -> WaitingForReadiness | Draining | Settled  (Start)
//	WaitingForReadiness -> Draining                                  (readiness fired)
//	Draining            -> Settled                                   (all units terminal)
//	any non-terminal    -> Aborted                                   (Stop, or exhausted unit with ContinueOnFailure=false)
const (
	StateIdle                State = "idle"
	StateWaitingForReadiness State = "waiting_for_readiness"
	StateDraining            State = "draining"
	StateSettled             State = "settled"
	StateAborted             State = "aborted"
)

var allStates = []State{StateIdle, StateWaitingForReadiness, StateDraining, StateSettled, StateAborted}

// IsTerminal reports whether the coordinator will not change its state anymore.
func (s State) IsTerminal() bool {
	return s == StateSettled || s == StateAborted
}

func (s State) acceptsSubmissions() bool {
	return s == StateIdle || s == StateWaitingForReadiness
}
