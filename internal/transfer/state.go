package transfer

import "fmt"

// State is a transfer session phase. Sessions only move forward:
// Idle, SourceOpen, DestOpen, Streaming, Finalizing, Complete; Failed can be
// entered from any non-terminal state.
type State int

const (
	Idle State = iota
	SourceOpen
	DestOpen
	Streaming
	Finalizing
	Complete
	Failed
)

var stateNames = [...]string{
	Idle:       "idle",
	SourceOpen: "source_open",
	DestOpen:   "dest_open",
	Streaming:  "streaming",
	Finalizing: "finalizing",
	Complete:   "complete",
	Failed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// canEnter reports whether next directly follows s.
func (s State) canEnter(next State) bool {
	if s.Terminal() {
		return false
	}
	return next == Failed || next == s+1
}
