// SPDX-License-Identifier: MIT
package bridge

import "fmt"

// State is the capture session state.
//
//	Stopped -> Opening -> Streaming -> (Reconfiguring -> Streaming) -> Stopped
//	Opening/Streaming -> Error -> (recovery) -> Streaming
type State int32

const (
	StateStopped State = iota
	StateOpening
	StateStreaming
	StateReconfiguring
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateReconfiguring:
		return "reconfiguring"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText renders the state by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
