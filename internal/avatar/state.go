// Package avatar runs the avatar session: the animated rig, the reveal
// cycle and the conversation, all on one frame loop, with the result
// streamed to renderers.
package avatar

import (
	"github.com/normanking/robinavatar/internal/avatar3d"
)

// State represents the avatar's conversational state
type State struct {
	Expression string `json:"expression"`
	Phoneme    string `json:"phoneme"`
	Reveal     string `json:"reveal"`
	Cycle      uint64 `json:"cycle"`
	IsSpeaking bool   `json:"isSpeaking"`
	IsThinking bool   `json:"isThinking"`

	// Busy disables input: a request is in flight or a reply is being
	// revealed.
	Busy bool `json:"busy"`
}

// Frame is one rendered frame: the state plus the full pose.
type Frame struct {
	State
	Pose avatar3d.Pose `json:"pose"`
}
