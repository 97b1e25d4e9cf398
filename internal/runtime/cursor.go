package runtime

import (
	"encoding/json"
	"fmt"
)

// cursorStep addresses one nesting level of the block tree. Block is the
// index at that level; Branch selects the taken arm of an IF block
// (len(Branches) addresses the else arm, -1 means not inside a branch).
type cursorStep struct {
	Block  int `json:"block"`
	Branch int `json:"branch"`
}

// continuation is the payload persisted with a scheduled wait: the full
// variable snapshot plus the cursor of the WAIT block, so execution resumes
// at the block after it, even when the WAIT sits inside nested branches.
type continuation struct {
	State  json.RawMessage `json:"state"`
	Cursor []cursorStep    `json:"cursor"`
}

func encodeContinuation(stateSnap []byte, cursor []cursorStep) ([]byte, error) {
	return json.Marshal(continuation{State: stateSnap, Cursor: cursor})
}

func decodeContinuation(data []byte) (continuation, error) {
	var c continuation
	if err := json.Unmarshal(data, &c); err != nil {
		return continuation{}, fmt.Errorf("decode continuation: %w", err)
	}
	if len(c.Cursor) == 0 {
		return continuation{}, fmt.Errorf("decode continuation: empty cursor")
	}
	return c, nil
}
