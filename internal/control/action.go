package control

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownAction = errors.New("control: unknown action")

// Action is a lifecycle command addressed to the server process.
type Action string

const (
	ActionStart Action = "ACTION_START"
	ActionStop  Action = "ACTION_STOP"
)

// ParseAction accepts the wire names and the short forms "start" and "stop".
func ParseAction(raw string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(ActionStart), "START":
		return ActionStart, nil
	case string(ActionStop), "STOP":
		return ActionStop, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}
