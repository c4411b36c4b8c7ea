package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Dispatcher.Invoke when the requested tool
// name is not one of the registered order tools.
var ErrUnknownTool = errors.New("unknown tool")

// ArgumentError reports that a tool's arguments could not be decoded into
// the tool's typed argument struct. The dialogue engine converts it into a
// tool result the model can read instead of failing the turn.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }
