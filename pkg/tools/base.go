package tools

import (
	"context"
	"errors"
	"fmt"
)

type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ArgumentError marks a rejection of the supplied call arguments, as
// opposed to a failure while the tool was running. The agent loop
// reports the two differently.
type ArgumentError struct {
	msg string
}

func (e *ArgumentError) Error() string { return e.msg }

// InvalidArgs builds an ArgumentError.
func InvalidArgs(format string, a ...interface{}) error {
	return &ArgumentError{msg: fmt.Sprintf(format, a...)}
}

// IsArgumentError reports whether err is an argument rejection.
func IsArgumentError(err error) bool {
	var argErr *ArgumentError
	return errors.As(err, &argErr)
}

// SubagentRunner is the interface the agent runtime implements so the
// subagent tool can delegate work without a circular import. Each call
// runs on a fresh conversation.
type SubagentRunner interface {
	RunTask(ctx context.Context, prompt string) (string, error)
}

// WatchController is implemented by the watcher layer. The watcher tools
// only drive this surface; wiring the change events back into an agent
// run happens on the other side of the interface.
type WatchController interface {
	StartWatch(ctx context.Context, request string, path string, patterns, ignorePatterns []string, recursive bool) (string, error)
	StopWatch(id string) bool
	DescribeWatchers() []string
	WatcherInfo(id string) (string, bool)
}

func ToolToSchema(tool Tool) map[string]interface{} {
	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        tool.Name(),
			"description": tool.Description(),
			"parameters":  tool.Parameters(),
		},
	}
}
