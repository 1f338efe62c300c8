package tools

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CurrentTimeTool reports the current time, optionally in a named
// IANA timezone.
type CurrentTimeTool struct{}

func (t *CurrentTimeTool) Name() string { return "core_current_time" }

func (t *CurrentTimeTool) Description() string {
	return "Get the current date and time, optionally in a specific IANA timezone."
}

func (t *CurrentTimeTool) Parameters() []Param {
	return []Param{
		{Name: "timezone", Type: "string", Description: "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC."},
	}
}

func (t *CurrentTimeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	loc := time.UTC
	if tz := StringArg(args, "timezone", ""); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		loc = l
	}
	return time.Now().In(loc).Format(time.RFC1123), nil
}

// StateGetTool reads a key from the conversation's workflow state.
type StateGetTool struct{}

func (t *StateGetTool) Name() string { return "core_state_get" }

func (t *StateGetTool) Description() string {
	return "Read a value previously stored in the conversation's workflow state."
}

func (t *StateGetTool) Parameters() []Param {
	return []Param{
		{Name: "key", Type: "string", Description: "State key to read.", Required: true},
	}
}

func (t *StateGetTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	ws := WorkflowStateFromCtx(ctx)
	if ws == nil {
		return "", errors.New("no workflow state bound to this turn")
	}
	key := StringArg(args, "key", "")
	v, ok := ws.State(key)
	if !ok {
		return fmt.Sprintf("no value stored under %q", key), nil
	}
	return fmt.Sprintf("%v", v), nil
}

// StateSetTool writes a key into the conversation's workflow state.
type StateSetTool struct{}

func (t *StateSetTool) Name() string { return "core_state_set" }

func (t *StateSetTool) Description() string {
	return "Store a value in the conversation's workflow state for later turns."
}

func (t *StateSetTool) Parameters() []Param {
	return []Param{
		{Name: "key", Type: "string", Description: "State key to write.", Required: true},
		{Name: "value", Type: "string", Description: "Value to store.", Required: true},
	}
}

func (t *StateSetTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	ws := WorkflowStateFromCtx(ctx)
	if ws == nil {
		return "", errors.New("no workflow state bound to this turn")
	}
	key := StringArg(args, "key", "")
	value := StringArg(args, "value", "")
	ws.SetState(key, value)
	return fmt.Sprintf("stored %q", key), nil
}

// RegisterBuiltins adds the core utility tools shared by all agents.
func RegisterBuiltins(r *Registry) {
	r.Register(&CurrentTimeTool{})
	r.Register(&StateGetTool{})
	r.Register(&StateSetTool{})
}
