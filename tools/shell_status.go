package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/navcli/nav/process"
)

type shellStatusInput struct {
	PID    *int   `json:"pid" jsonschema:"description=Process id to query; omit to list all tracked processes"`
	Action string `json:"action" jsonschema:"enum=status,enum=output,enum=tail,enum=kill,description=Which view to return (default: status)"`
	N      int    `json:"n" jsonschema:"description=Number of bytes to return for the tail action"`
}

const defaultTailBytes = 2048

func (r *Registry) shellStatusTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[shellStatusInput](input)
	if err != nil {
		return "", err
	}

	if params.PID == nil {
		return process.FormatList(r.processManager.List()), nil
	}
	pid := *params.PID

	action := params.Action
	if action == "" {
		action = "status"
	}

	switch action {
	case "status":
		snap, ok := r.processManager.Status(pid)
		if !ok {
			return "", fmt.Errorf("no tracked process with pid %d", pid)
		}
		return process.FormatStatus(snap), nil

	case "output":
		snap, ok := r.processManager.Status(pid)
		if !ok {
			return "", fmt.Errorf("no tracked process with pid %d", pid)
		}
		return process.FormatOutput(snap), nil

	case "tail":
		n := params.N
		if n <= 0 {
			n = defaultTailBytes
		}
		out, ok := r.processManager.Tail(pid, n)
		if !ok {
			return "", fmt.Errorf("no tracked process with pid %d", pid)
		}
		return out, nil

	case "kill":
		found := r.processManager.Kill(pid)
		return "killed: " + strconv.FormatBool(found), nil

	default:
		return "", fmt.Errorf("unknown action %q (must be status, output, tail, or kill)", action)
	}
}
