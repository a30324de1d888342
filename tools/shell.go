package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/navcli/nav/process"
)

type shellInput struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to execute"`
	WaitMS  *int   `json:"wait_ms" jsonschema:"description=Milliseconds to wait for completion before backgrounding the command (default 30000; 0 means background immediately)"`
}

const defaultWaitMS = int(process.DefaultWaitBudget / time.Millisecond)

func (r *Registry) shellTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[shellInput](input)
	if err != nil {
		return "", err
	}
	if params.Command == "" {
		return "", fmt.Errorf("command is required")
	}

	waitMS := defaultWaitMS
	if params.WaitMS != nil {
		waitMS = *params.WaitMS
	}
	if waitMS < 0 {
		waitMS = 0
	}

	return "", &NeedsConfirmation{
		Tool:    "shell",
		Path:    params.Command,
		Preview: params.Command,
		Execute: func() (string, error) {
			result, err := r.processManager.Run(ctx, params.Command, time.Duration(waitMS)*time.Millisecond)
			if err != nil && result.PID == 0 {
				return "", fmt.Errorf("run command: %w", err)
			}

			if result.Completed {
				out := result.Output
				if out == "" {
					out = "(no output)"
				}
				return out, nil
			}

			return fmt.Sprintf(
				"Command is still running after %dms and has been backgrounded as pid %d. Output so far:\n%s\nUse shell_status to check on it.",
				waitMS, result.PID, result.Output,
			), nil
		},
	}
}
