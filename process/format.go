package process

import (
	"fmt"
	"strings"
	"time"
)

const (
	statusTailBytes = 2 * 1024
	commandTruncate = 60
)

func truncateCommand(cmd string) string {
	if len(cmd) <= commandTruncate {
		return cmd
	}
	return cmd[:commandTruncate] + "..."
}

// FormatStatus renders the "status" view: command, running/exited state,
// seconds since start, and a short tail of the output buffer.
func FormatStatus(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid %d: %s\n", s.PID, truncateCommand(s.Command))
	if s.Running {
		fmt.Fprintf(&b, "running, %.0fs elapsed\n", time.Since(s.Started).Seconds())
	} else {
		code := "unknown"
		if s.ExitCode != nil {
			code = fmt.Sprintf("%d", *s.ExitCode)
		}
		fmt.Fprintf(&b, "exited, code %s, ran %.0fs\n", code, time.Since(s.Started).Seconds())
	}
	b.WriteString(tailBytes(s.Output, statusTailBytes))
	return b.String()
}

// FormatOutput renders the "output" view: the status line plus the full
// (buffer-bounded) output.
func FormatOutput(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid %d: %s\n", s.PID, truncateCommand(s.Command))
	if s.Running {
		b.WriteString("running\n")
	} else {
		code := "unknown"
		if s.ExitCode != nil {
			code = fmt.Sprintf("%d", *s.ExitCode)
		}
		fmt.Fprintf(&b, "exited, code %s\n", code)
	}
	b.WriteString(s.Output)
	if s.Dropped {
		b.WriteString("\n[output truncated at buffer limit]")
	}
	return b.String()
}

// FormatList renders the "list all tracked processes" view.
func FormatList(snaps []Snapshot) string {
	if len(snaps) == 0 {
		return "no tracked processes"
	}
	var b strings.Builder
	for _, s := range snaps {
		state := "running"
		if !s.Running {
			state = "exited"
			if s.ExitCode != nil {
				state = fmt.Sprintf("exited(%d)", *s.ExitCode)
			}
		}
		fmt.Fprintf(&b, "pid %d [%s]: %s\n", s.PID, state, truncateCommand(s.Command))
	}
	return b.String()
}

func tailBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
