//go:build darwin

package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/navcli/nav/config"
)

// navSandboxEnv marks a process as already running inside the sandbox
// re-exec, so a nested invocation doesn't wrap itself again.
const navSandboxEnv = "NAV_SANDBOXED"

// sandboxProfile is a restrictive sandbox-exec(1) profile: it confines
// writes to the current working directory, the user's nav config dir, and
// standard temp locations, while leaving reads and network access open so
// the agent can still fetch dependencies and read the rest of the
// filesystem for context.
const sandboxProfile = `(version 1)
(allow default)
(deny file-write*)
(allow file-write*
  (subpath (param "WORKDIR"))
  (subpath "/tmp")
  (subpath "/private/tmp")
  (subpath "/private/var/folders")
  (subpath (param "CONFIGDIR")))
`

// reexecInSandbox re-execs the current process under sandbox-exec with a
// profile that restricts filesystem writes to the working directory and nav's
// config directory. No-op if already inside the sandbox.
func reexecInSandbox() error {
	if os.Getenv(navSandboxEnv) == "1" {
		return nil
	}

	sandboxExec, err := exec.LookPath("sandbox-exec")
	if err != nil {
		return fmt.Errorf("sandbox-exec not found: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = workDir
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := append([]string{
		sandboxExec,
		"-p", sandboxProfile,
		"-D", "WORKDIR=" + workDir,
		"-D", "CONFIGDIR=" + configDir,
		self,
	}, os.Args[1:]...)

	env := append(os.Environ(), navSandboxEnv+"=1")

	return syscall.Exec(sandboxExec, args, env)
}
