//go:build !darwin

package main

import "fmt"

// reexecInSandbox reports an error: the sandbox re-exec wrapper only exists
// on macOS (sandbox-exec). Requesting it elsewhere is a hard failure rather
// than a silent no-op, so a user relying on --sandbox for isolation never
// runs unsandboxed without knowing it.
func reexecInSandbox() error {
	return fmt.Errorf("sandbox mode is only supported on macOS")
}
