package ui

import (
	"errors"
	"os"
	"time"

	"golang.org/x/term"
)

// ErrStopped is returned by ReadKeyContext when the done channel is closed.
var ErrStopped = errors.New("read stopped")

// RawMode manages terminal raw mode state for stdin, delegating the
// platform-specific termios/console-mode work to golang.org/x/term.
type RawMode struct {
	fd    int
	state *term.State
}

// NewRawMode creates a new RawMode for stdin.
func NewRawMode() (*RawMode, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	return &RawMode{fd: fd}, nil
}

// Enable puts the terminal into raw mode (no canonical mode, no echo).
func (rm *RawMode) Enable() error {
	state, err := term.MakeRaw(rm.fd)
	if err != nil {
		return err
	}
	rm.state = state
	return nil
}

// Disable restores the original terminal mode.
func (rm *RawMode) Disable() error {
	if rm.state == nil {
		return nil
	}
	return term.Restore(rm.fd, rm.state)
}

// pollInterval is how often ReadKeyContext polls stdin for pending bytes
// while waiting to be cancelled via the done channel.
const pollInterval = 25 * time.Millisecond

// ReadKeyContext reads a single byte from stdin, cancellable via the done
// channel. Polls StdinHasData (platform-specific) rather than blocking on
// Read so a close of done is noticed promptly.
func (rm *RawMode) ReadKeyContext(done <-chan struct{}) (byte, error) {
	buf := make([]byte, 1)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return 0, ErrStopped
		case <-ticker.C:
		}

		if !StdinHasData() {
			continue
		}
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			continue
		}
		return buf[0], nil
	}
}
