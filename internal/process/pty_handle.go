package process

import "io"

// PtyHandle abstracts pseudo-terminal operations across Unix and Windows.
// On Unix it wraps creack/pty (backed by an *os.File master). On Windows it
// wraps a ConPTY pseudo-console. Callers only ever see this interface; the
// platform-specific constructors live in pty_unix.go and pty_windows.go.
type PtyHandle interface {
	io.ReadWriteCloser
	// Resize changes the pseudo-terminal's window size.
	Resize(cols, rows uint16) error
}
