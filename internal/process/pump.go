package process

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/kandev/agentcore/internal/coreevents"
)

// defaultReadBufferSize is the Output Pump's fixed read buffer (§4.3).
const defaultReadBufferSize = 4096

// runPump is the Output Pump's (C3) read loop: it reads from r until EOF,
// a normal-exit I/O condition, cancellation, or a genuine read failure,
// emitting every non-empty read as a Chunk to sink. It does not call
// sink.Close — the caller (the Process Executor, which alone knows the
// process's exit code) does that exactly once after the pump for every
// stream of a process has returned (I5).
//
// Grounded on the teacher's ProcessRunner.readOutput / InteractiveRunner's
// PTY read loop: fixed-size buffer, lossy string(buf[:n]) decode,
// EOF/closed-pipe treated as a normal end rather than an error. Unlike the
// teacher's loop, a Go os.File/PTY master read blocks in the runtime's own
// poller rather than returning EWOULDBLOCK to userspace, so there is no
// separate WouldBlock/sleep-and-retry branch to implement here.
func runPump(r io.Reader, processID string, stream coreevents.OutputStream, sink Sink, cancelled func() bool) error {
	buf := make([]byte, defaultReadBufferSize)
	for {
		if cancelled() {
			return nil
		}

		n, err := r.Read(buf)
		if n > 0 {
			chunk := Chunk{
				ProcessID: processID,
				Stream:    stream,
				Text:      string(buf[:n]),
				Timestamp: time.Now().UTC(),
			}
			_ = sink.Send(chunk)
		}

		if err != nil {
			if isNormalPumpExit(err) {
				return nil
			}
			return newErr(KindRead, processID, err)
		}
	}
}

// isNormalPumpExit reports whether err reflects an ordinary end of a child's
// output (EOF, the master/pipe being closed from the other end) rather than
// an I/O failure worth surfacing as a Read error.
func isNormalPumpExit(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, os.ErrClosed)
}
