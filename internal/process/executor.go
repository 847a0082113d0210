package process

import (
	"context"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kandev/agentcore/internal/coreevents"
)

// State is a Process record's lifecycle state (§4.4).
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateKilled    State = "killed"
)

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateKilled
}

// SpawnConfig is the spawn configuration snapshot of the Process record
// (§3): command, args, cwd, env, PTY-vs-pipe choice, and initial PTY size.
type SpawnConfig struct {
	Command    string
	Args       []string
	Cwd        string
	Env        map[string]string
	InheritEnv bool
	PTY        bool
	Cols       uint16
	Rows       uint16
}

// Status is the externally visible snapshot of a Process record — the
// "lightweight handle carrying id, status snapshot" of §3's ownership
// note. Everything except the Executor sees only this, never the OS
// handles.
type Status struct {
	ID       string
	State    State
	ExitCode *int
}

// record is the Executor's private Process record. The OS handles and
// mutable fields live here; Status is a point-in-time copy of it.
type record struct {
	id     string
	config SpawnConfig

	mu       sync.Mutex
	state    State
	exitCode *int

	cancelled atomic.Bool

	backend  backend
	waitOnce sync.Once
	waitDone chan struct{}

	pumpsDone chan struct{}
}

func (r *record) snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{ID: r.id, State: r.state, ExitCode: r.exitCode}
}

// setState moves the record to state unless it is already terminal (I2).
// Returns the state that actually resulted.
func (r *record) setState(state State) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.terminal() {
		return r.state
	}
	r.state = state
	return r.state
}

// finish records a terminal state and exit code exactly once (I3), unless
// the record is already terminal (e.g. an explicit kill already won the
// race against the pump noticing exit). The bool reports whether this call
// actually performed the transition, so a caller that already published a
// status for the prior (terminal) state doesn't publish a second time.
func (r *record) finish(state State, exitCode int) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.terminal() {
		return r.state, false
	}
	r.state = state
	code := exitCode
	r.exitCode = &code
	return r.state, true
}

// backend is the uniform surface the Executor drives a PTY- or
// pipe-backed child through, abstracting C1 (PTY Driver) and C2 (Pipe
// Spawner) behind one interface.
type backend interface {
	writer() writeFn
	resize(cols, rows uint16) error
	kill() error
	wait() (exitCode int, err error)
	close() error
	// outputReaders returns one reader per output stream the Output Pump
	// should multiplex. A PTY backend returns a single merged stdout
	// reader (PTYs merge stdout/stderr at the kernel level, §4.3); a pipe
	// backend returns one reader per stream.
	outputReaders() []namedReader
}

type writeFn func([]byte) (int, error)

type namedReader struct {
	stream coreevents.OutputStream
	reader io.Reader
}

// ptyBackend adapts a PtyHandle (C1) to the backend interface.
type ptyBackend struct {
	handle PtyHandle
	cmd    *exec.Cmd
	reap   cmdWait
}

func (b *ptyBackend) writer() writeFn { return b.handle.Write }
func (b *ptyBackend) resize(cols, rows uint16) error {
	return b.handle.Resize(cols, rows)
}
func (b *ptyBackend) kill() error {
	if b.cmd.Process == nil {
		return nil
	}
	pid := b.cmd.Process.Pid
	terminateProcessGroup(pid)

	done := make(chan struct{})
	go func() {
		_ = b.reap.wait(b.cmd)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		killProcessGroup(pid)
	}
	return nil
}
func (b *ptyBackend) wait() (int, error) {
	err := b.reap.wait(b.cmd)
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return waitStatusExitCode(exitErr), nil
	}
	return 1, err
}
func (b *ptyBackend) close() error { return b.handle.Close() }
func (b *ptyBackend) outputReaders() []namedReader {
	return []namedReader{{stream: coreevents.StreamStdout, reader: b.handle}}
}

// pipeBackend adapts a pipeProcess (C2) to the backend interface.
type pipeBackend struct {
	proc *pipeProcess
}

func (b *pipeBackend) writer() writeFn               { return b.proc.Write }
func (b *pipeBackend) resize(cols, rows uint16) error { return b.proc.Resize(cols, rows) }
func (b *pipeBackend) kill() error                   { return b.proc.Kill() }
func (b *pipeBackend) wait() (int, error)            { return b.proc.Wait() }
func (b *pipeBackend) close() error                  { return b.proc.Close() }
func (b *pipeBackend) outputReaders() []namedReader {
	return []namedReader{
		{stream: coreevents.StreamStdout, reader: b.proc.stdout},
		{stream: coreevents.StreamStderr, reader: b.proc.stderr},
	}
}

// buildPTYCommand constructs the *exec.Cmd a PTY attaches its slave to,
// setting TERM to xterm-256color when the caller didn't specify one
// (§4.1's policy).
func buildPTYCommand(cfg SpawnConfig) *exec.Cmd {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	cmd.Env = buildEnv(cfg)
	hasTerm := false
	for _, e := range cmd.Env {
		if len(e) >= 5 && e[:5] == "TERM=" {
			hasTerm = true
			break
		}
	}
	if !hasTerm {
		cmd.Env = append(cmd.Env, "TERM=xterm-256color")
	}
	return cmd
}

// Executor is the Process Executor (C4), the aggregate root of the core.
// Grounded on the teacher's ProcessRunner/InteractiveRunner map-of-processes
// pattern, generalized into the single state machine spec.md §4.4
// describes (the teacher's two runners are special cases: pipe-only and
// PTY-only respectively).
type Executor struct {
	mu      sync.RWMutex
	records map[string]*record

	sinkFactory   func(id string) Sink
	publishStatus func(id string, state State, exitCode *int)
}

// NewExecutor creates an empty Executor. sinkFactory builds the Sink each
// spawned process's pump writes chunks to; pass nil to use NullSink for
// every process. publishStatus, if non-nil, is invoked on every state
// transition so a caller can wire it to an Event Broadcaster's
// ProcessStatus event (C6/C9); pass nil to skip status publication
// entirely.
func NewExecutor(sinkFactory func(id string) Sink, publishStatus func(id string, state State, exitCode *int)) *Executor {
	if sinkFactory == nil {
		sinkFactory = func(string) Sink { return NullSink{} }
	}
	if publishStatus == nil {
		publishStatus = func(string, State, *int) {}
	}
	return &Executor{
		records:       make(map[string]*record),
		sinkFactory:   sinkFactory,
		publishStatus: publishStatus,
	}
}

// Spawn creates a new process under id and starts its Output Pump(s). It
// returns AlreadyExists if id is already live (I1), and Validation before
// ever touching the OS if id or cfg.Command is empty (B1).
func (e *Executor) Spawn(ctx context.Context, id string, cfg SpawnConfig) (Status, error) {
	if id == "" {
		return Status{}, validationErr("process id must not be empty")
	}
	if cfg.Command == "" {
		return Status{}, validationErr("command must not be empty")
	}

	e.mu.Lock()
	if _, exists := e.records[id]; exists {
		e.mu.Unlock()
		return Status{}, alreadyExists(id)
	}
	rec := &record{
		id:        id,
		config:    cfg,
		state:     StateStarting,
		waitDone:  make(chan struct{}),
		pumpsDone: make(chan struct{}),
	}
	e.records[id] = rec
	e.mu.Unlock()

	back, err := e.startBackend(ctx, cfg)
	if err != nil {
		e.mu.Lock()
		delete(e.records, id)
		e.mu.Unlock()
		return Status{}, newErr(KindSpawn, id, err)
	}
	rec.backend = back

	rec.setState(StateRunning)
	e.publishStatus(id, StateRunning, nil)

	sink := e.sinkFactory(id)
	readers := back.outputReaders()
	var pumpWG sync.WaitGroup
	pumpWG.Add(len(readers))
	for _, nr := range readers {
		go func(nr namedReader) {
			defer pumpWG.Done()
			_ = runPump(nr.reader, id, nr.stream, sink, rec.cancelled.Load)
		}(nr)
	}

	go func() {
		pumpWG.Wait()
		close(rec.pumpsDone)
		e.finalize(rec, sink)
	}()

	return rec.snapshot(), nil
}

func (e *Executor) startBackend(ctx context.Context, cfg SpawnConfig) (backend, error) {
	if cfg.PTY {
		cols, rows := cfg.Cols, cfg.Rows
		if cols == 0 {
			cols = 80
		}
		if rows == 0 {
			rows = 24
		}
		cmd := buildPTYCommand(cfg)
		handle, err := startPTYWithSize(cmd, int(cols), int(rows))
		if err != nil {
			return nil, err
		}
		return &ptyBackend{handle: handle, cmd: cmd}, nil
	}

	proc, err := startPipeProcess(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &pipeBackend{proc: proc}, nil
}

// finalize runs once the process's pump(s) have all returned: it waits for
// the child's exit, applies the terminal state per I3/§4.4 ("pump task on
// exit"), publishes the resulting status unless a concurrent Kill already
// published one for this process, and closes sink exactly once (I5).
func (e *Executor) finalize(rec *record, sink Sink) {
	exitCode, _ := rec.backend.wait()
	var finalState State
	var transitioned bool
	if exitCode == 0 {
		finalState, transitioned = rec.finish(StateCompleted, exitCode)
	} else {
		finalState, transitioned = rec.finish(StateFailed, exitCode)
	}
	rec.waitOnce.Do(func() { close(rec.waitDone) })
	if transitioned {
		snap := rec.snapshot()
		e.publishStatus(rec.id, finalState, snap.ExitCode)
	}
	_ = sink.Close()
}

func (e *Executor) get(id string) (*record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[id]
	return rec, ok
}

// Write forwards bytes to the process's stdin/PTY master. Returns
// ProcessExited if the process has already reached a terminal state.
func (e *Executor) Write(id string, data []byte) error {
	rec, ok := e.get(id)
	if !ok {
		return notFound(id)
	}
	if rec.snapshot().State.terminal() {
		return processExited(id)
	}
	if _, err := rec.backend.writer()(data); err != nil {
		return newErr(KindWrite, id, err)
	}
	return nil
}

// Resize forwards a window-size change to the process's PTY. Pipe-backed
// processes always fail with Resize, matching §4.1's "fails with Resize or
// NotFound".
func (e *Executor) Resize(id string, cols, rows uint16) error {
	rec, ok := e.get(id)
	if !ok {
		return notFound(id)
	}
	if err := rec.backend.resize(cols, rows); err != nil {
		return newErr(KindResize, id, err)
	}
	return nil
}

// Kill sets the process's cancellation flag and transitions it to Killed,
// then requests OS-level termination. Idempotent on an already-terminal
// process (I2, R2): it returns nil without re-transitioning or killing
// again.
func (e *Executor) Kill(id string) error {
	rec, ok := e.get(id)
	if !ok {
		return notFound(id)
	}
	rec.cancelled.Store(true)

	already := rec.snapshot().State.terminal()
	rec.setState(StateKilled)
	if already {
		return nil
	}
	e.publishStatus(id, StateKilled, nil)
	if err := rec.backend.kill(); err != nil {
		return newErr(KindKill, id, err)
	}
	return nil
}

// Wait blocks until id's process has exited and been finalized, then
// returns its status snapshot; once that has happened it returns
// immediately. The snapshot carries the cached exit code, except when Kill
// or Close marked the process Killed first, in which case no exit code is
// recorded.
func (e *Executor) Wait(ctx context.Context, id string) (Status, error) {
	rec, ok := e.get(id)
	if !ok {
		return Status{}, notFound(id)
	}
	select {
	case <-rec.waitDone:
		return rec.snapshot(), nil
	case <-ctx.Done():
		return Status{}, newErr(KindIO, id, ctx.Err())
	}
}

// Exists reports whether id names a currently live process.
func (e *Executor) Exists(id string) bool {
	_, ok := e.get(id)
	return ok
}

// Status returns id's current status snapshot.
func (e *Executor) Status(id string) (Status, error) {
	rec, ok := e.get(id)
	if !ok {
		return Status{}, notFound(id)
	}
	return rec.snapshot(), nil
}

// Close marks id Killed if it isn't already terminal, always attempts an
// OS-level kill, removes its record, and releases its OS handles. Safe to
// call on an already-terminal or already removed process — this is how
// callers release resources (§4.4).
func (e *Executor) Close(id string) error {
	e.mu.Lock()
	rec, ok := e.records[id]
	if ok {
		delete(e.records, id)
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}

	rec.cancelled.Store(true)
	already := rec.snapshot().State.terminal()
	rec.setState(StateKilled)
	if !already {
		e.publishStatus(id, StateKilled, nil)
	}
	if err := rec.backend.kill(); err != nil {
		// Best-effort: a kill failure on close is ignored and never
		// prevents the handle drop below.
		_ = err
	}
	return rec.backend.close()
}

// KillAll kills every currently live process — the Server Host's shutdown
// step 4 (§4.11), "every live child is killed".
func (e *Executor) KillAll() {
	e.mu.RLock()
	ids := make([]string, 0, len(e.records))
	for id := range e.records {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		_ = e.Kill(id)
	}
}

// CloseAll closes every currently live process, waiting up to timeout for
// each one's pumps to finish before moving on — used at shutdown once
// KillAll has already requested termination.
func (e *Executor) CloseAll(timeout time.Duration) {
	e.mu.RLock()
	recs := make([]*record, 0, len(e.records))
	for _, rec := range e.records {
		recs = append(recs, rec)
	}
	e.mu.RUnlock()

	for _, rec := range recs {
		select {
		case <-rec.pumpsDone:
		case <-time.After(timeout):
		}
		_ = e.Close(rec.id)
	}
}

// Count returns the number of currently live processes.
func (e *Executor) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}
