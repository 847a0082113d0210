// Package coreevents defines the uniform event taxonomy shared by every
// event producer and consumer in agentcore: the Process Executor's output
// and status streams, and any external entity service reporting a data
// change. No component in this package owns mutable state — it is pure
// vocabulary, the way the teacher's internal/events/types.go is a flat set
// of constants and marshaling helpers rather than a stateful service.
package coreevents

import (
	"fmt"
	"time"
)

// Kind discriminates the Event tagged union.
type Kind string

const (
	KindProcessOutput Kind = "process_output"
	KindProcessStatus Kind = "process_status"
	KindDataChanged   Kind = "data_changed"
)

// OutputStream names which file descriptor a chunk of process output came
// from. PTY-backed processes only ever report Stdout, since a PTY merges
// both streams at the kernel level (see the process package's PTY
// backend).
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// ProcessState is the wire representation of a process's lifecycle state.
// It intentionally duplicates (rather than imports) the process package's
// internal state machine type: this package must stay free of a dependency
// on process so that non-process event producers (entity services
// reporting DataChanged) never need to pull in PTY/exec machinery.
type ProcessState string

const (
	StateStarting  ProcessState = "starting"
	StateRunning   ProcessState = "running"
	StateCompleted ProcessState = "completed"
	StateFailed    ProcessState = "failed"
	StateKilled    ProcessState = "killed"
)

// DataChangeAction is the verb of a DataChanged event.
type DataChangeAction string

const (
	ActionCreated DataChangeAction = "created"
	ActionUpdated DataChangeAction = "updated"
	ActionDeleted DataChangeAction = "deleted"
)

// ProcessOutputPayload is the payload of a ProcessOutput event.
type ProcessOutputPayload struct {
	ProcessID string       `json:"processId"`
	Stream    OutputStream `json:"outputType"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
}

// ProcessStatusPayload is the payload of a ProcessStatus event.
type ProcessStatusPayload struct {
	ProcessID string       `json:"processId"`
	Status    ProcessState `json:"status"`
	ExitCode  *int         `json:"exitCode,omitempty"`
}

// DataChangedPayload is the payload of a DataChanged event.
type DataChangedPayload struct {
	Entity    string           `json:"entity"`
	Action    DataChangeAction `json:"action"`
	ID        string           `json:"id"`
	Data      any              `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Event is the tagged union every producer constructs and every consumer
// (WebSocket bridge, embedder bus) serializes. Exactly one of the payload
// fields is populated, matching Kind.
type Event struct {
	Kind          Kind
	ProcessOutput *ProcessOutputPayload
	ProcessStatus *ProcessStatusPayload
	DataChanged   *DataChangedPayload
}

// NewProcessOutput builds a ProcessOutput event.
func NewProcessOutput(processID string, stream OutputStream, content string, ts time.Time) Event {
	return Event{
		Kind: KindProcessOutput,
		ProcessOutput: &ProcessOutputPayload{
			ProcessID: processID,
			Stream:    stream,
			Content:   content,
			Timestamp: ts,
		},
	}
}

// NewProcessStatus builds a ProcessStatus event.
func NewProcessStatus(processID string, status ProcessState, exitCode *int) Event {
	return Event{
		Kind: KindProcessStatus,
		ProcessStatus: &ProcessStatusPayload{
			ProcessID: processID,
			Status:    status,
			ExitCode:  exitCode,
		},
	}
}

// NewDataChanged builds a DataChanged event.
func NewDataChanged(entity string, action DataChangeAction, id string, data any, ts time.Time) Event {
	return Event{
		Kind: KindDataChanged,
		DataChanged: &DataChangedPayload{
			Entity:    entity,
			Action:    action,
			ID:        id,
			Data:      data,
			Timestamp: ts,
		},
	}
}

// DataChangedChannel is the single fixed channel name every DataChanged
// event is published on (I8).
const DataChangedChannel = "data-changed"

// Channel derives the channel name an event is published on. This is the
// one place new event kinds register their channel-derivation rule (§4.6
// of the design: "New event kinds require updating the channel-derivation
// function in one place").
func Channel(e Event) string {
	switch e.Kind {
	case KindProcessOutput:
		return fmt.Sprintf("process-output-%s", e.ProcessOutput.ProcessID)
	case KindProcessStatus:
		return fmt.Sprintf("process-status-%s", e.ProcessStatus.ProcessID)
	case KindDataChanged:
		return DataChangedChannel
	default:
		return ""
	}
}

// ProcessOutputChannel derives the output channel name for a process id
// without requiring a constructed Event, for subscribers that know the id
// up front (I8: per-process channel names are derived purely from the id).
func ProcessOutputChannel(processID string) string {
	return fmt.Sprintf("process-output-%s", processID)
}

// ProcessStatusChannel derives the status channel name for a process id.
func ProcessStatusChannel(processID string) string {
	return fmt.Sprintf("process-status-%s", processID)
}

// Payload returns the event's single populated payload as an any, suitable
// for JSON marshaling into the wire envelope's "payload" field.
func (e Event) Payload() any {
	switch e.Kind {
	case KindProcessOutput:
		return e.ProcessOutput
	case KindProcessStatus:
		return e.ProcessStatus
	case KindDataChanged:
		return e.DataChanged
	default:
		return nil
	}
}
