package uci

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an engine session could not produce a result.
type FailureKind int

const (
	ProcessSpawnFailed FailureKind = iota + 1
	ProcessCrashed
	Timeout
	NoResultProduced
	MalformedOutput
)

var (
	ErrSpawnFailed     = errors.New("engine process could not be started")
	ErrProcessCrashed  = errors.New("engine process exited unexpectedly")
	ErrTimeout         = errors.New("engine did not answer before the deadline")
	ErrNoResult        = errors.New("engine produced no best move")
	ErrMalformedOutput = errors.New("engine output could not be decoded")

	ErrSessionClosed = errors.New("engine session closed")
	ErrSessionBusy   = errors.New("engine session not ready")
	ErrPoolClosed    = errors.New("engine pool closed")
)

func (k FailureKind) String() string {
	switch k {
	case ProcessSpawnFailed:
		return "process_spawn_failed"
	case ProcessCrashed:
		return "process_crashed"
	case Timeout:
		return "timeout"
	case NoResultProduced:
		return "no_result_produced"
	case MalformedOutput:
		return "malformed_output"
	default:
		return "unknown"
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case ProcessSpawnFailed:
		return ErrSpawnFailed
	case ProcessCrashed:
		return ErrProcessCrashed
	case Timeout:
		return ErrTimeout
	case NoResultProduced:
		return ErrNoResult
	case MalformedOutput:
		return ErrMalformedOutput
	default:
		return nil
	}
}

// EngineFailure is the typed outcome of a failed session. ExitCode is only
// meaningful for ProcessCrashed; -1 means the process was killed by a signal.
type EngineFailure struct {
	Kind     FailureKind
	ExitCode int
	Stderr   string
	Err      error
}

func (e *EngineFailure) Error() string {
	msg := e.Kind.sentinel()
	if msg == nil {
		msg = errors.New("engine failure")
	}
	switch {
	case e.Kind == ProcessCrashed && e.Err != nil:
		return fmt.Sprintf("%v (exit %d): %v", msg, e.ExitCode, e.Err)
	case e.Kind == ProcessCrashed:
		return fmt.Sprintf("%v (exit %d)", msg, e.ExitCode)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", msg, e.Err)
	default:
		return msg.Error()
	}
}

func (e *EngineFailure) Unwrap() error {
	return e.Err
}

// Is lets callers match a failure against the package sentinels with errors.Is.
func (e *EngineFailure) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newFailure(kind FailureKind, err error) *EngineFailure {
	return &EngineFailure{Kind: kind, Err: err}
}

// FailureKindOf extracts the failure kind from err, or 0 when err is not an
// engine failure.
func FailureKindOf(err error) FailureKind {
	var ef *EngineFailure
	if errors.As(err, &ef) {
		return ef.Kind
	}
	return 0
}
