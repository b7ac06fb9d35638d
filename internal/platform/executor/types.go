package executor

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrBackendUnavailable = errors.New("execution backend unavailable")
	ErrBackendTimeout     = errors.New("execution backend timed out")
	ErrBackendProtocol    = errors.New("execution backend protocol error")
	ErrInvalidRequest     = errors.New("invalid execution request")
)

// Judge0 status ids.
const (
	statusInQueue           = 1
	statusProcessing        = 2
	statusTimeLimitExceeded = 5
	statusCompilationError  = 6
	statusRuntimeErrorFirst = 7 // SIGSEGV
	statusRuntimeErrorLast  = 12
	statusInternalError     = 13
	statusExecFormatError   = 14
)

type Request struct {
	SourceCode    string
	LanguageID    int
	Stdin         string
	TimeLimit     time.Duration // zero means the client default
	MemoryLimitKb int
}

type Result struct {
	Stdout         string
	Stderr         string
	CompileOutput  string
	Message        string
	ExitCode       *int
	ExitSignal     *int
	StatusID       int
	TimedOut       bool // backend killed the program at its time limit
	RuntimeFailure bool // backend reported a runtime error status
	TimeMs         *int
	MemoryKb       *int
}

// Abnormal reports whether the program terminated abnormally. A time-limit
// kill is reported through TimedOut instead.
func (r *Result) Abnormal() bool {
	if r.TimedOut {
		return false
	}
	if r.RuntimeFailure {
		return true
	}
	if r.ExitSignal != nil && *r.ExitSignal != 0 {
		return true
	}
	return r.ExitCode != nil && *r.ExitCode != 0
}

// ExecutionError is the terminal error after retries are exhausted.
// errors.Is matches both Kind and the last attempt's error.
type ExecutionError struct {
	Kind     error
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%v after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, ErrBackendTimeout):
		return ErrBackendTimeout
	case errors.Is(err, ErrBackendUnavailable):
		return ErrBackendUnavailable
	case errors.Is(err, ErrInvalidRequest):
		return ErrInvalidRequest
	default:
		return ErrBackendProtocol
	}
}

func kindLabel(kind error) string {
	switch kind {
	case ErrBackendTimeout:
		return "timeout"
	case ErrBackendUnavailable:
		return "unavailable"
	case ErrInvalidRequest:
		return "invalid_request"
	default:
		return "protocol"
	}
}
