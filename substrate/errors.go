package substrate

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/getsentry/sentry-go"
)

const (
	ERROR_EXEC_UNKNOWN = iota
	ERROR_EXEC_LIST
	ERROR_EXEC_RUN
	ERROR_EXEC_TIMEOUT
)

type stack []uintptr
type Frame uintptr

var (
	ErrorTypeToName = map[int]string{
		ERROR_EXEC_UNKNOWN: "unknown",
		ERROR_EXEC_LIST:    "list",
		ERROR_EXEC_RUN:     "run",
		ERROR_EXEC_TIMEOUT: "timeout",
	}
)

type ExecError struct {
	EType int

	InnerErr error
	Message  string

	Instance string
	Args     []string
	ExitCode int
	Stderr   string

	Stack *stack
}

func callers() *stack {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	var st stack = pcs[0:n]
	return &st
}

// This function returns the Stacktrace of the error.
// The naming scheme corresponds to what Sentry fetches
// https://github.com/getsentry/sentry-go/blob/master/stacktrace.go#L49
func StackTrace(s *stack) []Frame {
	f := make([]Frame, len(*s))
	for i := 0; i < len(f); i++ {
		f[i] = Frame((*s)[i])
	}
	return f
}

func (e *ExecError) StackTrace() []Frame {
	return StackTrace(e.Stack)
}

func (e *ExecError) Error() string {
	instinfo := ""
	if e.Instance != "" {
		instinfo = fmt.Sprintf(" in %s (%s)", e.Instance, strings.Join(e.Args, " "))
	}

	var err string
	if e.InnerErr != nil {
		err = fmt.Sprintf(": %s", e.InnerErr.Error())
	}

	var stderr string
	if e.Stderr != "" {
		stderr = fmt.Sprintf(": %s", strings.TrimSpace(e.Stderr))
	}

	return fmt.Sprintf("%s%s%s%s", e.Message, instinfo, err, stderr)
}

func (e *ExecError) SetSentryScope(scope *sentry.Scope) {
	scope.SetTag("Type", ErrorTypeToName[e.EType])
	if e.Instance != "" {
		scope.SetTag("Substrate.Instance", e.Instance)
	}
	if len(e.Args) > 0 {
		scope.SetExtra("Substrate.Args", strings.Join(e.Args, " "))
	}
	if e.ExitCode != 0 {
		scope.SetExtra("Substrate.ExitCode", e.ExitCode)
	}
	if e.Stderr != "" {
		scope.SetExtra("Substrate.Stderr", e.Stderr)
	}
}

// Unwrap exposes the inner error so callers can test for
// context.DeadlineExceeded with errors.Is.
func (e *ExecError) Unwrap() error {
	return e.InnerErr
}

func (e *ExecError) IsTimeout() bool {
	return e.EType == ERROR_EXEC_TIMEOUT
}

func NewListError(err error, ctxErr error, stderr string) *ExecError {
	if ctxErr != nil {
		err = ctxErr
	}
	return &ExecError{
		EType:    ERROR_EXEC_LIST,
		InnerErr: err,
		Message:  "error listing instances",
		Stderr:   stderr,
		Stack:    callers(),
	}
}

func NewExecError(instance string, args []string, err error, ctxErr error, exitCode int, stderr string) *ExecError {
	etype := ERROR_EXEC_RUN
	if errors.Is(ctxErr, context.DeadlineExceeded) || errors.Is(ctxErr, context.Canceled) {
		etype = ERROR_EXEC_TIMEOUT
		err = ctxErr
	}
	return &ExecError{
		EType:    etype,
		InnerErr: err,
		Message:  "error running command",
		Instance: instance,
		Args:     args,
		ExitCode: exitCode,
		Stderr:   stderr,
		Stack:    callers(),
	}
}
