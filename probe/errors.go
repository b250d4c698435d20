package probe

import (
	"fmt"
	"runtime"

	"github.com/getsentry/sentry-go"

	"github.com/emunet/ribscan/fleet"
)

const (
	ERROR_PROBE_UNKNOWN = iota
	ERROR_PROBE_EXHAUSTED
)

type stack []uintptr
type Frame uintptr

var (
	ErrorTypeToName = map[int]string{
		ERROR_PROBE_UNKNOWN:   "unknown",
		ERROR_PROBE_EXHAUSTED: "exhausted",
	}
)

// ProbeError describes a router whose probe settled as indeterminate.
// It exists for reporting paths (Sentry scope tags); inside the engine
// the same information travels as Result data.
type ProbeError struct {
	EType int

	Message string
	LastErr string

	Router   fleet.Router
	Attempts int

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

func (e *ProbeError) StackTrace() []Frame {
	return StackTrace(e.Stack)
}

func (e *ProbeError) Error() string {
	var last string
	if e.LastErr != "" {
		last = fmt.Sprintf(": %s", e.LastErr)
	}
	return fmt.Sprintf("%s for %s (AS%d) after %d attempts%s", e.Message, e.Router.Name, e.Router.ASN, e.Attempts, last)
}

func (e *ProbeError) SetSentryScope(scope *sentry.Scope) {
	scope.SetTag("Type", ErrorTypeToName[e.EType])
	scope.SetTag("Router", e.Router.Name)
	scope.SetTag("Router.AS", fmt.Sprintf("%d", e.Router.ASN))
	scope.SetExtra("Attempts", e.Attempts)
	if e.LastErr != "" {
		scope.SetExtra("LastError", e.LastErr)
	}
}

func NewProbeErrorExhausted(res Result) *ProbeError {
	return &ProbeError{
		EType:    ERROR_PROBE_EXHAUSTED,
		Message:  "probe retry budget exhausted",
		LastErr:  res.LastErr,
		Router:   res.Router,
		Attempts: res.Attempts,
		Stack:    callers(),
	}
}
