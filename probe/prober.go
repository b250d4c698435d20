// Package probe queries router RIBs for a target prefix and drives
// those queries across the fleet with bounded parallelism, per-attempt
// timeouts and retries.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emunet/ribscan/fleet"
	"github.com/emunet/ribscan/substrate"
)

type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

const (
	STATE_INDETERMINATE = iota
	STATE_ABSENT
	STATE_PRESENT
)

var (
	StateToName = map[int]string{
		STATE_INDETERMINATE: "indeterminate",
		STATE_ABSENT:        "absent",
		STATE_PRESENT:       "present",
	}

	DefaultCommand = []string{"birdc", "show", "route"}
)

// Result is the final outcome of probing one router for one prefix.
// Exactly one Result exists per router per run. STATE_INDETERMINATE
// means the query itself failed after the full retry budget.
type Result struct {
	Router   fleet.Router
	State    int
	Evidence string
	Attempts int
	Duration time.Duration
	LastErr  string
}

// Matcher is a compiled target prefix. A RIB dump line matches iff it
// begins with the canonical prefix followed by whitespace or line end,
// so 10.0.0.0/24 matches neither 110.0.0.0/24 nor 10.0.0.0/25 nor a
// line where it appears mid-text.
type Matcher struct {
	prefix string
}

func NewMatcher(prefix string) (*Matcher, error) {
	_, ipnet, err := net.ParseCIDR(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid prefix %q: %v", prefix, err)
	}
	return &Matcher{prefix: ipnet.String()}, nil
}

// Prefix returns the canonical form of the target prefix.
func (m *Matcher) Prefix() string {
	return m.prefix
}

func (m *Matcher) MatchLine(line string) bool {
	if !strings.HasPrefix(line, m.prefix) {
		return false
	}
	rest := line[len(m.prefix):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// Scan returns the first matching line of a RIB dump.
func (m *Matcher) Scan(output []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := scanner.Text(); m.MatchLine(line) {
			return line, true
		}
	}
	return "", false
}

// Prober runs a single query attempt against one router. The outcome
// is data, never a panic or a crossing error: a failed query is a
// Result in STATE_INDETERMINATE with LastErr set.
type Prober interface {
	Probe(ctx context.Context, router fleet.Router, target *Matcher) Result
}

// RIBProber asks a router to dump its RIB through the substrate and
// scans the dump for the target. Read-only; the one blocking I/O point
// of the engine, bounded by the caller's context.
type RIBProber struct {
	Sub     substrate.Substrate
	Command []string
	Log     Logger
}

func (p *RIBProber) Probe(ctx context.Context, router fleet.Router, target *Matcher) Result {
	command := p.Command
	if len(command) == 0 {
		command = DefaultCommand
	}

	res := Result{Router: router, State: STATE_INDETERMINATE}

	start := time.Now()
	out, err := p.Sub.Exec(ctx, router.Handle, command)
	res.Duration = time.Since(start)

	if err != nil {
		res.LastErr = err.Error()
		return res
	}
	if len(bytes.TrimSpace(out)) == 0 {
		res.LastErr = "empty response to RIB query"
		return res
	}

	if line, found := target.Scan(out); found {
		res.State = STATE_PRESENT
		res.Evidence = line
	} else {
		res.State = STATE_ABSENT
	}

	if p.Log != nil {
		p.Log.Debugf("probed %s (AS%d): %s", router.Name, router.ASN, StateToName[res.State])
	}
	return res
}
