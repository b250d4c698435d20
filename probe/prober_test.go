package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emunet/ribscan/fleet"
	"github.com/emunet/ribscan/substrate"
)

const ribDump = `BIRD 2.0.7 ready.
Table master4:
10.0.0.0/24          unicast [ebgp1 2024-05-02] * (100) [AS199i]
	via 10.150.0.2 on eth0
110.0.0.0/24         unicast [ebgp1 2024-05-02] * (100) [AS300i]
	via 10.150.0.2 on eth0
`

func TestNewMatcher(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		wantFail bool
		expected string
	}{
		{
			name:     "Already canonical",
			prefix:   "10.0.0.0/24",
			expected: "10.0.0.0/24",
		},
		{
			name:     "Host bits stripped",
			prefix:   "10.0.0.64/24",
			expected: "10.0.0.0/24",
		},
		{
			name:     "IPv6",
			prefix:   "2001:db8::/32",
			expected: "2001:db8::/32",
		},
		{
			name:     "Not a CIDR",
			prefix:   "10.0.0.0",
			wantFail: true,
		},
		{
			name:     "Garbage",
			prefix:   "hijacked",
			wantFail: true,
		},
	}

	for _, test := range tests {
		m, err := NewMatcher(test.prefix)
		if test.wantFail && err == nil {
			t.Errorf("unexpected success for %q", test.name)
			continue
		}

		if !test.wantFail && err != nil {
			t.Errorf("unexpected error for %q: %v", test.name, err)
			continue
		}

		if !test.wantFail {
			assert.Equal(t, test.expected, m.Prefix(), test.name)
		}
	}
}

func TestMatchLine(t *testing.T) {
	m, err := NewMatcher("10.0.0.0/24")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		line     string
		expected bool
	}{
		{
			name:     "Exact entry with route detail",
			line:     "10.0.0.0/24          unicast [ebgp1 2024-05-02] * (100) [AS199i]",
			expected: true,
		},
		{
			name:     "Exact entry alone on line",
			line:     "10.0.0.0/24",
			expected: true,
		},
		{
			name:     "Tab after prefix",
			line:     "10.0.0.0/24\tunicast",
			expected: true,
		},
		{
			name:     "Longer prefix string",
			line:     "110.0.0.0/24         unicast [ebgp1 2024-05-02] * (100) [AS300i]",
			expected: false,
		},
		{
			name:     "Suffix glued to prefix",
			line:     "10.0.0.0/24foo",
			expected: false,
		},
		{
			name:     "More specific prefix",
			line:     "10.0.0.0/25          unicast",
			expected: false,
		},
		{
			name:     "Prefix mid-line",
			line:     "	via 10.0.0.0/24 on eth0",
			expected: false,
		},
		{
			name:     "Empty line",
			line:     "",
			expected: false,
		},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, m.MatchLine(test.line), test.name)
	}
}

func TestMatcherScan(t *testing.T) {
	m, err := NewMatcher("10.0.0.0/24")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line, found := m.Scan([]byte(ribDump))
	assert.True(t, found)
	assert.Equal(t, "10.0.0.0/24          unicast [ebgp1 2024-05-02] * (100) [AS199i]", line)

	other, err := NewMatcher("10.99.0.0/16")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, found = other.Scan([]byte(ribDump))
	assert.False(t, found)
}

type execSubstrate struct {
	out     []byte
	err     error
	gotID   string
	gotArgv []string
}

func (f *execSubstrate) List(ctx context.Context) ([]substrate.Instance, error) {
	return nil, nil
}

func (f *execSubstrate) Exec(ctx context.Context, id string, argv []string) ([]byte, error) {
	f.gotID = id
	f.gotArgv = argv
	return f.out, f.err
}

func TestRIBProber(t *testing.T) {
	router := fleet.Router{Handle: "c1", Name: "emu-150-router-r0", ASN: 150, Role: fleet.ROLE_ROUTER}
	target, err := NewMatcher("10.0.0.0/24")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		out      []byte
		err      error
		expected int
		evidence bool
	}{
		{
			name:     "Prefix present",
			out:      []byte(ribDump),
			expected: STATE_PRESENT,
			evidence: true,
		},
		{
			name:     "Prefix absent",
			out:      []byte("BIRD 2.0.7 ready.\nTable master4:\n192.168.0.0/16 unicast\n"),
			expected: STATE_ABSENT,
		},
		{
			name:     "Query failed",
			out:      nil,
			err:      substrate.NewExecError("c1", DefaultCommand, context.DeadlineExceeded, context.DeadlineExceeded, -1, ""),
			expected: STATE_INDETERMINATE,
		},
		{
			name:     "Empty response",
			out:      []byte("  \n"),
			expected: STATE_INDETERMINATE,
		},
	}

	for _, test := range tests {
		sub := &execSubstrate{out: test.out, err: test.err}
		prober := &RIBProber{Sub: sub}

		res := prober.Probe(context.Background(), router, target)
		assert.Equal(t, test.expected, res.State, test.name)
		assert.Equal(t, router, res.Router, test.name)
		assert.Equal(t, "c1", sub.gotID, test.name)
		assert.Equal(t, DefaultCommand, sub.gotArgv, test.name)

		if test.evidence {
			assert.NotEmpty(t, res.Evidence, test.name)
		} else {
			assert.Empty(t, res.Evidence, test.name)
		}
		if test.expected == STATE_INDETERMINATE {
			assert.NotEmpty(t, res.LastErr, test.name)
		}
	}
}

func TestRIBProberCustomCommand(t *testing.T) {
	sub := &execSubstrate{out: []byte(ribDump)}
	prober := &RIBProber{Sub: sub, Command: []string{"vtysh", "-c", "show ip bgp"}}
	target, err := NewMatcher("10.0.0.0/24")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := prober.Probe(context.Background(), fleet.Router{Handle: "c9"}, target)
	assert.Equal(t, STATE_PRESENT, res.State)
	assert.Equal(t, []string{"vtysh", "-c", "show ip bgp"}, sub.gotArgv)
}
