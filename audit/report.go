// Package audit classifies probe results into the propagation report:
// who carries the hijacked prefix, who stayed clean, who could not be
// queried, and how that correlates with RPKI validator deployment.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// RouterLine is one router's final classification.
type RouterLine struct {
	Name       string `json:"name"`
	ASN        uint32 `json:"asn"`
	Role       string `json:"role"`
	Outcome    string `json:"outcome"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"durationMs"`
	Evidence   string `json:"evidence,omitempty"`
	LastErr    string `json:"lastError,omitempty"`
}

// ASReport is the per-AS view. Outcomes holds every distinct outcome
// observed across the AS's routers, sorted; differing outcomes are
// never collapsed into a single verdict.
type ASReport struct {
	ASN      uint32   `json:"asn"`
	Routers  int      `json:"routers"`
	Outcomes []string `json:"outcomes"`
	RPKI     bool     `json:"rpki"`
}

// VRPVerdict is the optional origin-validation annotation of the
// audited announcement against a VRP file.
type VRPVerdict struct {
	ASN      uint32   `json:"asn"`
	State    string   `json:"state"`
	Covering []string `json:"covering"`
}

// Report is the aggregate audit outcome. Every slice is sorted, so
// equal input sets produce deep-equal reports and byte-identical JSON
// regardless of probe completion order.
type Report struct {
	Prefix            string       `json:"prefix"`
	TotalRouters      int          `json:"totalRouters"`
	HijackedCount     int          `json:"hijackedCount"`
	CleanCount        int          `json:"cleanCount"`
	FailedCount       int          `json:"failedCount"`
	RPKIDeployedCount int          `json:"rpkiDeployedCount"`
	ValidatorASNs     []uint32     `json:"validatorAsns"`
	PerAS             []ASReport   `json:"perAs"`
	Routers           []RouterLine `json:"routers"`
	VRP               *VRPVerdict  `json:"vrp,omitempty"`
}

// Params records the knobs a run was performed with.
type Params struct {
	Prefix      string `json:"prefix"`
	Namespace   string `json:"namespace"`
	Command     string `json:"command"`
	Workers     int    `json:"workers"`
	MaxAttempts int    `json:"maxAttempts"`
	Timeout     string `json:"timeout"`
	Backoff     string `json:"backoff"`
}

// Envelope wraps a Report with the run metadata that is not part of
// the deterministic aggregate (identity, wall-clock times, warnings).
type Envelope struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Params     Params    `json:"params"`
	Warnings   []string  `json:"warnings"`
	Report     *Report   `json:"report"`
}

// Render writes the human-readable report. Output is byte-identical
// across calls for the same Report, so audit logs can be diffed.
func Render(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "audit of %s: %d routers, %d hijacked, %d clean, %d failed\n\n",
		r.Prefix, r.TotalRouters, r.HijackedCount, r.CleanCount, r.FailedCount)

	for _, line := range r.Routers {
		fmt.Fprintf(bw, "  AS%-6d %-28s %-9s attempts=%d", line.ASN, line.Name, line.Outcome, line.Attempts)
		if line.Evidence != "" {
			fmt.Fprintf(bw, "  %s", line.Evidence)
		}
		if line.LastErr != "" {
			fmt.Fprintf(bw, "  last error: %s", line.LastErr)
		}
		fmt.Fprintf(bw, "\n")
	}

	fmt.Fprintf(bw, "\nper-AS breakdown:\n")
	for _, as := range r.PerAS {
		rpki := "no"
		if as.RPKI {
			rpki = "yes"
		}
		fmt.Fprintf(bw, "  AS%-6d %-24s rpki deployed: %s\n", as.ASN, strings.Join(as.Outcomes, ","), rpki)
	}

	fmt.Fprintf(bw, "\nrouters probed   %d\n", r.TotalRouters)
	fmt.Fprintf(bw, "hijacked         %d\n", r.HijackedCount)
	fmt.Fprintf(bw, "clean            %d\n", r.CleanCount)
	fmt.Fprintf(bw, "failed           %d\n", r.FailedCount)
	fmt.Fprintf(bw, "rpki validators  %d%s\n", r.RPKIDeployedCount, renderASNs(r.ValidatorASNs))

	if r.VRP != nil {
		fmt.Fprintf(bw, "\nvrp origin check:\n")
		fmt.Fprintf(bw, "  %s origin AS%d: %s\n", r.Prefix, r.VRP.ASN, r.VRP.State)
		if len(r.VRP.Covering) > 0 {
			fmt.Fprintf(bw, "  covering vrps:\n")
			for _, vrp := range r.VRP.Covering {
				fmt.Fprintf(bw, "    %s\n", vrp)
			}
		}
	}

	return bw.Flush()
}

func renderASNs(asns []uint32) string {
	if len(asns) == 0 {
		return ""
	}
	names := make([]string, 0, len(asns))
	for _, asn := range asns {
		names = append(names, fmt.Sprintf("AS%d", asn))
	}
	return fmt.Sprintf(" (%s)", strings.Join(names, ", "))
}

// WriteJSON emits the machine-parseable form.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
