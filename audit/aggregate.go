package audit

import (
	"sort"

	"github.com/emunet/ribscan/fleet"
	"github.com/emunet/ribscan/probe"
)

const (
	OUTCOME_HIJACKED = "hijacked"
	OUTCOME_CLEAN    = "clean"
	OUTCOME_FAILED   = "failed"
)

// Outcome maps a probe state to its audit classification. Anything
// that is not a definitive present/absent counts as failed.
func Outcome(state int) string {
	switch state {
	case probe.STATE_PRESENT:
		return OUTCOME_HIJACKED
	case probe.STATE_ABSENT:
		return OUTCOME_CLEAN
	default:
		return OUTCOME_FAILED
	}
}

// Aggregate computes the report from a completed result set. Pure:
// no I/O, inputs untouched, and the outcome is independent of input
// order. hijacked+clean+failed always equals the router total, and
// validators are counted once per distinct AS.
func Aggregate(prefix string, results []probe.Result, validators []fleet.Validator) *Report {
	r := &Report{
		Prefix:        prefix,
		TotalRouters:  len(results),
		ValidatorASNs: make([]uint32, 0, len(validators)),
		PerAS:         make([]ASReport, 0),
		Routers:       make([]RouterLine, 0, len(results)),
	}

	validatorAS := make(map[uint32]bool)
	for _, v := range validators {
		validatorAS[v.ASN] = true
	}
	for asn := range validatorAS {
		r.ValidatorASNs = append(r.ValidatorASNs, asn)
	}
	sort.Slice(r.ValidatorASNs, func(i, j int) bool { return r.ValidatorASNs[i] < r.ValidatorASNs[j] })
	r.RPKIDeployedCount = len(r.ValidatorASNs)

	type asBucket struct {
		routers  int
		outcomes map[string]bool
	}
	perAS := make(map[uint32]*asBucket)

	for _, res := range results {
		outcome := Outcome(res.State)
		switch outcome {
		case OUTCOME_HIJACKED:
			r.HijackedCount++
		case OUTCOME_CLEAN:
			r.CleanCount++
		case OUTCOME_FAILED:
			r.FailedCount++
		}

		bucket := perAS[res.Router.ASN]
		if bucket == nil {
			bucket = &asBucket{outcomes: make(map[string]bool)}
			perAS[res.Router.ASN] = bucket
		}
		bucket.routers++
		bucket.outcomes[outcome] = true

		r.Routers = append(r.Routers, RouterLine{
			Name:       res.Router.Name,
			ASN:        res.Router.ASN,
			Role:       fleet.RoleToName[res.Router.Role],
			Outcome:    outcome,
			Attempts:   res.Attempts,
			DurationMs: res.Duration.Milliseconds(),
			Evidence:   res.Evidence,
			LastErr:    res.LastErr,
		})
	}

	sort.Slice(r.Routers, func(i, j int) bool {
		if r.Routers[i].ASN != r.Routers[j].ASN {
			return r.Routers[i].ASN < r.Routers[j].ASN
		}
		return r.Routers[i].Name < r.Routers[j].Name
	})

	for asn, bucket := range perAS {
		outcomes := make([]string, 0, len(bucket.outcomes))
		for outcome := range bucket.outcomes {
			outcomes = append(outcomes, outcome)
		}
		sort.Strings(outcomes)

		r.PerAS = append(r.PerAS, ASReport{
			ASN:      asn,
			Routers:  bucket.routers,
			Outcomes: outcomes,
			RPKI:     validatorAS[asn],
		})
	}
	sort.Slice(r.PerAS, func(i, j int) bool { return r.PerAS[i].ASN < r.PerAS[j].ASN })

	return r
}
