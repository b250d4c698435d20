// Package vrpcheck annotates the audited announcement with its
// RFC 6811 origin-validation state against a VRP file (the JSON
// produced by RPKI validators). Pure data correlation: no certificate
// is parsed and no signature checked here.
package vrpcheck

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"

	"github.com/cloudflare/gortr/prefixfile"
	"github.com/kentik/patricia"
	"github.com/kentik/patricia/int64_tree"
)

const (
	STATE_UNKNOWN = iota
	STATE_INVALID
	STATE_VALID
)

var (
	StateToName = map[int]string{
		STATE_UNKNOWN: "NotFound",
		STATE_INVALID: "Invalid",
		STATE_VALID:   "Valid",
	}
)

// Load reads a GoRTR-compatible VRP file.
func Load(path string) (*prefixfile.ROAList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var roalist prefixfile.ROAList
	if err := json.NewDecoder(f).Decode(&roalist); err != nil {
		return nil, fmt.Errorf("unable to decode VRP file %q: %v", path, err)
	}
	return &roalist, nil
}

// Index answers covering-VRP lookups for a set of VRPs. Entries whose
// prefix does not parse are skipped.
type Index struct {
	vrps []prefixfile.ROAJson
	t4   *int64_tree.TreeV4
	t6   *int64_tree.TreeV6
}

func NewIndex(vrps []prefixfile.ROAJson) *Index {
	t4 := int64_tree.NewTreeV4()
	t6 := int64_tree.NewTreeV6()

	for i, vrp := range vrps {
		prefix := vrp.GetPrefix()
		if prefix == nil {
			continue
		}
		ip4, ip6, _ := patricia.ParseFromIPAddr(prefix)
		if ip4 != nil {
			t4.Add(*ip4, int64(i), nil)
		} else if ip6 != nil {
			t6.Add(*ip6, int64(i), nil)
		}
	}

	return &Index{vrps: vrps, t4: t4, t6: t6}
}

// Verdict is the outcome of one origin check.
type Verdict struct {
	State    int
	Covering []prefixfile.ROAJson
}

// Descriptions renders the covering VRPs, sorted for stable reports.
func (v *Verdict) Descriptions() []string {
	descs := make([]string, 0, len(v.Covering))
	for _, vrp := range v.Covering {
		descs = append(descs, Describe(vrp))
	}
	sort.Strings(descs)
	return descs
}

// Describe renders one VRP in the usual prefix-maxlen origin notation.
func Describe(vrp prefixfile.ROAJson) string {
	desc := fmt.Sprintf("%s-%d AS%d", vrp.Prefix, vrp.GetMaxLen(), vrp.GetASN())
	if vrp.TA != "" {
		desc = fmt.Sprintf("%s (ta: %s)", desc, vrp.TA)
	}
	return desc
}

type originCheck struct {
	idx      *Index
	asn      uint32
	masklen  int
	state    int
	covering []prefixfile.ROAJson
}

// Specs https://tools.ietf.org/html/rfc6811
func (c *originCheck) filter(payload int64) bool {
	vrp := c.idx.vrps[payload]
	if c.state != STATE_VALID {
		if c.asn == vrp.GetASN() && c.masklen <= vrp.GetMaxLen() {
			c.state = STATE_VALID
		} else {
			c.state = STATE_INVALID
		}
	}
	c.covering = append(c.covering, vrp)
	return true
}

// Validate checks an announcement (prefix originated by asn) against
// the indexed VRPs. No covering VRP means STATE_UNKNOWN; any covering
// VRP with matching origin and sufficient maxLength means STATE_VALID;
// covering VRPs without such a match mean STATE_INVALID.
func (idx *Index) Validate(prefix string, asn uint32) (*Verdict, error) {
	_, ipnet, err := net.ParseCIDR(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid prefix %q: %v", prefix, err)
	}
	masklen, _ := ipnet.Mask.Size()

	ip4, ip6, err := patricia.ParseFromIPAddr(ipnet)
	if err != nil {
		return nil, err
	}

	check := &originCheck{
		idx:      idx,
		asn:      asn,
		masklen:  masklen,
		state:    STATE_UNKNOWN,
		covering: make([]prefixfile.ROAJson, 0),
	}
	if ip4 != nil {
		idx.t4.FindTagsWithFilter(*ip4, check.filter)
	} else if ip6 != nil {
		idx.t6.FindTagsWithFilter(*ip6, check.filter)
	} else {
		return nil, errors.New("unknown IP type")
	}

	return &Verdict{State: check.state, Covering: check.covering}, nil
}
