package fleet

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Convention describes how the emulator names its containers:
// <namespace><delim><asn><delim><role-tag><delim><name>.
// Role tags map to canonical role names (see NameToRole); hosts whose
// trailing name field contains ValidatorMarker run an RPKI validator.
type Convention struct {
	Namespace       string            `yaml:"namespace"`
	Delimiter       string            `yaml:"delimiter"`
	Roles           map[string]string `yaml:"roles"`
	ValidatorMarker string            `yaml:"validator_marker"`
}

func DefaultConvention() *Convention {
	return &Convention{
		Namespace: "emu",
		Delimiter: "-",
		Roles: map[string]string{
			"router": "router",
			"rs":     "route-server",
			"rw":     "route-writer",
			"host":   "host",
		},
		ValidatorMarker: "rpki",
	}
}

// LoadConvention reads a convention from a YAML file. Omitted fields
// keep their defaults.
func LoadConvention(path string) (*Convention, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var conv Convention
	if err := yaml.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("unable to decode convention %q: %v", path, err)
	}

	def := DefaultConvention()
	if conv.Namespace == "" {
		conv.Namespace = def.Namespace
	}
	if conv.Delimiter == "" {
		conv.Delimiter = def.Delimiter
	}
	if len(conv.Roles) == 0 {
		conv.Roles = def.Roles
	}
	if conv.ValidatorMarker == "" {
		conv.ValidatorMarker = def.ValidatorMarker
	}

	return &conv, nil
}

// Identity is a container name parsed against the convention.
type Identity struct {
	ASN  uint32
	Role int
	Base string
}

// Matches reports whether name belongs to the fleet namespace. Names
// outside it are other workloads on the host, not parse failures.
func (c *Convention) Matches(name string) bool {
	return strings.HasPrefix(name, c.Namespace+c.Delimiter)
}

// Parse splits a fleet name into its identity. The trailing name field
// may itself contain the delimiter.
func (c *Convention) Parse(name string) (*Identity, error) {
	if !c.Matches(name) {
		return nil, fmt.Errorf("%q is outside namespace %q", name, c.Namespace)
	}

	fields := strings.SplitN(name, c.Delimiter, 4)
	if len(fields) < 4 {
		return nil, fmt.Errorf("%q has %d fields, expected 4", name, len(fields))
	}

	asn, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%q has a non-numeric AS field %q", name, fields[1])
	}

	tag := fields[2]
	if tag == "" {
		return nil, fmt.Errorf("%q has an empty role field", name)
	}
	roleName, ok := c.Roles[tag]
	if !ok {
		return nil, fmt.Errorf("%q has an unknown role tag %q", name, tag)
	}
	role, ok := NameToRole[roleName]
	if !ok {
		return nil, fmt.Errorf("role tag %q maps to unknown role %q", tag, roleName)
	}

	if fields[3] == "" {
		return nil, fmt.Errorf("%q has an empty name field", name)
	}

	return &Identity{
		ASN:  uint32(asn),
		Role: role,
		Base: fields[3],
	}, nil
}

// IsValidator reports whether a host's name field marks an RPKI
// validator deployment.
func (c *Convention) IsValidator(base string) bool {
	return strings.Contains(base, c.ValidatorMarker)
}
