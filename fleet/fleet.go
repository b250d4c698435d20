// Package fleet turns the host's running instances into an audit
// inventory: which containers are BGP routers to probe, which host
// RPKI validators, parsed from the emulator's naming convention.
package fleet

const (
	ROLE_UNKNOWN = iota
	ROLE_ROUTER
	ROLE_ROUTE_SERVER
	ROLE_ROUTE_WRITER
	ROLE_HOST
)

var (
	RoleToName = map[int]string{
		ROLE_UNKNOWN:      "unknown",
		ROLE_ROUTER:       "router",
		ROLE_ROUTE_SERVER: "route-server",
		ROLE_ROUTE_WRITER: "route-writer",
		ROLE_HOST:         "host",
	}
	NameToRole = map[string]int{
		"unknown":      ROLE_UNKNOWN,
		"router":       ROLE_ROUTER,
		"route-server": ROLE_ROUTE_SERVER,
		"route-writer": ROLE_ROUTE_WRITER,
		"host":         ROLE_HOST,
	}
)

// Router is one BGP speaker to probe. Immutable once discovered.
type Router struct {
	Handle string
	Name   string
	ASN    uint32
	Role   int
}

// Validator is one RPKI validator deployment, attributed to an AS.
type Validator struct {
	Handle string
	Name   string
	ASN    uint32
}
