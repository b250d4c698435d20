package fleet

import (
	"context"

	"github.com/emunet/ribscan/substrate"
)

// Warning records one in-namespace instance whose name could not be
// parsed. The instance is excluded from the inventory; the run goes on.
type Warning struct {
	Name   string
	Reason string
}

// Inventory is the fleet snapshot one audit run works from. Slice
// order follows the substrate's own listing and is not stable across
// runs; downstream code relies on membership only.
type Inventory struct {
	Routers    []Router
	Validators []Validator
	Warnings   []Warning
}

// Discover enumerates running instances and sorts them into probe
// targets and validator deployments. Route writers originate the
// hijack themselves and are skipped. Only a failed substrate listing
// is fatal; per-instance problems become Warnings.
func Discover(ctx context.Context, sub substrate.Substrate, conv *Convention) (*Inventory, error) {
	if conv == nil {
		conv = DefaultConvention()
	}

	instances, err := sub.List(ctx)
	if err != nil {
		return nil, err
	}

	inv := &Inventory{
		Routers:    make([]Router, 0),
		Validators: make([]Validator, 0),
		Warnings:   make([]Warning, 0),
	}
	for _, inst := range instances {
		if !conv.Matches(inst.Name) {
			continue
		}

		id, err := conv.Parse(inst.Name)
		if err != nil {
			inv.Warnings = append(inv.Warnings, Warning{Name: inst.Name, Reason: err.Error()})
			continue
		}

		switch id.Role {
		case ROLE_ROUTER, ROLE_ROUTE_SERVER:
			inv.Routers = append(inv.Routers, Router{
				Handle: inst.ID,
				Name:   inst.Name,
				ASN:    id.ASN,
				Role:   id.Role,
			})
		case ROLE_HOST:
			if conv.IsValidator(id.Base) {
				inv.Validators = append(inv.Validators, Validator{
					Handle: inst.ID,
					Name:   inst.Name,
					ASN:    id.ASN,
				})
			}
		}
	}

	return inv, nil
}
