package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/emunet/ribscan/fleet"
	"github.com/emunet/ribscan/substrate"

	log "github.com/sirupsen/logrus"
)

var (
	version    = ""
	buildinfos = ""
	AppVersion = "FleetLS " + version + " " + buildinfos

	DockerBin       = flag.String("docker.bin", substrate.DefaultBin(), "The docker binary to use")
	DiscoverTimeout = flag.Duration("discover.timeout", time.Second*30, "Inventory listing timeout")

	Namespace   = flag.String("fleet.namespace", "emu", "Name prefix of fleet instances")
	FleetConfig = flag.String("fleet.config", "", "YAML file overriding the fleet naming convention")

	OutputJSON = flag.Bool("json", false, "Print the inventory as JSON")

	LogLevel = flag.String("loglevel", "info", "Log level")
	Version  = flag.Bool("version", false, "Print version")
)

type OutputRouter struct {
	Handle string `json:"handle"`
	Name   string `json:"name"`
	ASN    uint32 `json:"asn"`
	Role   string `json:"role"`
}

type OutputValidator struct {
	Handle string `json:"handle"`
	Name   string `json:"name"`
	ASN    uint32 `json:"asn"`
}

type OutputWarning struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type OutputInventory struct {
	Routers    []OutputRouter    `json:"routers"`
	Validators []OutputValidator `json:"validators"`
	Warnings   []OutputWarning   `json:"warnings"`
}

func main() {
	flag.Parse()
	if *Version {
		fmt.Println(AppVersion)
		os.Exit(0)
	}

	lvl, _ := log.ParseLevel(*LogLevel)
	log.SetLevel(lvl)

	var conv *fleet.Convention
	var err error
	if *FleetConfig != "" {
		conv, err = fleet.LoadConvention(*FleetConfig)
		if err != nil {
			log.Fatalf("Unable to load fleet convention: %v", err)
		}
	} else {
		conv = fleet.DefaultConvention()
		conv.Namespace = *Namespace
	}

	sub := &substrate.Docker{
		Bin: *DockerBin,
		Log: log.StandardLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), *DiscoverTimeout)
	defer cancel()

	inv, err := fleet.Discover(ctx, sub, conv)
	if err != nil {
		log.Fatalf("Unable to list fleet: %v", err)
	}

	for _, warning := range inv.Warnings {
		log.Warnf("skipping %s: %s", warning.Name, warning.Reason)
	}

	if *OutputJSON {
		out := OutputInventory{
			Routers:    make([]OutputRouter, 0, len(inv.Routers)),
			Validators: make([]OutputValidator, 0, len(inv.Validators)),
			Warnings:   make([]OutputWarning, 0, len(inv.Warnings)),
		}
		for _, router := range inv.Routers {
			out.Routers = append(out.Routers, OutputRouter{
				Handle: router.Handle,
				Name:   router.Name,
				ASN:    router.ASN,
				Role:   fleet.RoleToName[router.Role],
			})
		}
		for _, validator := range inv.Validators {
			out.Validators = append(out.Validators, OutputValidator{
				Handle: validator.Handle,
				Name:   validator.Name,
				ASN:    validator.ASN,
			})
		}
		for _, warning := range inv.Warnings {
			out.Warnings = append(out.Warnings, OutputWarning{
				Name:   warning.Name,
				Reason: warning.Reason,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Fatalf("Unable to encode inventory: %v", err)
		}
		return
	}

	for _, router := range inv.Routers {
		fmt.Printf("AS%-6d %-12s %s\n", router.ASN, fleet.RoleToName[router.Role], router.Name)
	}
	for _, validator := range inv.Validators {
		fmt.Printf("AS%-6d %-12s %s\n", validator.ASN, "validator", validator.Name)
	}
	fmt.Printf("\n%d routers, %d validators, %d skipped\n",
		len(inv.Routers), len(inv.Validators), len(inv.Warnings))
}
