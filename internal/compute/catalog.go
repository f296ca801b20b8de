// Package compute is the instance-lifecycle orchestrator: an instance
// state machine bound to container-runtime primitives, with periodic
// state reconciliation against the runtime.
package compute

import "github.com/cloudemu/cloudemu/internal/cmn"

// MachineType is one row of the static catalog instance creation
// validates against.
type MachineType struct {
	Name  string
	VCPUs int
	MemMB int
}

// MachineTypes is the fixed catalog instance creation validates against.
var MachineTypes = map[string]MachineType{
	"e2-micro":  {Name: "e2-micro", VCPUs: 1, MemMB: 1024},
	"e2-small":  {Name: "e2-small", VCPUs: 1, MemMB: 2048},
	"e2-medium": {Name: "e2-medium", VCPUs: 2, MemMB: 4096},
	"n1-standard-1": {Name: "n1-standard-1", VCPUs: 1, MemMB: 3840},
	"n1-standard-2": {Name: "n1-standard-2", VCPUs: 2, MemMB: 7680},
	"n1-standard-4": {Name: "n1-standard-4", VCPUs: 4, MemMB: 15360},
}

// Zones is the fixed catalog of zone -> region.
var Zones = map[string]string{
	"us-central1-a": "us-central1",
	"us-central1-b": "us-central1",
	"us-central1-c": "us-central1",
	"us-east1-b":    "us-east1",
	"us-east1-c":    "us-east1",
	"europe-west1-b": "europe-west1",
	"europe-west1-c": "europe-west1",
	"asia-east1-a":  "asia-east1",
}

func ValidateMachineType(name string) (MachineType, error) {
	mt, ok := MachineTypes[name]
	if !ok {
		return MachineType{}, cmn.NewInvalidArgument("unknown machine type %q, available: %v", name, machineTypeNames())
	}
	return mt, nil
}

func ValidateZone(zone string) (region string, err error) {
	region, ok := Zones[zone]
	if !ok {
		return "", cmn.NewInvalidArgument("unknown zone %q, available: %v", zone, zoneNames())
	}
	return region, nil
}

func machineTypeNames() []string {
	out := make([]string, 0, len(MachineTypes))
	for n := range MachineTypes {
		out = append(out, n)
	}
	return out
}

func zoneNames() []string {
	out := make([]string, 0, len(Zones))
	for n := range Zones {
		out = append(out, n)
	}
	return out
}
