package vpc

import (
	"fmt"
	"time"

	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/compute/container"
	"github.com/cloudemu/cloudemu/internal/repo"
)

// InstanceLookup is the narrow slice of the compute orchestrator peering
// needs: which containers currently belong to a (project,network), so
// the splice can attach/detach them to the peer's underlying fabric.
// Implemented by compute.Service; wired in after
// construction via SetInstanceLookup to avoid a vpc<->compute import
// cycle (compute.Service already depends on vpc.Service through the
// NetworkBinder interface).
type InstanceLookup interface {
	ListContainerHandlesForNetwork(projectID, networkName string) ([]string, error)
}

// Service carries the network/subnet/firewall/route/peering/address/
// router operations. It also satisfies compute.NetworkBinder, the narrow
// interface the compute orchestrator uses for subnet resolution and IP
// allocation, so the two control planes share one container driver
// without importing each other.
type Service struct {
	networks  *repo.NetworkRepo
	subnets   *repo.SubnetRepo
	firewalls *repo.FirewallRepo
	routes    *repo.RouteRepo
	peerings  *repo.PeeringRepo
	addresses *repo.AddressRepo
	routers   *repo.RouterRepo
	vpns      *repo.VPNRepo
	nics      *repo.NICRepo
	driver    container.Driver
	locks     *cluster.KeyLock
	clock     cmn.Clock
	callTimeout time.Duration
	instances InstanceLookup
}

// SetInstanceLookup wires the compute orchestrator in after both services
// are constructed (see InstanceLookup).
func (s *Service) SetInstanceLookup(l InstanceLookup) { s.instances = l }

func New(networks *repo.NetworkRepo, subnets *repo.SubnetRepo, firewalls *repo.FirewallRepo,
	routes *repo.RouteRepo, peerings *repo.PeeringRepo, addresses *repo.AddressRepo,
	routers *repo.RouterRepo, vpns *repo.VPNRepo, nics *repo.NICRepo, driver container.Driver, locks *cluster.KeyLock,
	clock cmn.Clock, callTimeout time.Duration) *Service {
	return &Service{
		networks: networks, subnets: subnets, firewalls: firewalls, routes: routes,
		peerings: peerings, addresses: addresses, routers: routers, vpns: vpns, nics: nics,
		driver: driver, locks: locks, clock: clock, callTimeout: callTimeout,
	}
}

func dockerNetworkName(projectID, networkName string) string {
	return fmt.Sprintf("cloudemu-net-%s-%s", projectID, networkName)
}
