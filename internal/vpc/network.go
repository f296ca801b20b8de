package vpc

import (
	"context"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

// CreateNetwork creates the network and, in auto mode, its subnets in
// the fixed default regions with pre-assigned CIDRs.
func (s *Service) CreateNetwork(ctx context.Context, projectID, name string, autoCreateSubnets bool, routingMode model.RoutingMode, mtu int) (*model.Network, error) {
	if mtu != 1460 && mtu != 1500 {
		return nil, cmn.NewInvalidArgument("mtu must be 1460 or 1500, got %d", mtu)
	}
	if routingMode != model.RoutingRegional && routingMode != model.RoutingGlobal {
		return nil, cmn.NewInvalidArgument("routingMode must be REGIONAL or GLOBAL")
	}
	n := &model.Network{
		ID: cmn.NewID(), ProjectID: projectID, Name: name,
		AutoCreateSubnets: autoCreateSubnets, RoutingMode: routingMode, MTU: mtu,
		CreatedAt: s.clock.Now(),
	}
	if err := s.networks.Create(n); err != nil {
		return nil, err
	}
	if err := s.driver.EnsureNetwork(ctx, dockerNetworkName(projectID, name)); err != nil {
		return nil, err
	}
	if autoCreateSubnets {
		for region, cidr := range DefaultRegionCIDRs {
			if _, err := s.CreateSubnet(ctx, n.ID, region+"-default", region, cidr, false); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

func (s *Service) GetNetwork(id string) (*model.Network, error) { return s.networks.Get(id) }
func (s *Service) GetNetworkByName(projectID, name string) (*model.Network, error) {
	return s.networks.GetByName(projectID, name)
}
func (s *Service) ListNetworks(projectID string) ([]*model.Network, error) {
	return s.networks.ListByProject(projectID)
}

// DeleteNetwork removes the network once nothing references it; a
// network that still owns subnetworks is refused.
func (s *Service) DeleteNetwork(ctx context.Context, n *model.Network) error {
	subnets, err := s.subnets.ListByNetwork(n.ID)
	if err != nil {
		return err
	}
	if len(subnets) > 0 {
		return cmn.NewFailedPrecondition("network %s still has %d subnetworks", n.Name, len(subnets))
	}
	return s.networks.Delete(n)
}

// CreateSubnet validates the CIDR (strict, prefix 8..29) and rejects
// ranges overlapping any existing subnet in the same network. Gateway is
// network+1.
func (s *Service) CreateSubnet(ctx context.Context, networkID, name, region, cidr string, privateGoogleAccess bool) (*model.Subnetwork, error) {
	ipnet, err := parseStrictCIDR(cidr)
	if err != nil {
		return nil, err
	}
	existing, err := s.subnets.ListByNetwork(networkID)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		otherNet, err := parseStrictCIDR(other.CIDR)
		if err != nil {
			continue
		}
		if overlaps(ipnet, otherNet) {
			return nil, cmn.NewInvalidArgument("subnet %s overlaps existing subnet %s (%s)", cidr, other.Name, other.CIDR)
		}
	}
	sn := &model.Subnetwork{
		ID: cmn.NewID(), NetworkRef: networkID, Name: name, Region: region,
		CIDR: ipnet.String(), GatewayIP: gatewayIP(ipnet), PrivateGoogleAccess: privateGoogleAccess,
		NextIPIndex: 2, CreatedAt: s.clock.Now(),
	}
	if err := s.subnets.Create(sn); err != nil {
		return nil, err
	}
	return sn, nil
}

func (s *Service) GetSubnet(id string) (*model.Subnetwork, error) { return s.subnets.Get(id) }
func (s *Service) ListSubnets(networkID string) ([]*model.Subnetwork, error) {
	return s.subnets.ListByNetwork(networkID)
}

// ResolveSubnet looks up a caller-named network and subnet for an
// explicit interface attachment. An empty subnetName falls back to the
// network's subnet in the instance's region.
func (s *Service) ResolveSubnet(ctx context.Context, projectID, networkName, subnetName, region string) (string, string, error) {
	n, err := s.networks.GetByName(projectID, networkName)
	if err != nil {
		return "", "", err
	}
	subs, err := s.subnets.ListByNetwork(n.ID)
	if err != nil {
		return "", "", err
	}
	for _, sn := range subs {
		if subnetName != "" && sn.Name == subnetName {
			return sn.ID, sn.Name, nil
		}
		if subnetName == "" && sn.Region == region {
			return sn.ID, sn.Name, nil
		}
	}
	if subnetName != "" {
		return "", "", cmn.NewNotFound("no subnetwork %s in network %s", subnetName, networkName)
	}
	return "", "", cmn.NewNotFound("network %s has no subnetwork in region %s", networkName, region)
}

// DefaultSubnet resolves (or auto-provisions) the project's default
// network and its subnet in region, for nic0 attachment when an instance
// is created without explicit interfaces.
func (s *Service) DefaultSubnet(ctx context.Context, projectID, region string) (subnetID, networkName, subnetName string, err error) {
	net, err := s.networks.GetByName(projectID, "default")
	if err != nil {
		if cmn.AsTaxonomy(err).Code() != cmn.CodeNotFound {
			return "", "", "", err
		}
		net, err = s.CreateNetwork(ctx, projectID, "default", true, model.RoutingRegional, 1460)
		if err != nil {
			return "", "", "", err
		}
	}
	subnets, err := s.subnets.ListByNetwork(net.ID)
	if err != nil {
		return "", "", "", err
	}
	for _, sn := range subnets {
		if sn.Region == region {
			return sn.ID, net.Name, sn.Name, nil
		}
	}
	cidr, ok := DefaultRegionCIDRs[region]
	if !ok {
		return "", "", "", cmn.NewInvalidArgument("no default subnet CIDR configured for region %q", region)
	}
	sn, err := s.CreateSubnet(ctx, net.ID, region+"-default", region, cidr, false)
	if err != nil {
		return "", "", "", err
	}
	return sn.ID, net.Name, sn.Name, nil
}
