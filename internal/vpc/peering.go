package vpc

import (
	"context"

	"github.com/golang/glog"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

// AddPeering enforces A != B, no existing peering named the same from A,
// no existing (A,B) edge, and the aggregate-CIDR overlap guard, then
// splices the two networks' container fabrics by attaching each side's
// containers to the other's underlying docker network.
func (s *Service) AddPeering(ctx context.Context, network *model.Network, peerNetwork *model.Network, name string, autoCreateRoutes, exchangeSubnetRoutes bool) (*model.VPCPeering, error) {
	if network.ID == peerNetwork.ID {
		return nil, cmn.NewInvalidArgument("a network cannot peer with itself")
	}
	if _, err := s.peerings.Get(network.ID, name); err == nil {
		return nil, cmn.NewAlreadyExists("network %s already has a peering named %q", network.Name, name)
	} else if cmn.AsTaxonomy(err).Code() != cmn.CodeNotFound {
		return nil, err
	}
	if has, err := s.peerings.HasPeerEdge(network.ID, peerNetwork.ID); err != nil {
		return nil, err
	} else if has {
		return nil, cmn.NewAlreadyExists("network %s already peers with %s", network.Name, peerNetwork.Name)
	}
	if err := s.checkCIDROverlap(network, peerNetwork); err != nil {
		return nil, err
	}

	p := &model.VPCPeering{
		ID: cmn.NewID(), NetworkRef: network.ID, Name: name, PeerNetworkRef: peerNetwork.ID,
		State: model.PeeringActive, AutoCreateRoutes: autoCreateRoutes,
		ExchangeSubnetRoutes: exchangeSubnetRoutes, CreatedAt: s.clock.Now(),
	}
	if err := s.peerings.Create(p); err != nil {
		return nil, err
	}

	if err := s.splice(ctx, network, peerNetwork); err != nil {
		// Metadata already committed; the splice is best-effort glue over
		// container networking and never blocks the control-plane write.
		glog.Warningf("peering %s->%s: splice failed: %v", network.Name, peerNetwork.Name, err)
	}
	return p, nil
}

// RemovePeering reverses the splice and deletes the metadata edge.
func (s *Service) RemovePeering(ctx context.Context, network, peerNetwork *model.Network, name string) error {
	if err := s.peerings.Delete(network.ID, name); err != nil {
		return err
	}
	if err := s.unsplice(ctx, network, peerNetwork); err != nil {
		glog.Warningf("peering %s->%s: unsplice failed: %v", network.Name, peerNetwork.Name, err)
	}
	return nil
}

func (s *Service) GetPeering(networkID, name string) (*model.VPCPeering, error) {
	return s.peerings.Get(networkID, name)
}

func (s *Service) ListPeerings(networkID string) ([]*model.VPCPeering, error) {
	return s.peerings.ListByNetwork(networkID)
}

// checkCIDROverlap is a guard: refuse when the two networks' aggregate
// subnet CIDRs overlap.
func (s *Service) checkCIDROverlap(a, b *model.Network) error {
	aSubs, err := s.subnets.ListByNetwork(a.ID)
	if err != nil {
		return err
	}
	bSubs, err := s.subnets.ListByNetwork(b.ID)
	if err != nil {
		return err
	}
	for _, x := range aSubs {
		xNet, err := parseStrictCIDR(x.CIDR)
		if err != nil {
			continue
		}
		for _, y := range bSubs {
			yNet, err := parseStrictCIDR(y.CIDR)
			if err != nil {
				continue
			}
			if overlaps(xNet, yNet) {
				return cmn.NewInvalidArgument("networks %s and %s have overlapping subnet CIDRs (%s, %s)", a.Name, b.Name, x.CIDR, y.CIDR)
			}
		}
	}
	return nil
}

// splice attaches every container currently in network a to network b's
// underlying docker network and vice versa, so the two fabrics become
// mutually reachable.
func (s *Service) splice(ctx context.Context, a, b *model.Network) error {
	if s.instances == nil {
		return nil // no compute orchestrator wired (e.g. unit tests)
	}
	dockerA := dockerNetworkName(a.ProjectID, a.Name)
	dockerB := dockerNetworkName(b.ProjectID, b.Name)
	aHandles, err := s.instances.ListContainerHandlesForNetwork(a.ProjectID, a.Name)
	if err != nil {
		return err
	}
	bHandles, err := s.instances.ListContainerHandlesForNetwork(b.ProjectID, b.Name)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	for _, h := range aHandles {
		if err := s.driver.AttachToNetwork(cctx, h, dockerB); err != nil {
			return err
		}
	}
	for _, h := range bHandles {
		if err := s.driver.AttachToNetwork(cctx, h, dockerA); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) unsplice(ctx context.Context, a, b *model.Network) error {
	if s.instances == nil {
		return nil
	}
	dockerA := dockerNetworkName(a.ProjectID, a.Name)
	dockerB := dockerNetworkName(b.ProjectID, b.Name)
	aHandles, err := s.instances.ListContainerHandlesForNetwork(a.ProjectID, a.Name)
	if err != nil {
		return err
	}
	bHandles, err := s.instances.ListContainerHandlesForNetwork(b.ProjectID, b.Name)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	for _, h := range aHandles {
		s.driver.DetachFromNetwork(cctx, h, dockerB)
	}
	for _, h := range bHandles {
		s.driver.DetachFromNetwork(cctx, h, dockerA)
	}
	return nil
}
