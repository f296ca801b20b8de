package vpc

import (
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

// CreateRouter stores a metadata-only router; no BGP session is actually
// run.
func (s *Service) CreateRouter(rt *model.Router) (*model.Router, error) {
	if err := validateRFC1035Name(rt.Name); err != nil {
		return nil, err
	}
	if rt.BGPAsn < 1 {
		return nil, cmn.NewInvalidArgument("bgp asn %d outside range [1,2^32-1]", rt.BGPAsn)
	}
	if rt.KeepaliveSec < 1 || rt.KeepaliveSec > 60 {
		return nil, cmn.NewInvalidArgument("keepaliveSec %d outside range [1,60]", rt.KeepaliveSec)
	}
	rt.ID = cmn.NewID()
	rt.CreatedAt = s.clock.Now()
	if err := s.routers.Create(rt); err != nil {
		return nil, err
	}
	return rt, nil
}

func (s *Service) GetRouter(id string) (*model.Router, error) { return s.routers.Get(id) }
func (s *Service) DeleteRouter(id string) error                { return s.routers.Delete(id) }
func (s *Service) ListRouters(networkID string) ([]*model.Router, error) {
	return s.routers.ListByNetwork(networkID)
}

// CreateVPNTunnel is also metadata-only: the "gateway IP" is a synthetic
// address drawn from the VPNGatewayRange pool (never a routable address),
// recorded for inspection but not wired to any container networking.
func (s *Service) CreateVPNTunnel(v *model.VPNTunnel) (*model.VPNTunnel, error) {
	if err := validateRFC1035Name(v.Name); err != nil {
		return nil, err
	}
	v.ID = cmn.NewID()
	v.GatewayIP = vpnGatewayIP(v.ID)
	v.CreatedAt = s.clock.Now()
	if err := s.vpns.Create(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) GetVPNTunnel(id string) (*model.VPNTunnel, error) { return s.vpns.Get(id) }
func (s *Service) DeleteVPNTunnel(id string) error                   { return s.vpns.Delete(id) }
func (s *Service) ListVPNTunnels(networkID string) ([]*model.VPNTunnel, error) {
	return s.vpns.ListByNetwork(networkID)
}
