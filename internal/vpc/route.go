package vpc

import (
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

var validNextHopTypes = map[string]bool{
	"gateway": true, "instance": true, "ip": true, "vpnTunnel": true, "interconnect": true,
}

// CreateRoute stores pure metadata, validated like firewall rules (name,
// CIDR syntax).
func (s *Service) CreateRoute(rt *model.Route) (*model.Route, error) {
	if err := validateRFC1035Name(rt.Name); err != nil {
		return nil, err
	}
	if err := validateCIDRSyntax(rt.DestRange); err != nil {
		return nil, err
	}
	if !validNextHopTypes[rt.NextHopType] {
		return nil, cmn.NewInvalidArgument("unknown next hop type %q", rt.NextHopType)
	}
	rt.ID = cmn.NewID()
	rt.CreatedAt = s.clock.Now()
	if err := s.routes.Create(rt); err != nil {
		return nil, err
	}
	return rt, nil
}

func (s *Service) GetRoute(id string) (*model.Route, error) { return s.routes.Get(id) }
func (s *Service) DeleteRoute(id string) error               { return s.routes.Delete(id) }
func (s *Service) ListRoutes(networkID string) ([]*model.Route, error) {
	return s.routes.ListByNetwork(networkID)
}
