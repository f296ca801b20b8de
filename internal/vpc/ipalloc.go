package vpc

import (
	"context"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

// AllocateInternalIP walks addresses sequentially from the subnet's
// NextIPIndex, skipping reserved and already-allocated IPs. Concurrent
// allocations on the same subnet are serialized by the subnet's stripe.
func (s *Service) AllocateInternalIP(ctx context.Context, subnetID string) (string, error) {
	var ip string
	err := s.locks.WithLock("subnet:"+subnetID, func() error {
		sn, err := s.subnets.Get(subnetID)
		if err != nil {
			return err
		}
		ipnet, err := parseStrictCIDR(sn.CIDR)
		if err != nil {
			return err
		}
		nics, err := s.nics.ListBySubnet(subnetID)
		if err != nil {
			return err
		}
		taken := map[string]bool{}
		for _, n := range nics {
			taken[n.InternalIP] = true
		}
		allocated, nextIdx, err := nextAvailableIP(ipnet, sn.NextIPIndex, taken)
		if err != nil {
			// Exhausted walking forward from NextIPIndex; a freed IP behind
			// the cursor may still be available, so retry once from the
			// start.
			allocated, nextIdx, err = nextAvailableIP(ipnet, 2, taken)
			if err != nil {
				return err
			}
		}
		sn.NextIPIndex = nextIdx
		if err := s.subnets.Update(sn); err != nil {
			return err
		}
		ip = allocated
		return nil
	})
	if err != nil {
		return "", err
	}
	return ip, nil
}

// ReleaseInternalIP is a no-op against persisted state: deallocation is
// implicit when the owning NIC is destroyed - the NIC row itself is the
// only record of the allocation, and NICRepo.DeleteByInstance already
// removes it. This method exists so compute.NetworkBinder has a
// symmetric release call sited at the same layer as allocation.
func (s *Service) ReleaseInternalIP(ctx context.Context, subnetID, ip string) error {
	return nil
}

// AllocateEphemeralExternalIP draws a random candidate from the external
// pool and confirms it is not recorded in Address, with bounded retries.
// Ephemeral IPs are never persisted as Address rows.
func (s *Service) AllocateEphemeralExternalIP(ctx context.Context, projectID, region string) (string, error) {
	reserved, err := s.addresses.AllReservedIPs()
	if err != nil {
		return "", err
	}
	return randomExternalIP(reserved, 64)
}

// ReleaseEphemeralExternalIP is a no-op: ephemeral IPs were never
// recorded as Address rows, so there is nothing to free.
func (s *Service) ReleaseEphemeralExternalIP(ctx context.Context, ip string) error {
	return nil
}

// ReserveStaticAddress creates an Address row in state RESERVED.
func (s *Service) ReserveStaticAddress(projectID, region, name string, tier model.NetworkTier) (*model.Address, error) {
	reserved, err := s.addresses.AllReservedIPs()
	if err != nil {
		return nil, err
	}
	ip, err := randomExternalIP(reserved, 64)
	if err != nil {
		return nil, err
	}
	a := &model.Address{
		ID: cmn.NewID(), ProjectID: projectID, Region: region, Name: name,
		IP: ip, Type: "EXTERNAL", Status: model.AddressReserved, NetworkTier: tier,
		CreatedAt: s.clock.Now(),
	}
	if err := s.addresses.Create(a); err != nil {
		return nil, err
	}
	return a, nil
}

// BindAddress transitions a reserved static Address to IN_USE against an
// instance.
func (s *Service) BindAddress(a *model.Address, instanceRef string) error {
	if a.Status != model.AddressReserved {
		return cmn.NewFailedPrecondition("address %s is not RESERVED", a.IP)
	}
	a.Status = model.AddressInUse
	a.UserInstanceRef = instanceRef
	return s.addresses.Update(a)
}

// ReleaseAddress transitions IN_USE back to RESERVED.
func (s *Service) ReleaseAddress(a *model.Address) error {
	a.Status = model.AddressReserved
	a.UserInstanceRef = ""
	return s.addresses.Update(a)
}

// DeleteAddress requires the address be RESERVED.
func (s *Service) DeleteAddress(a *model.Address) error {
	if a.Status != model.AddressReserved {
		return cmn.NewFailedPrecondition("address %s must be RESERVED to delete, is %s", a.IP, a.Status)
	}
	return s.addresses.Delete(a.ID)
}

// FindAddressByIP resolves a static Address row from its IP, used when
// an access config names a reserved address rather than asking for an
// ephemeral one.
func (s *Service) FindAddressByIP(projectID, ip string) (*model.Address, error) {
	as, err := s.addresses.ListByProject(projectID)
	if err != nil {
		return nil, err
	}
	for _, a := range as {
		if a.IP == ip {
			return a, nil
		}
	}
	return nil, cmn.NewNotFound("no reserved address %s in project %s", ip, projectID)
}

// ListRoutersByRegion backs the region-scoped router listing.
func (s *Service) ListRoutersByRegion(projectID, region string) ([]*model.Router, error) {
	ns, err := s.networks.ListByProject(projectID)
	if err != nil {
		return nil, err
	}
	var out []*model.Router
	for _, n := range ns {
		rts, err := s.routers.ListByNetwork(n.ID)
		if err != nil {
			return nil, err
		}
		for _, rt := range rts {
			if rt.Region == region {
				out = append(out, rt)
			}
		}
	}
	return out, nil
}

// ListSubnetsByRegion backs the region-scoped subnetwork listing across
// every network in the project.
func (s *Service) ListSubnetsByRegion(projectID, region string) ([]*model.Subnetwork, error) {
	ns, err := s.networks.ListByProject(projectID)
	if err != nil {
		return nil, err
	}
	var out []*model.Subnetwork
	for _, n := range ns {
		sns, err := s.subnets.ListByNetwork(n.ID)
		if err != nil {
			return nil, err
		}
		for _, sn := range sns {
			if sn.Region == region {
				out = append(out, sn)
			}
		}
	}
	return out, nil
}

func (s *Service) GetAddress(id string) (*model.Address, error) { return s.addresses.Get(id) }
func (s *Service) ListAddresses(projectID string) ([]*model.Address, error) {
	return s.addresses.ListByProject(projectID)
}
