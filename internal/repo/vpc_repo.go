package repo

import (
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

const (
	networkPrefix    = "network"
	networkNameIdx   = "networkname"
	subnetPrefix     = "subnet"
	firewallPrefix   = "firewall"
	routePrefix      = "route"
	peeringPrefix    = "peering"
	addressPrefix    = "address"
	routerPrefix     = "router"
	vpnPrefix        = "vpn"
)

// --- Network ---

type NetworkRepo struct{ s *Store }

func NewNetworkRepo(s *Store) *NetworkRepo { return &NetworkRepo{s: s} }

func networkKey(id string) string            { return key(networkPrefix, id) }
func networkNameKey(projectID, n string) string { return key(networkNameIdx, projectID, n) }

func (r *NetworkRepo) Create(n *model.Network) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		nk := networkNameKey(n.ProjectID, n.Name)
		if _, err := tx.Get(nk); err == nil {
			return cmn.NewAlreadyExists("network %q already exists", n.Name)
		} else if err != buntdb.ErrNotFound {
			return cmn.WrapInternal(err, "check network uniqueness")
		}
		if err := put(tx, networkKey(n.ID), n, true); err != nil {
			return err
		}
		_, _, err := tx.Set(nk, n.ID, nil)
		return err
	})
}

func (r *NetworkRepo) Get(id string) (*model.Network, error) {
	var n model.Network
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, networkKey(id), &n) })
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NetworkRepo) GetByName(projectID, name string) (*model.Network, error) {
	var id string
	err := r.s.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(networkNameKey(projectID, name))
		if err == buntdb.ErrNotFound {
			return cmn.NewNotFound("no network named %q", name)
		}
		if err != nil {
			return err
		}
		id = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(id)
}

func (r *NetworkRepo) Delete(n *model.Network) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		if err := del(tx, networkKey(n.ID)); err != nil {
			return err
		}
		_, err := tx.Delete(networkNameKey(n.ProjectID, n.Name))
		if err != nil && err != buntdb.ErrNotFound {
			return err
		}
		return nil
	})
}

func (r *NetworkRepo) ListByProject(projectID string) ([]*model.Network, error) {
	var out []*model.Network
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(networkPrefix+"\x1f*", func(k, v string) bool {
			var n model.Network
			if err := json.Unmarshal([]byte(v), &n); err == nil && n.ProjectID == projectID {
				out = append(out, &n)
			}
			return true
		})
	})
	return out, err
}

// --- Subnetwork ---

type SubnetRepo struct{ s *Store }

func NewSubnetRepo(s *Store) *SubnetRepo { return &SubnetRepo{s: s} }

func subnetKey(id string) string { return key(subnetPrefix, id) }

func (r *SubnetRepo) Create(sn *model.Subnetwork) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, subnetKey(sn.ID), sn, true) })
}

func (r *SubnetRepo) Get(id string) (*model.Subnetwork, error) {
	var sn model.Subnetwork
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, subnetKey(id), &sn) })
	if err != nil {
		return nil, err
	}
	return &sn, nil
}

// UpdateTx persists sn inside an already-open transaction; Update wraps
// it in a transaction of its own.
func (r *SubnetRepo) UpdateTx(tx *buntdb.Tx, sn *model.Subnetwork) error {
	return put(tx, subnetKey(sn.ID), sn, false)
}

func (r *SubnetRepo) Update(sn *model.Subnetwork) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return r.UpdateTx(tx, sn) })
}

func (r *SubnetRepo) ListByNetwork(networkID string) ([]*model.Subnetwork, error) {
	var out []*model.Subnetwork
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(subnetPrefix+"\x1f*", func(k, v string) bool {
			var sn model.Subnetwork
			if err := json.Unmarshal([]byte(v), &sn); err == nil && sn.NetworkRef == networkID {
				out = append(out, &sn)
			}
			return true
		})
	})
	return out, err
}

func (r *SubnetRepo) GetTx(tx *buntdb.Tx, id string) (*model.Subnetwork, error) {
	var sn model.Subnetwork
	if err := get(tx, subnetKey(id), &sn); err != nil {
		return nil, err
	}
	return &sn, nil
}

// --- FirewallRule ---

type FirewallRepo struct{ s *Store }

func NewFirewallRepo(s *Store) *FirewallRepo { return &FirewallRepo{s: s} }
func firewallKey(id string) string           { return key(firewallPrefix, id) }

func (r *FirewallRepo) Create(f *model.FirewallRule) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, firewallKey(f.ID), f, true) })
}
func (r *FirewallRepo) Get(id string) (*model.FirewallRule, error) {
	var f model.FirewallRule
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, firewallKey(id), &f) })
	if err != nil {
		return nil, err
	}
	return &f, nil
}
func (r *FirewallRepo) Delete(id string) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return del(tx, firewallKey(id)) })
}
func (r *FirewallRepo) ListByNetwork(networkID string) ([]*model.FirewallRule, error) {
	var out []*model.FirewallRule
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(firewallPrefix+"\x1f*", func(k, v string) bool {
			var f model.FirewallRule
			if err := json.Unmarshal([]byte(v), &f); err == nil && f.NetworkRef == networkID {
				out = append(out, &f)
			}
			return true
		})
	})
	return out, err
}

// --- Route ---

type RouteRepo struct{ s *Store }

func NewRouteRepo(s *Store) *RouteRepo { return &RouteRepo{s: s} }
func routeKey(id string) string        { return key(routePrefix, id) }

func (r *RouteRepo) Create(rt *model.Route) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, routeKey(rt.ID), rt, true) })
}
func (r *RouteRepo) Get(id string) (*model.Route, error) {
	var rt model.Route
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, routeKey(id), &rt) })
	if err != nil {
		return nil, err
	}
	return &rt, nil
}
func (r *RouteRepo) Delete(id string) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return del(tx, routeKey(id)) })
}
func (r *RouteRepo) ListByNetwork(networkID string) ([]*model.Route, error) {
	var out []*model.Route
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(routePrefix+"\x1f*", func(k, v string) bool {
			var rt model.Route
			if err := json.Unmarshal([]byte(v), &rt); err == nil && rt.NetworkRef == networkID {
				out = append(out, &rt)
			}
			return true
		})
	})
	return out, err
}

// --- VPCPeering ---

type PeeringRepo struct{ s *Store }

func NewPeeringRepo(s *Store) *PeeringRepo { return &PeeringRepo{s: s} }
func peeringKey(networkID, name string) string { return key(peeringPrefix, networkID, name) }

func (r *PeeringRepo) Create(p *model.VPCPeering) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, peeringKey(p.NetworkRef, p.Name), p, true) })
}
func (r *PeeringRepo) Get(networkID, name string) (*model.VPCPeering, error) {
	var p model.VPCPeering
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, peeringKey(networkID, name), &p) })
	if err != nil {
		return nil, err
	}
	return &p, nil
}
func (r *PeeringRepo) Update(p *model.VPCPeering) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, peeringKey(p.NetworkRef, p.Name), p, false) })
}
func (r *PeeringRepo) Delete(networkID, name string) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return del(tx, peeringKey(networkID, name)) })
}
func (r *PeeringRepo) ListByNetwork(networkID string) ([]*model.VPCPeering, error) {
	var out []*model.VPCPeering
	pat := peeringPrefix + "\x1f" + networkID + "\x1f*"
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(pat, func(k, v string) bool {
			var p model.VPCPeering
			if err := json.Unmarshal([]byte(v), &p); err == nil {
				out = append(out, &p)
			}
			return true
		})
	})
	return out, err
}

// HasPeerEdge reports whether networkID already peers to peerNetworkID
// under any name - backs the "(networkRef,peerNetworkRef) unique" invariant.
func (r *PeeringRepo) HasPeerEdge(networkID, peerNetworkID string) (bool, error) {
	edges, err := r.ListByNetwork(networkID)
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if e.PeerNetworkRef == peerNetworkID {
			return true, nil
		}
	}
	return false, nil
}

// --- Address ---

type AddressRepo struct{ s *Store }

func NewAddressRepo(s *Store) *AddressRepo { return &AddressRepo{s: s} }
func addressKey(id string) string          { return key(addressPrefix, id) }

func (r *AddressRepo) Create(a *model.Address) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, addressKey(a.ID), a, true) })
}
func (r *AddressRepo) Get(id string) (*model.Address, error) {
	var a model.Address
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, addressKey(id), &a) })
	if err != nil {
		return nil, err
	}
	return &a, nil
}
func (r *AddressRepo) Update(a *model.Address) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, addressKey(a.ID), a, false) })
}
func (r *AddressRepo) Delete(id string) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return del(tx, addressKey(id)) })
}
func (r *AddressRepo) ListByProject(projectID string) ([]*model.Address, error) {
	var out []*model.Address
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(addressPrefix+"\x1f*", func(k, v string) bool {
			var a model.Address
			if err := json.Unmarshal([]byte(v), &a); err == nil && a.ProjectID == projectID {
				out = append(out, &a)
			}
			return true
		})
	})
	return out, err
}

// AllReservedIPs reports every IP currently tracked as an Address, used
// by the ephemeral external-IP allocator's "not recorded in Address" check.
func (r *AddressRepo) AllReservedIPs() (map[string]bool, error) {
	out := map[string]bool{}
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(addressPrefix+"\x1f*", func(k, v string) bool {
			var a model.Address
			if err := json.Unmarshal([]byte(v), &a); err == nil {
				out[a.IP] = true
			}
			return true
		})
	})
	return out, err
}

// --- Router ---

type RouterRepo struct{ s *Store }

func NewRouterRepo(s *Store) *RouterRepo { return &RouterRepo{s: s} }
func routerKey(id string) string         { return key(routerPrefix, id) }

func (r *RouterRepo) Create(rt *model.Router) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, routerKey(rt.ID), rt, true) })
}
func (r *RouterRepo) Get(id string) (*model.Router, error) {
	var rt model.Router
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, routerKey(id), &rt) })
	if err != nil {
		return nil, err
	}
	return &rt, nil
}
func (r *RouterRepo) Delete(id string) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return del(tx, routerKey(id)) })
}
func (r *RouterRepo) ListByNetwork(networkID string) ([]*model.Router, error) {
	var out []*model.Router
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(routerPrefix+"\x1f*", func(k, v string) bool {
			var rt model.Router
			if err := json.Unmarshal([]byte(v), &rt); err == nil && rt.NetworkRef == networkID {
				out = append(out, &rt)
			}
			return true
		})
	})
	return out, err
}

// --- VPNTunnel ---

type VPNRepo struct{ s *Store }

func NewVPNRepo(s *Store) *VPNRepo { return &VPNRepo{s: s} }
func vpnKey(id string) string      { return key(vpnPrefix, id) }

func (r *VPNRepo) Create(v *model.VPNTunnel) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, vpnKey(v.ID), v, true) })
}
func (r *VPNRepo) Get(id string) (*model.VPNTunnel, error) {
	var v model.VPNTunnel
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, vpnKey(id), &v) })
	if err != nil {
		return nil, err
	}
	return &v, nil
}
func (r *VPNRepo) Delete(id string) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return del(tx, vpnKey(id)) })
}
func (r *VPNRepo) ListByNetwork(networkID string) ([]*model.VPNTunnel, error) {
	var out []*model.VPNTunnel
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(vpnPrefix+"\x1f*", func(k, v string) bool {
			var t model.VPNTunnel
			if err := json.Unmarshal([]byte(v), &t); err == nil && t.NetworkRef == networkID {
				out = append(out, &t)
			}
			return true
		})
	})
	return out, err
}
