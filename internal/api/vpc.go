package api

import (
	"context"
	"net/http"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/wire"
)

// --- networks ---

func (d *Deps) createNetwork(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	projectID := pathVar(r, "projectID")
	var req wire.CreateNetworkRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	mode := model.RoutingRegional
	if req.RoutingMode == string(model.RoutingGlobal) {
		mode = model.RoutingGlobal
	}
	n, err := d.VPC.CreateNetwork(ctx, projectID, req.Name, req.AutoCreateSubnets, mode, req.MTU)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, networkResource(d.BaseURL, n))
	return nil
}

func (d *Deps) getNetwork(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, networkResource(d.BaseURL, n))
	return nil
}

func (d *Deps) listNetworks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ns, err := d.VPC.ListNetworks(pathVar(r, "projectID"))
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(ns))
	for _, n := range ns {
		items = append(items, networkResource(d.BaseURL, n))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#networkList", "items": items})
	return nil
}

func (d *Deps) deleteNetwork(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	if err := d.VPC.DeleteNetwork(ctx, n); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// --- subnets ---

func (d *Deps) createSubnet(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	var req wire.CreateSubnetRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := createSubnetSchema.Validate(map[string]string{
		"name": req.Name, "region": req.Region, "ipCidrRange": req.IPCidrRange,
	}); err != nil {
		return err
	}
	sn, err := d.VPC.CreateSubnet(ctx, n.ID, req.Name, req.Region, req.IPCidrRange, req.PrivateGoogleAccess)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, subnetResource(d.BaseURL, pathVar(r, "projectID"), sn))
	return nil
}

func (d *Deps) listSubnets(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	sns, err := d.VPC.ListSubnets(n.ID)
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(sns))
	for _, sn := range sns {
		items = append(items, subnetResource(d.BaseURL, pathVar(r, "projectID"), sn))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#subnetworkList", "items": items})
	return nil
}

// --- firewall rules ---

func (d *Deps) createFirewall(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req wire.CreateFirewallRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), req.Network)
	if err != nil {
		return err
	}
	f := &model.FirewallRule{
		NetworkRef: n.ID, Name: req.Name, Priority: req.Priority,
		Direction: model.Direction(req.Direction),
		SourceRanges: req.SourceRanges, DestRanges: req.DestRanges,
		SourceTags: req.SourceTags, TargetTags: req.TargetTags,
	}
	for _, a := range req.Allowed {
		f.Allowed = append(f.Allowed, model.ProtocolEntry{Protocol: a.Protocol, Ports: a.Ports})
	}
	for _, a := range req.Denied {
		f.Denied = append(f.Denied, model.ProtocolEntry{Protocol: a.Protocol, Ports: a.Ports})
	}
	created, err := d.VPC.CreateFirewallRule(f)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, firewallResource(created))
	return nil
}

func (d *Deps) listFirewalls(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	fs, err := d.VPC.ListFirewallRules(n.ID)
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(fs))
	for _, f := range fs {
		items = append(items, firewallResource(f))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#firewallList", "items": items})
	return nil
}

func (d *Deps) deleteFirewall(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	fs, err := d.VPC.ListFirewallRules(n.ID)
	if err != nil {
		return err
	}
	id, err := firewallIDByName(fs, pathVar(r, "firewall"))
	if err != nil {
		return err
	}
	if err := d.VPC.DeleteFirewallRule(id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func firewallIDByName(fs []*model.FirewallRule, name string) (string, error) {
	for _, f := range fs {
		if f.Name == name {
			return f.ID, nil
		}
	}
	return "", cmn.NewNotFound("firewall rule %s not found", name)
}

// --- routes ---

func (d *Deps) createRoute(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req wire.CreateRouteRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), req.Network)
	if err != nil {
		return err
	}
	rt := &model.Route{
		NetworkRef: n.ID, Name: req.Name, DestRange: req.DestRange,
		Priority: req.Priority, NextHopType: req.NextHopType, NextHop: req.NextHop,
	}
	created, err := d.VPC.CreateRoute(rt)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, routeResource(created))
	return nil
}

func (d *Deps) listRoutes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	rts, err := d.VPC.ListRoutes(n.ID)
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(rts))
	for _, rt := range rts {
		items = append(items, routeResource(rt))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#routeList", "items": items})
	return nil
}

// --- peerings ---

func (d *Deps) addPeering(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	var req wire.AddPeeringRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	peer, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), req.PeerNetwork)
	if err != nil {
		return err
	}
	p, err := d.VPC.AddPeering(ctx, n, peer, req.Name, req.AutoCreateRoutes, req.ExchangeSubnetRoutes)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, peeringResource(p))
	return nil
}

func (d *Deps) listPeerings(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	ps, err := d.VPC.ListPeerings(n.ID)
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(ps))
	for _, p := range ps {
		items = append(items, peeringResource(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#peeringList", "items": items})
	return nil
}

// --- addresses ---

func (d *Deps) reserveAddress(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	projectID := pathVar(r, "projectID")
	region := pathVar(r, "region")
	var req wire.ReserveAddressRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	tier := model.TierPremium
	if req.NetworkTier == string(model.TierStandard) {
		tier = model.TierStandard
	}
	a, err := d.VPC.ReserveStaticAddress(projectID, region, req.Name, tier)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, addressResource(a))
	return nil
}

func (d *Deps) listAddresses(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	as, err := d.VPC.ListAddresses(pathVar(r, "projectID"))
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(as))
	for _, a := range as {
		items = append(items, addressResource(a))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#addressList", "items": items})
	return nil
}

func (d *Deps) deleteAddress(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	as, err := d.VPC.ListAddresses(pathVar(r, "projectID"))
	if err != nil {
		return err
	}
	var target *model.Address
	name := pathVar(r, "address")
	for _, a := range as {
		if a.Name == name {
			target = a
			break
		}
	}
	if target == nil {
		return cmn.NewNotFound("address %s not found", name)
	}
	if err := d.VPC.DeleteAddress(target); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// --- routers & VPN tunnels ---

func (d *Deps) listRouters(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	rts, err := d.VPC.ListRouters(n.ID)
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(rts))
	for _, rt := range rts {
		items = append(items, routerResource(rt))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#routerList", "items": items})
	return nil
}

func (d *Deps) createVPNTunnel(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req wire.CreateVPNTunnelRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), req.Network)
	if err != nil {
		return err
	}
	v := &model.VPNTunnel{NetworkRef: n.ID, Name: req.Name, Region: req.Region, PeerIP: req.PeerIP}
	created, err := d.VPC.CreateVPNTunnel(v)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, vpnTunnelResource(created))
	return nil
}

func (d *Deps) listVPNTunnels(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	vs, err := d.VPC.ListVPNTunnels(n.ID)
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(vs))
	for _, v := range vs {
		items = append(items, vpnTunnelResource(v))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#vpnTunnelList", "items": items})
	return nil
}

func (d *Deps) removePeering(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), pathVar(r, "network"))
	if err != nil {
		return err
	}
	var req wire.RemovePeeringRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	p, err := d.VPC.GetPeering(n.ID, req.Name)
	if err != nil {
		return err
	}
	peer, err := d.VPC.GetNetwork(p.PeerNetworkRef)
	if err != nil {
		return err
	}
	if err := d.VPC.RemovePeering(ctx, n, peer, req.Name); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// createSubnetRegional is the region-scoped twin of createSubnet: the
// network comes from the body, the region from the path.
func (d *Deps) createSubnetRegional(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	projectID := pathVar(r, "projectID")
	var req wire.CreateSubnetRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := createSubnetSchema.Validate(map[string]string{
		"name": req.Name, "region": pathVar(r, "region"), "ipCidrRange": req.IPCidrRange,
	}); err != nil {
		return err
	}
	n, err := d.VPC.GetNetworkByName(projectID, req.Network)
	if err != nil {
		return err
	}
	sn, err := d.VPC.CreateSubnet(ctx, n.ID, req.Name, pathVar(r, "region"), req.IPCidrRange, req.PrivateGoogleAccess)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, subnetResource(d.BaseURL, projectID, sn))
	return nil
}

func (d *Deps) listSubnetsRegional(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	projectID := pathVar(r, "projectID")
	sns, err := d.VPC.ListSubnetsByRegion(projectID, pathVar(r, "region"))
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(sns))
	for _, sn := range sns {
		items = append(items, subnetResource(d.BaseURL, projectID, sn))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#subnetworkList", "items": items})
	return nil
}

func (d *Deps) listRoutersRegional(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	rts, err := d.VPC.ListRoutersByRegion(pathVar(r, "projectID"), pathVar(r, "region"))
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(rts))
	for _, rt := range rts {
		items = append(items, routerResource(rt))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#routerList", "items": items})
	return nil
}

// createRouterRegional is the region-scoped router create; the region
// comes from the path, the network from the body.
func (d *Deps) createRouterRegional(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req wire.CreateRouterRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	n, err := d.VPC.GetNetworkByName(pathVar(r, "projectID"), req.Network)
	if err != nil {
		return err
	}
	rt := &model.Router{
		NetworkRef: n.ID, Name: req.Name, Region: pathVar(r, "region"),
		BGPAsn: req.BGP.Asn, KeepaliveSec: req.BGP.KeepaliveInterval,
	}
	if rt.KeepaliveSec == 0 {
		rt.KeepaliveSec = 20
	}
	created, err := d.VPC.CreateRouter(rt)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, routerResource(created))
	return nil
}
