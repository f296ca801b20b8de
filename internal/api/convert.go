// Package api is the external HTTP surface: handlers that perform
// pipeline stages 5-7 (handler, service, repository) and format
// responses into the wire-compatible shape (stage 8). Routing itself is
// thin glue over gorilla/mux.
package api

import (
	"fmt"

	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/wire"
)

func selfLink(base string, parts ...string) string {
	link := base
	for _, p := range parts {
		link += "/" + p
	}
	return link
}

func projectResource(p *model.Project) map[string]interface{} {
	return map[string]interface{}{
		"kind":          "cloudemu#project",
		"projectId":     p.ID,
		"name":          p.DisplayName,
		"projectNumber": fmt.Sprintf("%d", p.ProjectNumber),
		"createTime":    wire.FormatTime(p.CreatedAt),
	}
}

func bucketResource(baseURL string, b *model.Bucket) map[string]interface{} {
	m := map[string]interface{}{
		"kind":              "storage#bucket",
		"id":                b.ID,
		"name":              b.Name,
		"projectId":         b.ProjectID,
		"location":          b.Location,
		"storageClass":      b.StorageClass,
		"versioning":        map[string]interface{}{"enabled": b.VersioningEnabled},
		"labels":            b.Labels,
		"timeCreated":       wire.FormatTime(b.CreatedAt),
		"updated":           wire.FormatTime(b.UpdatedAt),
		"selfLink":          selfLink(baseURL, "storage/v1/b", b.Name),
		"lifecycle":         b.Lifecycle,
		"cors":              b.CORS,
	}
	if len(b.NotificationConfigs) > 0 {
		m["notificationConfigs"] = b.NotificationConfigs
	}
	return m
}

func objectResource(baseURL string, o *model.Object) map[string]interface{} {
	return map[string]interface{}{
		"kind":           "storage#object",
		"id":             o.ID,
		"name":           o.Name,
		"bucket":         o.BucketID,
		"generation":     wire.FormatGeneration(o.Generation),
		"metageneration": wire.FormatGeneration(o.Metageneration),
		"contentType":    o.ContentType,
		"size":           fmt.Sprintf("%d", o.Size),
		"md5Hash":        o.MD5,
		"crc32c":         o.CRC32C,
		"storageClass":   o.StorageClass,
		"timeCreated":    wire.FormatTime(o.TimeCreated),
		"updated":        wire.FormatTime(o.UpdatedAt),
		"metadata":       o.CustomMetadata,
		"selfLink":       selfLink(baseURL, "storage/v1/b", o.BucketID, "o", o.Name),
	}
}

func versionResource(baseURL string, v *model.ObjectVersion) map[string]interface{} {
	return map[string]interface{}{
		"kind":           "storage#object",
		"id":             v.ID,
		"name":           v.Name,
		"bucket":         v.BucketID,
		"generation":     wire.FormatGeneration(v.Generation),
		"metageneration": wire.FormatGeneration(v.Metageneration),
		"contentType":    v.ContentType,
		"size":           fmt.Sprintf("%d", v.Size),
		"md5Hash":        v.MD5,
		"crc32c":         v.CRC32C,
		"storageClass":   v.StorageClass,
		"timeCreated":    wire.FormatTime(v.CreatedAt),
		"metadata":       v.CustomMetadata,
		"selfLink":       selfLink(baseURL, "storage/v1/b", v.BucketID, "o", v.Name),
	}
}

func instanceResource(baseURL string, in *model.Instance, nics []*model.NetworkInterface) map[string]interface{} {
	wireNics := make([]map[string]interface{}, 0, len(nics))
	for _, n := range nics {
		wireNics = append(wireNics, map[string]interface{}{
			"name":       n.Name,
			"network":    n.NetworkRef,
			"subnetwork": n.SubnetRef,
			"networkIP":  n.InternalIP,
		})
	}
	m := map[string]interface{}{
		"kind":              "compute#instance",
		"id":                in.ID,
		"name":              in.Name,
		"zone":              in.Zone,
		"machineType":       in.MachineType,
		"status":            string(in.Status),
		"networkInterfaces": wireNics,
		"labels":            in.Labels,
		"tags":              map[string]interface{}{"items": in.Tags},
		"metadata":          metadataItems(in.Metadata),
		"creationTimestamp": wire.FormatTime(in.CreatedAt),
		"selfLink":          selfLink(baseURL, "compute/v1/projects", in.ProjectID, "zones", in.Zone, "instances", in.Name),
	}
	return m
}

func metadataItems(m map[string]string) map[string]interface{} {
	items := make([]map[string]string, 0, len(m))
	for k, v := range m {
		items = append(items, map[string]string{"key": k, "value": v})
	}
	return map[string]interface{}{"kind": "compute#metadata", "items": items}
}

func networkResource(baseURL string, n *model.Network) map[string]interface{} {
	return map[string]interface{}{
		"kind":                  "compute#network",
		"id":                    n.ID,
		"name":                  n.Name,
		"autoCreateSubnetworks": n.AutoCreateSubnets,
		"routingConfig":         map[string]interface{}{"routingMode": string(n.RoutingMode)},
		"mtu":                   n.MTU,
		"creationTimestamp":     wire.FormatTime(n.CreatedAt),
		"selfLink":              selfLink(baseURL, "compute/v1/projects", n.ProjectID, "global/networks", n.Name),
	}
}

func subnetResource(baseURL, projectID string, sn *model.Subnetwork) map[string]interface{} {
	return map[string]interface{}{
		"kind":                  "compute#subnetwork",
		"id":                    sn.ID,
		"name":                  sn.Name,
		"network":               sn.NetworkRef,
		"region":                sn.Region,
		"ipCidrRange":           sn.CIDR,
		"gatewayAddress":        sn.GatewayIP,
		"privateIpGoogleAccess": sn.PrivateGoogleAccess,
		"creationTimestamp":     wire.FormatTime(sn.CreatedAt),
		"selfLink":              selfLink(baseURL, "compute/v1/projects", projectID, "regions", sn.Region, "subnetworks", sn.Name),
	}
}

func firewallResource(f *model.FirewallRule) map[string]interface{} {
	return map[string]interface{}{
		"kind":               "compute#firewall",
		"id":                 f.ID,
		"name":               f.Name,
		"network":            f.NetworkRef,
		"priority":           f.Priority,
		"direction":          string(f.Direction),
		"allowed":            f.Allowed,
		"denied":             f.Denied,
		"sourceRanges":       f.SourceRanges,
		"destinationRanges":  f.DestRanges,
		"sourceTags":         f.SourceTags,
		"targetTags":         f.TargetTags,
		"creationTimestamp":  wire.FormatTime(f.CreatedAt),
	}
}

func routeResource(rt *model.Route) map[string]interface{} {
	return map[string]interface{}{
		"kind":              "compute#route",
		"id":                rt.ID,
		"name":              rt.Name,
		"network":           rt.NetworkRef,
		"destRange":         rt.DestRange,
		"priority":          rt.Priority,
		"nextHopGateway":    rt.NextHop,
		"tags":              rt.Tags,
		"creationTimestamp": wire.FormatTime(rt.CreatedAt),
	}
}

func peeringResource(p *model.VPCPeering) map[string]interface{} {
	return map[string]interface{}{
		"name":                 p.Name,
		"network":              p.PeerNetworkRef,
		"state":                string(p.State),
		"autoCreateRoutes":     p.AutoCreateRoutes,
		"exchangeSubnetRoutes": p.ExchangeSubnetRoutes,
	}
}

func addressResource(a *model.Address) map[string]interface{} {
	return map[string]interface{}{
		"kind":        "compute#address",
		"id":          a.ID,
		"name":        a.Name,
		"address":     a.IP,
		"addressType": a.Type,
		"status":      string(a.Status),
		"networkTier": string(a.NetworkTier),
		"region":      a.Region,
		"creationTimestamp": wire.FormatTime(a.CreatedAt),
	}
}

func routerResource(rt *model.Router) map[string]interface{} {
	return map[string]interface{}{
		"kind":              "compute#router",
		"id":                rt.ID,
		"name":              rt.Name,
		"network":           rt.NetworkRef,
		"region":            rt.Region,
		"bgp":               map[string]interface{}{"asn": rt.BGPAsn, "keepaliveInterval": rt.KeepaliveSec},
		"creationTimestamp": wire.FormatTime(rt.CreatedAt),
	}
}

func vpnTunnelResource(v *model.VPNTunnel) map[string]interface{} {
	return map[string]interface{}{
		"kind":              "compute#vpnTunnel",
		"id":                v.ID,
		"name":              v.Name,
		"network":           v.NetworkRef,
		"region":            v.Region,
		"peerIp":            v.PeerIP,
		"gatewayIp":         v.GatewayIP,
		"creationTimestamp": wire.FormatTime(v.CreatedAt),
	}
}

func serviceAccountResource(sa *model.ServiceAccount) map[string]interface{} {
	return map[string]interface{}{
		"name":        "projects/" + sa.ProjectID + "/serviceAccounts/" + sa.Email,
		"projectId":   sa.ProjectID,
		"email":       sa.Email,
		"displayName": sa.DisplayName,
		"uniqueId":    sa.UniqueID,
		"disabled":    sa.Disabled,
	}
}

func keyResource(k *model.ServiceAccountKey) map[string]interface{} {
	return map[string]interface{}{
		"name":            k.ServiceAccountEmail + "/keys/" + k.ID,
		"privateKeyData":  k.PrivateKeyData,
		"keyAlgorithm":    k.KeyAlgorithm,
		"validAfterTime":  wire.FormatTime(k.ValidAfter),
		"validBeforeTime": wire.FormatTime(k.ValidBefore),
		"disabled":        k.Disabled,
	}
}

func policyResource(p *model.IamPolicy) map[string]interface{} {
	return map[string]interface{}{
		"version":  p.Version,
		"etag":     p.ETag,
		"bindings": p.Bindings,
	}
}
