// Package vpc is the VPC control plane: networks, subnets with CIDR
// allocation and non-overlap invariants, firewall rules, routes, peering
// (which manipulates the underlying container network fabric), and IP
// pools.
package vpc

// DefaultRegionCIDRs is the fixed set of default regions and pre-assigned
// CIDRs a network's auto-create-subnets mode uses.
var DefaultRegionCIDRs = map[string]string{
	"us-central1":   "10.128.0.0/20",
	"us-east1":      "10.142.0.0/20",
	"europe-west1":  "10.132.0.0/20",
	"asia-east1":    "10.140.0.0/20",
}

// ExternalPoolCIDR is the fixed synthetic /8 ephemeral and static
// external IPs are drawn from.
const ExternalPoolCIDR = "34.0.0.0/8"

// VPNGatewayRange is the dedicated range VPN tunnels synthesize fake
// gateway IPs from.
const VPNGatewayRange = "169.254.0.0/16"
