package vpc

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

// rfc1035Name matches the RFC-1035 label shape required of firewall
// rule, route, and similar resource names.
var rfc1035Name = regexp.MustCompile(`^[a-z]([-a-z0-9]*[a-z0-9])?$`)

func validateRFC1035Name(name string) error {
	if len(name) == 0 || len(name) > 63 || !rfc1035Name.MatchString(name) {
		return cmn.NewInvalidArgument("name %q must be a valid RFC-1035 label", name)
	}
	return nil
}

var allowedProtocols = map[string]bool{
	"tcp": true, "udp": true, "icmp": true, "esp": true, "ah": true, "sctp": true, "all": true,
}

// validatePortString accepts a single port or an S-E range, all within
// [0,65535].
func validatePortString(p string) error {
	parts := strings.SplitN(p, "-", 2)
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 65535 {
			return cmn.NewInvalidArgument("port %q out of range [0,65535]", p)
		}
	}
	if len(parts) == 2 {
		lo, _ := strconv.Atoi(parts[0])
		hi, _ := strconv.Atoi(parts[1])
		if lo > hi {
			return cmn.NewInvalidArgument("port range %q has start > end", p)
		}
	}
	return nil
}

func validateCIDRSyntax(cidr string) error {
	_, err := parseStrictCIDR(cidr)
	return err
}

// CreateFirewallRule validates names, direction enums, protocol names in
// a fixed set, port strings, and CIDR syntax. Firewall rules are pure
// metadata - no packet inspection.
func (s *Service) CreateFirewallRule(f *model.FirewallRule) (*model.FirewallRule, error) {
	if err := validateRFC1035Name(f.Name); err != nil {
		return nil, err
	}
	if f.Direction != model.DirectionIngress && f.Direction != model.DirectionEgress {
		return nil, cmn.NewInvalidArgument("direction must be INGRESS or EGRESS")
	}
	if f.Priority < 0 || f.Priority > 65535 {
		return nil, cmn.NewInvalidArgument("priority %d out of range [0,65535]", f.Priority)
	}
	for _, entries := range [][]model.ProtocolEntry{f.Allowed, f.Denied} {
		for _, pe := range entries {
			proto := strings.ToLower(pe.Protocol)
			if !allowedProtocols[proto] {
				return nil, cmn.NewInvalidArgument("unknown protocol %q", pe.Protocol)
			}
			for _, port := range pe.Ports {
				if err := validatePortString(port); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, cidr := range append(append([]string{}, f.SourceRanges...), f.DestRanges...) {
		if err := validateCIDRSyntax(cidr); err != nil {
			return nil, err
		}
	}
	f.ID = cmn.NewID()
	f.CreatedAt = s.clock.Now()
	if err := s.firewalls.Create(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) GetFirewallRule(id string) (*model.FirewallRule, error) { return s.firewalls.Get(id) }
func (s *Service) DeleteFirewallRule(id string) error                    { return s.firewalls.Delete(id) }
func (s *Service) ListFirewallRules(networkID string) ([]*model.FirewallRule, error) {
	return s.firewalls.ListByNetwork(networkID)
}
