package vpc

import (
	"encoding/binary"
	"math/rand"
	"net"

	"github.com/cloudemu/cloudemu/internal/cmn"
)

// parseStrictCIDR validates an IPv4 CIDR with prefix length in [8,29].
func parseStrictCIDR(cidr string) (*net.IPNet, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, cmn.NewInvalidArgument("malformed CIDR %q: %v", cidr, err)
	}
	if ip.To4() == nil {
		return nil, cmn.NewInvalidArgument("CIDR %q must be IPv4", cidr)
	}
	ones, _ := ipnet.Mask.Size()
	if ones < 8 || ones > 29 {
		return nil, cmn.NewInvalidArgument("CIDR %q prefix length %d out of range [8,29]", cidr, ones)
	}
	return ipnet, nil
}

// overlaps reports whether two IPv4 CIDRs share any address.
func overlaps(a, b *net.IPNet) bool {
	return a.Contains(b.IP) || b.Contains(a.IP)
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return binary.BigEndian.Uint32(ip4)
}

func uint32ToIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}

// gatewayIP returns network+1.
func gatewayIP(ipnet *net.IPNet) string {
	return uint32ToIP(ipToUint32(ipnet.IP) + 1).String()
}

// broadcastIP returns the last address in ipnet.
func broadcastIP(ipnet *net.IPNet) net.IP {
	ones, bits := ipnet.Mask.Size()
	hostBits := bits - ones
	mask := uint32(1)<<uint(hostBits) - 1
	return uint32ToIP(ipToUint32(ipnet.IP) | mask)
}

// isReserved reports whether ip is one of the first four addresses of
// the subnet: the network address, the gateway, and two reserved.
func isReserved(ipnet *net.IPNet, ip net.IP) bool {
	base := ipToUint32(ipnet.IP)
	v := ipToUint32(ip)
	return v >= base && v <= base+3
}

// nextAvailableIP walks addresses sequentially starting at startIdx
// (an offset from the network address), skipping reserved and
// already-taken IPs. It returns the chosen IP and the index to resume
// from on the next call.
func nextAvailableIP(ipnet *net.IPNet, startIdx int, taken map[string]bool) (string, int, error) {
	base := ipToUint32(ipnet.IP)
	ones, bits := ipnet.Mask.Size()
	hostBits := bits - ones
	maxIdx := 1 << uint(hostBits)
	bcast := ipToUint32(broadcastIP(ipnet))

	for idx := startIdx; idx < maxIdx; idx++ {
		candidate := uint32ToIP(base + uint32(idx))
		if base+uint32(idx) == bcast {
			continue
		}
		if isReserved(ipnet, candidate) {
			continue
		}
		ipStr := candidate.String()
		if taken[ipStr] {
			continue
		}
		return ipStr, idx + 1, nil
	}
	return "", 0, cmn.NewResourceExhausted("subnet %s has no available addresses", ipnet.String())
}

// randomExternalIP draws a random address from ExternalPoolCIDR, retrying
// up to maxAttempts times against the supplied reserved set.
func randomExternalIP(reserved map[string]bool, maxAttempts int) (string, error) {
	_, pool, _ := net.ParseCIDR(ExternalPoolCIDR)
	base := ipToUint32(pool.IP)
	ones, bits := pool.Mask.Size()
	span := uint32(1) << uint(bits-ones)
	for i := 0; i < maxAttempts; i++ {
		candidate := uint32ToIP(base + uint32(rand.Int63n(int64(span))))
		if isReserved(pool, candidate) {
			continue
		}
		ipStr := candidate.String()
		if !reserved[ipStr] {
			return ipStr, nil
		}
	}
	return "", cmn.NewResourceExhausted("external IP pool %s exhausted after %d attempts", ExternalPoolCIDR, maxAttempts)
}

func vpnGatewayIP(seed string) string {
	_, rng, _ := net.ParseCIDR(VPNGatewayRange)
	base := ipToUint32(rng.IP)
	h := uint32(0)
	for _, c := range seed {
		h = h*31 + uint32(c)
	}
	ones, bits := rng.Mask.Size()
	span := uint32(1) << uint(bits-ones)
	return uint32ToIP(base + (h % span)).String()
}
