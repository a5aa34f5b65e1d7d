// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wgks

import (
	"net/netip"

	"github.com/runetale/killswitch/nm"
	"github.com/runetale/killswitch/types/family"
)

// ConnIDPrefix is shared by every connection this package registers, so
// a fresh controller can find profiles left behind by a previous run.
const ConnIDPrefix = "runetale-killswitch"

const (
	// The IPv6 blackhole pins a ULA sink; the address only has to be
	// non-routable and stable so reconciliation recognizes the profile.
	ipv6SinkAddress = "fdeb:446c:912d:08da::/64"
	ipv6SinkGateway = "fdeb:446c:912d:08da::1"

	// The blackhole outranks physical interfaces (metric ~100+) but not
	// the wireguard tunnel, which the VPN client installs with a lower
	// metric.
	ipv4RouteMetric = 98
	ipv6RouteMetric = 95

	dnsPriority = -1400
)

func connID(f family.Family, permanent bool) string {
	id := ConnIDPrefix
	if f == family.IPv6 {
		id += "-ipv6"
	}
	if permanent {
		id += "-perm"
	}
	return id
}

func interfaceName(f family.Family, permanent bool) string {
	name := "rnksintrf"
	if f == family.IPv6 {
		name = "rnks6intrf"
	}
	if permanent {
		return name + "1"
	}
	return name + "0"
}

// buildProfileSpec produces the blackhole connection spec for one address
// family. The builder is stateless: the same inputs always yield an
// equivalent spec, identifiers are assigned later by NetworkManager.
//
// The IPv4 profile uses automatic addressing. Pinning a static address
// here used to conflict with addresses the real VPN interface assigns
// during reconnects, causing transient connectivity loss when switching
// networks.
func buildProfileSpec(f family.Family, permanent bool, serverIP netip.Addr) nm.ProfileSpec {
	spec := nm.ProfileSpec{
		ID:            connID(f, permanent),
		InterfaceName: interfaceName(f, permanent),
		Family:        f,
		DNSPriority:   dnsPriority,
		IgnoreAutoDNS: true,
		Permanent:     permanent,
	}

	switch f {
	case family.IPv4:
		spec.Method = "auto"
		spec.DNS = []string{"0.0.0.0"}
		spec.RouteMetric = ipv4RouteMetric
		if serverIP.IsValid() && serverIP.Is4() {
			// Swallow all routes except the one to the VPN server, so
			// the tunnel endpoint stays reachable while everything else
			// is blocked.
			spec.Routes = routesExcluding(serverIP)
		}
	case family.IPv6:
		spec.Method = "manual"
		spec.Addresses = []string{ipv6SinkAddress}
		spec.Gateway = ipv6SinkGateway
		spec.DNS = []string{"::1"}
		spec.RouteMetric = ipv6RouteMetric
	}

	return spec
}

// routesExcluding returns the prefixes covering all of the IPv4 space
// except ip: for every bit of ip, the sibling prefix that branches away
// from it. The result is the 32-prefix equivalent of
// 0.0.0.0/0 minus ip/32.
func routesExcluding(ip netip.Addr) []string {
	addr := ip.As4()
	out := make([]string, 0, 32)
	for bits := 1; bits <= 32; bits++ {
		sibling := addr
		sibling[(bits-1)/8] ^= byte(1) << (7 - (bits-1)%8)
		p := netip.PrefixFrom(netip.AddrFrom4(sibling), bits).Masked()
		out = append(out, p.String())
	}
	return out
}
