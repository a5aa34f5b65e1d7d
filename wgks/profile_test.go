// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wgks

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/runetale/killswitch/types/family"
)

func Test_ConnectionNaming(t *testing.T) {
	cases := []struct {
		f         family.Family
		permanent bool
		id        string
		iface     string
	}{
		{family.IPv4, false, "runetale-killswitch", "rnksintrf0"},
		{family.IPv4, true, "runetale-killswitch-perm", "rnksintrf1"},
		{family.IPv6, false, "runetale-killswitch-ipv6", "rnks6intrf0"},
		{family.IPv6, true, "runetale-killswitch-ipv6-perm", "rnks6intrf1"},
	}

	for _, c := range cases {
		if got := connID(c.f, c.permanent); got != c.id {
			t.Errorf("connID(%s, %t) = %s, want %s", c.f, c.permanent, got, c.id)
		}
		if got := interfaceName(c.f, c.permanent); got != c.iface {
			t.Errorf("interfaceName(%s, %t) = %s, want %s", c.f, c.permanent, got, c.iface)
		}
	}
}

func Test_IPv4SpecUsesAutomaticAddressing(t *testing.T) {
	spec := buildProfileSpec(family.IPv4, false, netip.Addr{})

	if spec.Method != "auto" {
		t.Fatalf("expected auto addressing, got %s", spec.Method)
	}
	if len(spec.Addresses) != 0 {
		t.Fatalf("the ipv4 blackhole must not pin a static address, got %v", spec.Addresses)
	}
	if len(spec.Routes) != 0 {
		t.Fatalf("expected no routes without a server ip, got %d", len(spec.Routes))
	}
	if spec.RouteMetric != 98 {
		t.Fatalf("unexpected route metric %d", spec.RouteMetric)
	}
}

func Test_IPv6SpecPinsTheSink(t *testing.T) {
	spec := buildProfileSpec(family.IPv6, false, netip.Addr{})

	if spec.Method != "manual" {
		t.Fatalf("expected manual addressing, got %s", spec.Method)
	}
	want := []string{"fdeb:446c:912d:08da::/64"}
	if diff := cmp.Diff(want, spec.Addresses); diff != "" {
		t.Fatalf("unexpected sink addresses (-want +got):\n%s", diff)
	}
	if spec.Gateway != "fdeb:446c:912d:08da::1" {
		t.Fatalf("unexpected gateway %s", spec.Gateway)
	}
}

func Test_ServerIPStaysReachable(t *testing.T) {
	server := netip.MustParseAddr("203.0.113.7")
	spec := buildProfileSpec(family.IPv4, false, server)

	if len(spec.Routes) != 32 {
		t.Fatalf("expected 32 exclusion routes, got %d", len(spec.Routes))
	}

	for _, r := range spec.Routes {
		p := netip.MustParsePrefix(r)
		if p.Contains(server) {
			t.Fatalf("route %s must not cover the server ip", r)
		}
	}

	// Everything except the server address stays covered.
	for _, other := range []string{"203.0.113.6", "203.0.113.8", "8.8.8.8", "0.0.0.0", "255.255.255.255"} {
		addr := netip.MustParseAddr(other)
		covered := false
		for _, r := range spec.Routes {
			if netip.MustParsePrefix(r).Contains(addr) {
				covered = true
				break
			}
		}
		if !covered {
			t.Fatalf("address %s escaped the blackhole", other)
		}
	}
}

func Test_ServerIPIgnoredForIPv6Profiles(t *testing.T) {
	server := netip.MustParseAddr("203.0.113.7")
	spec := buildProfileSpec(family.IPv6, false, server)
	if len(spec.Routes) != 0 {
		t.Fatalf("expected no exclusion routes on the ipv6 profile, got %d", len(spec.Routes))
	}
}
