// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// Package routecheck inspects the kernel routing table to confirm that a
// blackhole connection actually took over the default route. The check is
// advisory: the network configuration service remains the source of truth
// for profile state, this only catches the "profile active but route
// missing" glitch seen after connection switches.
package routecheck

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/runetale/killswitch/types/family"
)

// HasDefaultRoute reports whether the main routing table holds a default
// route for the given family through the named interface.
func HasDefaultRoute(ifaceName string, f family.Family) (bool, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return false, fmt.Errorf("failed to find interface %s, because %w", ifaceName, err)
	}

	nlFamily := netlink.FAMILY_V4
	if f == family.IPv6 {
		nlFamily = netlink.FAMILY_V6
	}

	filter := &netlink.Route{Table: unix.RT_TABLE_MAIN}
	routes, err := netlink.RouteListFiltered(nlFamily, filter, netlink.RT_FILTER_TABLE)
	if err != nil {
		return false, fmt.Errorf("failed to list %s routes, because %w", f, err)
	}

	for _, r := range routes {
		if r.LinkIndex != iface.Index {
			continue
		}
		// A nil or zero-length destination is the default route.
		if r.Dst == nil {
			return true, nil
		}
		if ones, _ := r.Dst.Mask.Size(); ones == 0 {
			return true, nil
		}
	}

	return false, nil
}
