// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package nm

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/runetale/killswitch/types/family"
)

const (
	methodAuto     = "auto"
	methodManual   = "manual"
	methodDisabled = "disabled"
)

// ProfileSpec describes one blackhole connection to register with
// NetworkManager. A spec is scoped to a single address family; the other
// family is explicitly disabled on the resulting connection.
type ProfileSpec struct {
	ID            string
	InterfaceName string
	Family        family.Family
	Method        string
	Addresses     []string // CIDR, manual method only
	Gateway       string
	DNS           []string
	DNSPriority   int32
	RouteMetric   int64
	IgnoreAutoDNS bool
	Routes        []string // destination CIDRs swallowed by the sink
	Permanent     bool     // saved to disk so the profile survives reboots
}

// connectionSettings converts a spec into NetworkManager connection
// settings (a{sa{sv}}) for a dummy-type connection. It returns the
// generated connection uuid alongside the settings.
func connectionSettings(spec ProfileSpec) (map[string]map[string]dbus.Variant, string, error) {
	id := uuid.NewString()

	conn := map[string]dbus.Variant{
		"id":             dbus.MakeVariant(spec.ID),
		"uuid":           dbus.MakeVariant(id),
		"type":           dbus.MakeVariant("dummy"),
		"interface-name": dbus.MakeVariant(spec.InterfaceName),
		"autoconnect":    dbus.MakeVariant(spec.Permanent),
	}

	ipSection, err := ipSettings(spec)
	if err != nil {
		return nil, "", err
	}

	disabled := map[string]dbus.Variant{
		"method": dbus.MakeVariant(methodDisabled),
	}

	settings := map[string]map[string]dbus.Variant{
		"connection": conn,
	}

	switch spec.Family {
	case family.IPv4:
		settings["ipv4"] = ipSection
		settings["ipv6"] = disabled
	case family.IPv6:
		settings["ipv6"] = ipSection
		settings["ipv4"] = disabled
	default:
		return nil, "", fmt.Errorf("unsupported address family %s", spec.Family)
	}

	return settings, id, nil
}

func ipSettings(spec ProfileSpec) (map[string]dbus.Variant, error) {
	s := map[string]dbus.Variant{
		"method":          dbus.MakeVariant(spec.Method),
		"dns-priority":    dbus.MakeVariant(spec.DNSPriority),
		"route-metric":    dbus.MakeVariant(spec.RouteMetric),
		"ignore-auto-dns": dbus.MakeVariant(spec.IgnoreAutoDNS),
	}

	if len(spec.Addresses) > 0 {
		addrs := make([]map[string]dbus.Variant, 0, len(spec.Addresses))
		for _, a := range spec.Addresses {
			p, err := netip.ParsePrefix(a)
			if err != nil {
				return nil, fmt.Errorf("failed to parse address %s, because %w", a, err)
			}
			addrs = append(addrs, map[string]dbus.Variant{
				"address": dbus.MakeVariant(p.Addr().String()),
				"prefix":  dbus.MakeVariant(uint32(p.Bits())),
			})
		}
		s["address-data"] = dbus.MakeVariant(addrs)
	}

	if spec.Gateway != "" {
		s["gateway"] = dbus.MakeVariant(spec.Gateway)
	}

	if len(spec.Routes) > 0 {
		routes := make([]map[string]dbus.Variant, 0, len(spec.Routes))
		for _, r := range spec.Routes {
			p, err := netip.ParsePrefix(r)
			if err != nil {
				return nil, fmt.Errorf("failed to parse route %s, because %w", r, err)
			}
			routes = append(routes, map[string]dbus.Variant{
				"dest":   dbus.MakeVariant(p.Addr().String()),
				"prefix": dbus.MakeVariant(uint32(p.Bits())),
			})
		}
		s["route-data"] = dbus.MakeVariant(routes)
	}

	if len(spec.DNS) > 0 {
		if spec.Family == family.IPv4 {
			dns := make([]uint32, 0, len(spec.DNS))
			for _, d := range spec.DNS {
				addr, err := netip.ParseAddr(d)
				if err != nil || !addr.Is4() {
					return nil, fmt.Errorf("invalid ipv4 dns server %s", d)
				}
				b := addr.As4()
				dns = append(dns, binary.LittleEndian.Uint32(b[:]))
			}
			s["dns"] = dbus.MakeVariant(dns)
		} else {
			dns := make([][]byte, 0, len(spec.DNS))
			for _, d := range spec.DNS {
				addr, err := netip.ParseAddr(d)
				if err != nil || !addr.Is6() {
					return nil, fmt.Errorf("invalid ipv6 dns server %s", d)
				}
				b := addr.As16()
				dns = append(dns, b[:])
			}
			s["dns"] = dbus.MakeVariant(dns)
		}
	}

	return s, nil
}

// familyFromSettings derives the managed address family of an observed
// connection from which ip section is not disabled.
func familyFromSettings(settings map[string]map[string]dbus.Variant) family.Family {
	if settingsString(settings, "ipv4", "method") == methodDisabled {
		return family.IPv6
	}
	return family.IPv4
}

func settingsString(settings map[string]map[string]dbus.Variant, section, key string) string {
	sec, ok := settings[section]
	if !ok {
		return ""
	}
	v, ok := sec[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}
