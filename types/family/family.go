// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package family

import "fmt"

// Family is an IP address family. The kill switch manages one blackhole
// connection per family, because kernel-level IPv6 availability varies
// per host and the two families are torn down independently.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// All returns the families in the order they are reconciled.
func All() []Family {
	return []Family{IPv4, IPv6}
}
