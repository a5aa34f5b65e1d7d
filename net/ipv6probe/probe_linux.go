// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// Package ipv6probe reports whether the kernel currently permits IPv6.
//
// The answer can change between runs (ipv6.disable=1 boot parameter,
// sysctl changes), so callers re-probe on every enable/update cycle
// instead of caching the result.
package ipv6probe

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const disableIPv6Path = "/proc/sys/net/ipv6/conf/all/disable_ipv6"

// Enabled reports whether IPv6 is enabled at the kernel level.
//
// When the kernel setting cannot be read the probe returns false together
// with the cause; callers fail closed, since registering an IPv6 profile
// on a host without IPv6 support would itself error out.
func Enabled() (bool, error) {
	return enabledAt(disableIPv6Path)
}

func enabledAt(path string) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s, because %w", path, err)
	}

	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return false, fmt.Errorf("failed to parse %s, because %w", path, err)
	}

	return v == 0, nil
}
