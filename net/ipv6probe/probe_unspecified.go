// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

//go:build !linux

package ipv6probe

import "errors"

// Enabled fails closed on platforms where the kernel setting cannot be
// inspected.
func Enabled() (bool, error) {
	return false, errors.New("ipv6 capability probing is not implemented on this platform")
}
