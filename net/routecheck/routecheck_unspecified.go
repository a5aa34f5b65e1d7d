// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

//go:build !linux

package routecheck

import (
	"errors"

	"github.com/runetale/killswitch/types/family"
)

func HasDefaultRoute(ifaceName string, f family.Family) (bool, error) {
	return false, errors.New("route verification is not implemented on this platform")
}
