// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wgks

import (
	"context"
	"errors"
	"fmt"
)

// ProtocolWireGuard is the only tunnel protocol this backend serves.
const ProtocolWireGuard = "wireguard"

// Validate reports whether this backend can manage a kill switch for the
// given tunnel protocol on this host. The VPN client calls it before
// constructing a controller.
func Validate(ctx context.Context, protocol string, svc NetworkService) error {
	if protocol != ProtocolWireGuard {
		return fmt.Errorf("unsupported tunnel protocol %q", protocol)
	}

	if !svc.Running(ctx) {
		return errors.New("NetworkManager is not running")
	}

	return nil
}
