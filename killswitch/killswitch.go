// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// Package killswitch defines the kill switch capability contract.
//
// A kill switch blocks general network traffic whenever the VPN tunnel is
// not in the expected state, so the host never leaks traffic outside the
// tunnel. Concrete backends (one per tunnel protocol and platform service)
// implement the KillSwitch interface; the VPN client decides when to
// engage it.
package killswitch

import "context"

// State is the lifecycle state of a kill switch instance. It is owned by
// the implementing controller and only changes through the KillSwitch
// operations.
type State int

const (
	Disabled State = iota
	Enabling
	Enabled
	Disabling
	Failed
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Enabling:
		return "enabling"
	case Enabled:
		return "enabled"
	case Disabling:
		return "disabling"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// KillSwitch is the contract the VPN client programs against.
//
// Enable and Update are reconciliations: they re-derive the desired
// blackhole profile set from the host's current capabilities and from the
// platform service's live state, never from cached assumptions. All
// operations are serialized by the implementation; a call made while
// another is in flight fails with ErrBusy.
type KillSwitch interface {
	// Enable blocks general traffic. Idempotent: enabling an already
	// enabled switch re-runs the reconciliation.
	Enable(ctx context.Context) error

	// Disable removes every managed blackhole profile. It always leaves
	// the switch in the Disabled state, even if some removals fail.
	Disable(ctx context.Context) error

	// Update re-runs Enable's reconciliation after a network topology
	// change, without disturbing profiles that are already correct.
	Update(ctx context.Context) error

	// Status returns the current state.
	Status() State
}
