// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// Package wgks is the WireGuard kill switch controller. It blocks
// general traffic by registering dummy blackhole connections with
// NetworkManager, one per address family, at a route metric between the
// tunnel and the physical interfaces.
//
// The live NetworkManager profile set is the source of truth. The
// controller's in-memory state is a cache that every operation (and the
// constructor) reconciles against what the service actually has, so a
// crashed run, an out-of-band nmcli edit, or a flipped kernel IPv6
// setting are all repaired instead of compounded.
package wgks

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/runetale/killswitch/killswitch"
	"github.com/runetale/killswitch/log"
	"github.com/runetale/killswitch/net/ipv6probe"
	"github.com/runetale/killswitch/net/routecheck"
	"github.com/runetale/killswitch/nm"
	"github.com/runetale/killswitch/semaphore"
	"github.com/runetale/killswitch/types/family"
)

// NetworkService is the call boundary to the network configuration
// service. *nm.Client implements it; tests inject fakes.
type NetworkService interface {
	CreateProfile(ctx context.Context, spec nm.ProfileSpec) (nm.Profile, error)
	Activate(ctx context.Context, p *nm.Profile) error
	Deactivate(ctx context.Context, p *nm.Profile) error
	Delete(ctx context.Context, p *nm.Profile) error
	ListProfiles(ctx context.Context, prefix string) ([]nm.Profile, error)
	DisableConnectivityCheck(ctx context.Context) error
	Running(ctx context.Context) bool
}

// Options configure one kill switch instance.
type Options struct {
	// Permanent saves the blackhole profiles to disk so they survive a
	// reboot. Default is in-memory profiles that vanish on restart.
	Permanent bool

	// ServerIP keeps traffic to the VPN server address allowed while
	// everything else is blocked, so the tunnel can be (re)established
	// with the switch engaged. Optional.
	ServerIP string
}

// KillSwitch implements killswitch.KillSwitch on top of NetworkManager.
type KillSwitch struct {
	svc       NetworkService
	probe     func() (bool, error)
	verify    func(ifaceName string, f family.Family) (bool, error)
	sem       semaphore.Semaphore
	permanent bool
	serverIP  netip.Addr
	log       *log.Logger

	mu       sync.Mutex
	state    killswitch.State
	profiles map[family.Family]*nm.Profile
}

var _ killswitch.KillSwitch = (*KillSwitch)(nil)

// New creates a controller and resynchronizes its state against the
// profiles NetworkManager already has. A blackhole profile left active by
// a crashed run is adopted, not duplicated, and the initial state is
// Enabled; otherwise the controller starts Disabled.
func New(ctx context.Context, svc NetworkService, logger *log.Logger, opts Options) (*KillSwitch, error) {
	var serverIP netip.Addr
	if opts.ServerIP != "" {
		ip, err := netip.ParseAddr(opts.ServerIP)
		if err != nil {
			return nil, fmt.Errorf("failed to parse server ip %s, because %w", opts.ServerIP, err)
		}
		serverIP = ip
	}

	k := &KillSwitch{
		svc:       svc,
		probe:     ipv6probe.Enabled,
		verify:    routecheck.HasDefaultRoute,
		sem:       semaphore.NewSemaphore(1),
		permanent: opts.Permanent,
		serverIP:  serverIP,
		log:       logger,
		state:     killswitch.Disabled,
		profiles:  map[family.Family]*nm.Profile{},
	}

	existing, err := svc.ListProfiles(ctx, ConnIDPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect existing kill switch profiles, because %w", err)
	}

	for i := range existing {
		p := &existing[i]
		if !p.Active {
			continue
		}
		if _, ok := k.profiles[p.Family]; ok {
			continue
		}
		k.profiles[p.Family] = p
	}

	if len(k.profiles) > 0 {
		k.state = killswitch.Enabled
		logger.Logger.Infof("adopted %d active kill switch profile(s) from a previous run", len(k.profiles))
	}

	return k, nil
}

// Enable blocks general traffic. Idempotent: calling it while already
// enabled re-runs the reconciliation, creating the IPv6 profile if IPv6
// became available since the last call and removing it if it became
// unavailable, without disturbing an already-correct IPv4 profile.
func (k *KillSwitch) Enable(ctx context.Context) error {
	if !k.sem.TryAcquire() {
		return killswitch.ErrBusy
	}
	defer k.sem.Release()

	return k.reconcile(ctx)
}

// Update re-runs Enable's reconciliation after a network topology change.
// It is a no-op while the switch is disabled.
func (k *KillSwitch) Update(ctx context.Context) error {
	if !k.sem.TryAcquire() {
		return killswitch.ErrBusy
	}
	defer k.sem.Release()

	if k.Status() == killswitch.Disabled {
		return nil
	}
	return k.reconcile(ctx)
}

// Disable deletes every managed profile. It always ends Disabled:
// deletion failures are reported to the caller but do not leave the
// switch stuck on, since blocking traffic forever after being asked to
// stop is worse than a stray profile.
func (k *KillSwitch) Disable(ctx context.Context) error {
	if !k.sem.TryAcquire() {
		return killswitch.ErrBusy
	}
	defer k.sem.Release()

	k.setState(killswitch.Disabling)

	profiles, err := k.svc.ListProfiles(ctx, ConnIDPrefix)
	if err != nil {
		k.log.Logger.Warnf("failed to list profiles on disable, falling back to cached state, because %v", err)
		profiles = k.cachedProfiles()
	}

	var errs []error
	for i := range profiles {
		p := &profiles[i]
		if err := k.svc.Deactivate(ctx, p); err != nil {
			k.log.Logger.Warnf("failed to deactivate %s profile %s, because %v", p.Family, p.ID, err)
		}
		if err := k.svc.Delete(ctx, p); err != nil {
			errs = append(errs, &killswitch.ProfileDeleteError{Family: p.Family, Err: err})
		}
	}

	k.setProfiles(nil)
	k.setState(killswitch.Disabled)

	if len(errs) > 0 {
		return fmt.Errorf("kill switch disabled, but some profiles were left behind: %w", errors.Join(errs...))
	}

	k.log.Logger.Infof("kill switch disabled")
	return nil
}

// Status returns the current state.
func (k *KillSwitch) Status() killswitch.State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// reconcile drives the service's profile set toward the desired one:
// one active blackhole profile for IPv4, plus one for IPv6 when the
// kernel permits IPv6, and nothing else under our id prefix. Profiles
// already present are adopted. On partial failure every profile created
// by this pass is rolled back and the controller lands in Failed.
func (k *KillSwitch) reconcile(ctx context.Context) error {
	k.setState(killswitch.Enabling)

	if err := k.svc.DisableConnectivityCheck(ctx); err != nil {
		k.log.Logger.Warnf("failed to disable connectivity check, because %v", err)
	}

	// Re-probed every pass: the kernel setting can change between runs.
	// A probe failure means the kernel state is unknown, so fail closed
	// and manage IPv4 only.
	ipv6OK, probeErr := k.probe()
	if probeErr != nil {
		k.log.Logger.Warnf("%v", &killswitch.ProbeError{Err: probeErr})
		ipv6OK = false
	}

	existing, err := k.svc.ListProfiles(ctx, ConnIDPrefix)
	if err != nil {
		k.setState(killswitch.Failed)
		return fmt.Errorf("failed to inspect existing kill switch profiles, because %w", err)
	}

	targets := []family.Family{family.IPv4}
	if ipv6OK {
		targets = append(targets, family.IPv6)
	} else {
		k.log.Logger.Debugf("ipv6 is disabled at the kernel level, managing ipv4 only")
	}

	adopted := map[*nm.Profile]bool{}
	next := map[family.Family]*nm.Profile{}
	var created []*nm.Profile
	var failed []family.Family
	var errs []error

	for _, f := range targets {
		p := findProfile(existing, connID(f, k.permanent))
		if p != nil {
			adopted[p] = true
			if !p.Active {
				if err := k.svc.Activate(ctx, p); err != nil {
					failed = append(failed, f)
					errs = append(errs, &killswitch.ProfileActivateError{Family: f, Err: err})
					continue
				}
			}
			next[f] = p
			k.log.Logger.Debugf("%s kill switch profile was already present, adopted", f)
			continue
		}

		spec := buildProfileSpec(f, k.permanent, k.serverIP)
		profile, err := k.svc.CreateProfile(ctx, spec)
		if err != nil {
			failed = append(failed, f)
			errs = append(errs, &killswitch.ProfileCreateError{Family: f, Err: err})
			continue
		}
		created = append(created, &profile)

		if err := k.svc.Activate(ctx, &profile); err != nil {
			failed = append(failed, f)
			errs = append(errs, &killswitch.ProfileActivateError{Family: f, Err: err})
			continue
		}
		next[f] = &profile
	}

	// Everything under our prefix that was not adopted is stale: the
	// IPv6 profile of a host that lost IPv6, the other permanence
	// variant, or a duplicate from a crashed run.
	for i := range existing {
		p := &existing[i]
		if adopted[p] {
			continue
		}
		if err := k.svc.Delete(ctx, p); err != nil {
			// Leaving a stale IPv6 profile behind would keep it
			// activating and failing silently, so that is a real
			// failure, not a warning.
			failed = append(failed, p.Family)
			errs = append(errs, &killswitch.ProfileDeleteError{Family: p.Family, Err: err})
		} else {
			k.log.Logger.Debugf("removed stale %s profile %s", p.Family, p.ID)
		}
	}

	if len(failed) > 0 {
		for _, p := range created {
			if err := k.svc.Delete(ctx, p); err != nil {
				k.log.Logger.Warnf("rollback failed for %s profile %s, because %v", p.Family, p.ID, err)
			}
		}
		k.setProfiles(nil)
		k.setState(killswitch.Failed)
		return &killswitch.PartialFailureError{Families: failed, Errs: errs}
	}

	k.setProfiles(next)
	k.setState(killswitch.Enabled)
	k.verifyRoutes(next)

	k.log.Logger.Infof("kill switch enabled for %d address family(ies)", len(next))
	return nil
}

// verifyRoutes is advisory only: it catches the case where a profile is
// active but the blackhole route never made it into the routing table.
func (k *KillSwitch) verifyRoutes(profiles map[family.Family]*nm.Profile) {
	if k.verify == nil {
		return
	}
	for f := range profiles {
		ok, err := k.verify(interfaceName(f, k.permanent), f)
		if err != nil {
			k.log.Logger.Debugf("could not verify %s blackhole route, because %v", f, err)
			continue
		}
		if !ok {
			k.log.Logger.Warnf("%s kill switch profile is active but no default route is installed", f)
		}
	}
}

func (k *KillSwitch) cachedProfiles() []nm.Profile {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]nm.Profile, 0, len(k.profiles))
	for _, p := range k.profiles {
		out = append(out, *p)
	}
	return out
}

func (k *KillSwitch) setProfiles(profiles map[family.Family]*nm.Profile) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if profiles == nil {
		profiles = map[family.Family]*nm.Profile{}
	}
	k.profiles = profiles
}

func (k *KillSwitch) setState(s killswitch.State) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = s
}

func findProfile(profiles []nm.Profile, id string) *nm.Profile {
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i]
		}
	}
	return nil
}
