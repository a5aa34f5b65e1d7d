// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wgks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/runetale/killswitch/killswitch"
	"github.com/runetale/killswitch/log"
	"github.com/runetale/killswitch/nm"
	"github.com/runetale/killswitch/types/family"
)

// fakeService is an in-memory stand-in for NetworkManager. It mirrors
// the adapter's idempotent delete/deactivate semantics.
type fakeService struct {
	profiles map[string]*nm.Profile // keyed by uuid

	nextUUID    int
	createCalls map[family.Family]int

	createErr   map[family.Family]error
	activateErr map[family.Family]error
	deleteErr   map[string]error // keyed by connection id
	listErr     error
	running     bool
}

func newFakeService() *fakeService {
	return &fakeService{
		profiles:    map[string]*nm.Profile{},
		createCalls: map[family.Family]int{},
		createErr:   map[family.Family]error{},
		activateErr: map[family.Family]error{},
		deleteErr:   map[string]error{},
		running:     true,
	}
}

func (s *fakeService) seed(id string, f family.Family, active bool) *nm.Profile {
	s.nextUUID++
	uuid := fmt.Sprintf("seeded-%d", s.nextUUID)
	p := &nm.Profile{ID: id, UUID: uuid, Family: f, Active: active}
	s.profiles[uuid] = p
	return p
}

func (s *fakeService) CreateProfile(_ context.Context, spec nm.ProfileSpec) (nm.Profile, error) {
	s.createCalls[spec.Family]++
	if err := s.createErr[spec.Family]; err != nil {
		return nm.Profile{}, err
	}

	s.nextUUID++
	uuid := fmt.Sprintf("uuid-%d", s.nextUUID)
	p := nm.Profile{ID: spec.ID, UUID: uuid, Family: spec.Family}
	stored := p
	s.profiles[uuid] = &stored
	return p, nil
}

func (s *fakeService) Activate(_ context.Context, p *nm.Profile) error {
	if err := s.activateErr[p.Family]; err != nil {
		return err
	}
	if stored, ok := s.profiles[p.UUID]; ok {
		stored.Active = true
	}
	p.Active = true
	return nil
}

func (s *fakeService) Deactivate(_ context.Context, p *nm.Profile) error {
	if stored, ok := s.profiles[p.UUID]; ok {
		stored.Active = false
	}
	p.Active = false
	return nil
}

func (s *fakeService) Delete(_ context.Context, p *nm.Profile) error {
	if err := s.deleteErr[p.ID]; err != nil {
		return err
	}
	delete(s.profiles, p.UUID)
	return nil
}

func (s *fakeService) ListProfiles(_ context.Context, prefix string) ([]nm.Profile, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []nm.Profile
	for _, p := range s.profiles {
		if len(p.ID) >= len(prefix) && p.ID[:len(prefix)] == prefix {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeService) DisableConnectivityCheck(context.Context) error { return nil }

func (s *fakeService) Running(context.Context) bool { return s.running }

func (s *fakeService) byFamily(f family.Family) []*nm.Profile {
	var out []*nm.Profile
	for _, p := range s.profiles {
		if p.Family == f {
			out = append(out, p)
		}
	}
	return out
}

func testLogger() *log.Logger {
	return &log.Logger{Logger: zap.NewNop().Sugar()}
}

func newTestKillSwitch(t *testing.T, svc *fakeService, ipv6 bool) *KillSwitch {
	t.Helper()
	k, err := New(context.Background(), svc, testLogger(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	k.probe = func() (bool, error) { return ipv6, nil }
	k.verify = nil
	return k
}

func Test_EnableCreatesProfilesForBothFamilies(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)

	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := k.Status(); got != killswitch.Enabled {
		t.Fatalf("expected enabled, got %s", got)
	}
	for _, f := range family.All() {
		ps := svc.byFamily(f)
		if len(ps) != 1 {
			t.Fatalf("expected one %s profile, got %d", f, len(ps))
		}
		if !ps[0].Active {
			t.Fatalf("expected %s profile to be active", f)
		}
	}
}

func Test_EnableIsIdempotent(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)

	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, f := range family.All() {
		if got := len(svc.byFamily(f)); got != 1 {
			t.Fatalf("expected one %s profile after double enable, got %d", f, got)
		}
		if got := svc.createCalls[f]; got != 1 {
			t.Fatalf("expected one %s create call, got %d", f, got)
		}
	}
}

func Test_UpdateRemovesIPv6WhenKernelDisablesIt(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)

	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}

	k.probe = func() (bool, error) { return false, nil }
	if err := k.Update(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := k.Status(); got != killswitch.Enabled {
		t.Fatalf("expected enabled, got %s", got)
	}
	if got := len(svc.byFamily(family.IPv6)); got != 0 {
		t.Fatalf("expected no ipv6 profile after kernel disabled ipv6, got %d", got)
	}
	if got := len(svc.byFamily(family.IPv4)); got != 1 {
		t.Fatalf("expected the ipv4 profile to survive, got %d", got)
	}
	// The surviving IPv4 profile was adopted, not recreated.
	if got := svc.createCalls[family.IPv4]; got != 1 {
		t.Fatalf("expected one ipv4 create call in total, got %d", got)
	}
}

func Test_UpdateAddsIPv6WhenKernelEnablesIt(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, false)

	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(svc.byFamily(family.IPv6)); got != 0 {
		t.Fatalf("expected no ipv6 profile yet, got %d", got)
	}

	k.probe = func() (bool, error) { return true, nil }
	if err := k.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(svc.byFamily(family.IPv6)); got != 1 {
		t.Fatalf("expected an ipv6 profile after kernel enabled ipv6, got %d", got)
	}
}

func Test_ProbeFailureFailsClosed(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)
	k.probe = func() (bool, error) { return false, errors.New("sysctl unreadable") }

	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := k.Status(); got != killswitch.Enabled {
		t.Fatalf("expected enabled with ipv4 only, got %s", got)
	}
	if got := len(svc.byFamily(family.IPv4)); got != 1 {
		t.Fatalf("expected the ipv4 profile despite the probe failure, got %d", got)
	}
	if got := len(svc.byFamily(family.IPv6)); got != 0 {
		t.Fatalf("expected no ipv6 profile while the kernel state is unknown, got %d", got)
	}
}

func Test_UpdateWhileDisabledIsNoop(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)

	if err := k.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := k.Status(); got != killswitch.Disabled {
		t.Fatalf("expected disabled, got %s", got)
	}
	if len(svc.profiles) != 0 {
		t.Fatalf("expected no profiles, got %d", len(svc.profiles))
	}
}

func Test_RollbackOnPartialFailure(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)
	svc.activateErr[family.IPv6] = errors.New("activation rejected")

	err := k.Enable(context.Background())
	if err == nil {
		t.Fatal("expected enable to fail")
	}

	var partial *killswitch.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %T: %v", err, err)
	}
	if len(partial.Families) != 1 || partial.Families[0] != family.IPv6 {
		t.Fatalf("expected ipv6 to be the failed family, got %v", partial.Families)
	}

	if got := k.Status(); got != killswitch.Failed {
		t.Fatalf("expected failed, got %s", got)
	}
	// The IPv4 profile created in the same call must be rolled back.
	if len(svc.profiles) != 0 {
		t.Fatalf("expected rollback to remove all profiles, got %d", len(svc.profiles))
	}
}

func Test_RetryAfterFailure(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)
	svc.createErr[family.IPv6] = errors.New("create rejected")

	if err := k.Enable(context.Background()); err == nil {
		t.Fatal("expected enable to fail")
	}
	if got := k.Status(); got != killswitch.Failed {
		t.Fatalf("expected failed, got %s", got)
	}

	delete(svc.createErr, family.IPv6)
	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := k.Status(); got != killswitch.Enabled {
		t.Fatalf("expected enabled after retry, got %s", got)
	}
}

func Test_DisableAlwaysEndsDisabled(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)

	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	svc.deleteErr[connID(family.IPv6, false)] = errors.New("delete rejected")

	err := k.Disable(context.Background())
	if err == nil {
		t.Fatal("expected disable to report the failed deletion")
	}

	var deleteErr *killswitch.ProfileDeleteError
	if !errors.As(err, &deleteErr) {
		t.Fatalf("expected ProfileDeleteError, got %T: %v", err, err)
	}
	if got := k.Status(); got != killswitch.Disabled {
		t.Fatalf("disable must always end disabled, got %s", got)
	}
}

func Test_DisableRemovesEverything(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)

	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := k.Disable(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(svc.profiles) != 0 {
		t.Fatalf("expected empty service after disable, got %d profiles", len(svc.profiles))
	}
	if got := k.Status(); got != killswitch.Disabled {
		t.Fatalf("expected disabled, got %s", got)
	}
}

func Test_CrashRecoveryAdoptsExistingProfile(t *testing.T) {
	svc := newFakeService()
	svc.seed(connID(family.IPv4, false), family.IPv4, true)

	k, err := New(context.Background(), svc, testLogger(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	k.probe = func() (bool, error) { return false, nil }
	k.verify = nil

	if got := k.Status(); got != killswitch.Enabled {
		t.Fatalf("expected a fresh controller to resync to enabled, got %s", got)
	}

	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(svc.byFamily(family.IPv4)); got != 1 {
		t.Fatalf("expected exactly one ipv4 profile after adoption, got %d", got)
	}
	if got := svc.createCalls[family.IPv4]; got != 0 {
		t.Fatalf("expected the existing profile to be adopted, not recreated, got %d creates", got)
	}
}

func Test_EnableRemovesOtherPermanenceVariant(t *testing.T) {
	svc := newFakeService()
	svc.seed(connID(family.IPv4, true), family.IPv4, true)

	k, err := New(context.Background(), svc, testLogger(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	k.probe = func() (bool, error) { return false, nil }
	k.verify = nil

	if err := k.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}

	ps := svc.byFamily(family.IPv4)
	if len(ps) != 1 {
		t.Fatalf("expected one ipv4 profile, got %d", len(ps))
	}
	if ps[0].ID != connID(family.IPv4, false) {
		t.Fatalf("expected the session profile to replace the permanent one, got %s", ps[0].ID)
	}
}

func Test_EnableFailsWhenServiceCannotBeInspected(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)
	svc.listErr = errors.New("service unreachable")

	if err := k.Enable(context.Background()); err == nil {
		t.Fatal("expected enable to fail")
	}
	if got := k.Status(); got != killswitch.Failed {
		t.Fatalf("expected failed, got %s", got)
	}
}

func Test_BusyWhileOperationInFlight(t *testing.T) {
	svc := newFakeService()
	k := newTestKillSwitch(t, svc, true)

	if !k.sem.TryAcquire() {
		t.Fatal("expected to acquire")
	}
	defer k.sem.Release()

	if err := k.Enable(context.Background()); !errors.Is(err, killswitch.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := k.Disable(context.Background()); !errors.Is(err, killswitch.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := k.Update(context.Background()); !errors.Is(err, killswitch.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func Test_ValidateBackend(t *testing.T) {
	svc := newFakeService()

	if err := Validate(context.Background(), "openvpn", svc); err == nil {
		t.Fatal("expected an error for a non-wireguard protocol")
	}

	svc.running = false
	if err := Validate(context.Background(), ProtocolWireGuard, svc); err == nil {
		t.Fatal("expected an error while NetworkManager is down")
	}

	svc.running = true
	if err := Validate(context.Background(), ProtocolWireGuard, svc); err != nil {
		t.Fatal(err)
	}
}
