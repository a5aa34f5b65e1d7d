// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package nm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/runetale/killswitch/killswitch"
)

func Test_TimedOutCallBecomesTimeoutError(t *testing.T) {
	c := &Client{}

	err := c.wrapErr("activate profile", fmt.Errorf("call: %w", context.DeadlineExceeded))

	var timeout *killswitch.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError for a deadline, got %T: %v", err, err)
	}
	if timeout.Op != "activate profile" {
		t.Fatalf("unexpected op %s", timeout.Op)
	}
}

func Test_DefinitiveFailureStaysUntyped(t *testing.T) {
	c := &Client{}

	err := c.wrapErr("delete profile", errors.New("permission denied"))

	var timeout *killswitch.TimeoutError
	if errors.As(err, &timeout) {
		t.Fatalf("a definitive failure must not look like a timeout: %v", err)
	}
	if err == nil {
		t.Fatal("expected the failure to be surfaced")
	}
}

func Test_NotFoundErrorNames(t *testing.T) {
	gone := []string{
		"org.freedesktop.NetworkManager.UnknownConnection",
		"org.freedesktop.NetworkManager.ConnectionNotActive",
		"org.freedesktop.DBus.Error.UnknownObject",
	}
	for _, name := range gone {
		if !isNotFound(dbus.Error{Name: name}) {
			t.Errorf("expected %s to count as already gone", name)
		}
	}

	if isNotFound(dbus.Error{Name: "org.freedesktop.NetworkManager.PermissionDenied"}) {
		t.Error("a denied call must not count as already gone")
	}
	if isNotFound(errors.New("not a dbus error")) {
		t.Error("a non-dbus error must not count as already gone")
	}
}

func Test_NotFoundSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("delete: %w", dbus.Error{Name: "org.freedesktop.NetworkManager.UnknownConnection"})
	if !isNotFound(err) {
		t.Fatal("expected a wrapped not-found to still count as already gone")
	}
}
