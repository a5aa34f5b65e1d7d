// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// Package nm is a thin call boundary to NetworkManager over the system
// D-Bus. It translates profile-level intents (create, activate,
// deactivate, delete, list) into D-Bus calls and surfaces NetworkManager's
// errors without interpreting them, except that "not found" on delete and
// deactivate is treated as success: the desired end state was already
// reached, typically because something outside this process removed the
// connection first.
package nm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/runetale/killswitch/killswitch"
	"github.com/runetale/killswitch/log"
	"github.com/runetale/killswitch/types/family"
)

const (
	nmDest       = "org.freedesktop.NetworkManager"
	nmPath       = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	settingsPath = dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings")

	nmInterface       = "org.freedesktop.NetworkManager"
	settingsInterface = "org.freedesktop.NetworkManager.Settings"
	connInterface     = "org.freedesktop.NetworkManager.Settings.Connection"
	activeInterface   = "org.freedesktop.NetworkManager.Connection.Active"

	propsInterface = "org.freedesktop.DBus.Properties"

	// DefaultCallTimeout bounds every call into NetworkManager. A timed
	// out call is not a definitive failure; see killswitch.TimeoutError.
	DefaultCallTimeout = 5 * time.Second
)

// D-Bus error names that mean the object is already gone or inactive.
var notFoundErrNames = []string{
	"org.freedesktop.NetworkManager.UnknownConnection",
	"org.freedesktop.NetworkManager.ConnectionNotActive",
	"org.freedesktop.DBus.Error.UnknownObject",
}

// Profile is a blackhole connection as last observed from NetworkManager.
// Once created it is owned by the kill switch controller until explicitly
// deleted.
type Profile struct {
	ID         string
	UUID       string
	Family     family.Family
	Path       dbus.ObjectPath
	ActivePath dbus.ObjectPath
	Active     bool
}

// Client wraps a system bus connection to NetworkManager.
type Client struct {
	conn     *dbus.Conn
	nm       dbus.BusObject
	settings dbus.BusObject
	timeout  time.Duration
	log      *log.Logger
}

func NewClient(logger *log.Logger) (*Client, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus, because %w", err)
	}

	return &Client{
		conn:     conn,
		nm:       conn.Object(nmDest, nmPath),
		settings: conn.Object(nmDest, settingsPath),
		timeout:  DefaultCallTimeout,
		log:      logger,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Running reports whether the NetworkManager daemon currently owns its
// bus name.
func (c *Client) Running(ctx context.Context) bool {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	var owned bool
	err := c.conn.BusObject().CallWithContext(
		ctx, "org.freedesktop.DBus.NameHasOwner", 0, nmDest,
	).Store(&owned)
	if err != nil {
		c.log.Logger.Warnf("failed to query bus name owner, because %v", err)
		return false
	}
	return owned
}

// CreateProfile registers the connection described by spec. Permanent
// specs are saved to disk, everything else stays in memory only so a
// reboot clears it.
func (c *Client) CreateProfile(ctx context.Context, spec ProfileSpec) (Profile, error) {
	settings, id, err := connectionSettings(spec)
	if err != nil {
		return Profile{}, err
	}

	method := settingsInterface + ".AddConnectionUnsaved"
	if spec.Permanent {
		method = settingsInterface + ".AddConnection"
	}

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	var path dbus.ObjectPath
	err = c.settings.CallWithContext(opCtx, method, 0, settings).Store(&path)
	if err != nil {
		return Profile{}, c.wrapErr("create profile", err)
	}

	c.log.Logger.Debugf("created %s profile %s at %s", spec.Family, spec.ID, path)

	return Profile{
		ID:     spec.ID,
		UUID:   id,
		Family: spec.Family,
		Path:   path,
	}, nil
}

// Activate asks NetworkManager to bring the profile's connection up. The
// device and specific-object arguments are left to NetworkManager since a
// dummy connection carries its own interface.
func (c *Client) Activate(ctx context.Context, p *Profile) error {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	var activePath dbus.ObjectPath
	err := c.nm.CallWithContext(
		opCtx, nmInterface+".ActivateConnection", 0,
		p.Path, dbus.ObjectPath("/"), dbus.ObjectPath("/"),
	).Store(&activePath)
	if err != nil {
		return c.wrapErr("activate profile", err)
	}

	p.ActivePath = activePath
	p.Active = true
	c.log.Logger.Debugf("activated profile %s (%s)", p.ID, activePath)
	return nil
}

// Deactivate brings the profile's active connection down. A connection
// that is not active counts as success.
func (c *Client) Deactivate(ctx context.Context, p *Profile) error {
	if p.ActivePath == "" {
		return nil
	}

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	err := c.nm.CallWithContext(
		opCtx, nmInterface+".DeactivateConnection", 0, p.ActivePath,
	).Err
	if err != nil {
		if isNotFound(err) {
			c.log.Logger.Debugf("profile %s was already inactive", p.ID)
		} else {
			return c.wrapErr("deactivate profile", err)
		}
	}

	p.ActivePath = ""
	p.Active = false
	return nil
}

// Delete removes the profile's connection from NetworkManager. A
// connection that no longer exists counts as success.
func (c *Client) Delete(ctx context.Context, p *Profile) error {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	err := c.conn.Object(nmDest, p.Path).CallWithContext(
		opCtx, connInterface+".Delete", 0,
	).Err
	if err != nil {
		if isNotFound(err) {
			c.log.Logger.Debugf("profile %s was already gone", p.ID)
			return nil
		}
		return c.wrapErr("delete profile", err)
	}

	c.log.Logger.Debugf("deleted profile %s", p.ID)
	return nil
}

// ListProfiles returns every registered connection whose id starts with
// prefix, with activation status resolved against the live active
// connection list.
func (c *Client) ListProfiles(ctx context.Context, prefix string) ([]Profile, error) {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	var paths []dbus.ObjectPath
	err := c.settings.CallWithContext(
		opCtx, settingsInterface+".ListConnections", 0,
	).Store(&paths)
	if err != nil {
		return nil, c.wrapErr("list profiles", err)
	}

	actives, err := c.activeConnections(opCtx)
	if err != nil {
		return nil, err
	}

	var profiles []Profile
	for _, path := range paths {
		var settings map[string]map[string]dbus.Variant
		err := c.conn.Object(nmDest, path).CallWithContext(
			opCtx, connInterface+".GetSettings", 0,
		).Store(&settings)
		if err != nil {
			if isNotFound(err) {
				// Racing against an out-of-band delete.
				continue
			}
			return nil, c.wrapErr("list profiles", err)
		}

		id := settingsString(settings, "connection", "id")
		if !strings.HasPrefix(id, prefix) {
			continue
		}

		p := Profile{
			ID:     id,
			UUID:   settingsString(settings, "connection", "uuid"),
			Family: familyFromSettings(settings),
			Path:   path,
		}
		if activePath, ok := actives[p.UUID]; ok {
			p.Active = true
			p.ActivePath = activePath
		}
		profiles = append(profiles, p)
	}

	return profiles, nil
}

// DisableConnectivityCheck turns NetworkManager's connectivity check off.
// With the check enabled, dummy connections get their route metric
// inflated and the blackhole no longer outranks the physical interfaces.
func (c *Client) DisableConnectivityCheck(ctx context.Context) error {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	enabled, err := c.getProperty(opCtx, c.nm, nmInterface, "ConnectivityCheckEnabled")
	if err == nil {
		if v, ok := enabled.Value().(bool); ok && !v {
			return nil
		}
	}

	err = c.nm.CallWithContext(
		opCtx, propsInterface+".Set", 0,
		nmInterface, "ConnectivityCheckEnabled", dbus.MakeVariant(false),
	).Err
	if err != nil {
		return c.wrapErr("disable connectivity check", err)
	}

	c.log.Logger.Infof("network connectivity check was disabled")
	return nil
}

func (c *Client) activeConnections(ctx context.Context) (map[string]dbus.ObjectPath, error) {
	prop, err := c.getProperty(ctx, c.nm, nmInterface, "ActiveConnections")
	if err != nil {
		return nil, c.wrapErr("list active connections", err)
	}

	paths, ok := prop.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("unexpected ActiveConnections type %T", prop.Value())
	}

	actives := make(map[string]dbus.ObjectPath, len(paths))
	for _, path := range paths {
		obj := c.conn.Object(nmDest, path)
		uuidProp, err := c.getProperty(ctx, obj, activeInterface, "Uuid")
		if err != nil {
			// The active connection may have gone away between the
			// property read and now.
			continue
		}
		if id, ok := uuidProp.Value().(string); ok {
			actives[id] = path
		}
	}

	return actives, nil
}

// getProperty reads a D-Bus property through Properties.Get so the call
// honors the same deadline as every other call into NetworkManager.
// BusObject.GetProperty has no context variant and can block forever on a
// hung daemon.
func (c *Client) getProperty(ctx context.Context, obj dbus.BusObject, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propsInterface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &killswitch.TimeoutError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	var dbusErr dbus.Error
	if !errors.As(err, &dbusErr) {
		return false
	}
	for _, name := range notFoundErrNames {
		if dbusErr.Name == name {
			return true
		}
	}
	return false
}
