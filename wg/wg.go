// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// Package wg inspects the local wireguard tunnel device. It is only
// used for status reporting, never for configuring the tunnel.
package wg

import (
	"errors"
	"os"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
)

// DeviceStats is a snapshot of the tunnel device the kill switch
// protects.
type DeviceStats struct {
	Name          string
	PeerCount     int
	LastHandshake time.Time
}

// Stats looks up the wireguard device with the given name. The second
// return value is false when no such device exists, which is not an
// error for status reporting.
func Stats(tunName string) (*DeviceStats, bool, error) {
	wg, err := wgctrl.New()
	if err != nil {
		return nil, false, err
	}
	defer wg.Close()

	dev, err := wg.Device(tunName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	stats := &DeviceStats{
		Name:      dev.Name,
		PeerCount: len(dev.Peers),
	}
	for _, peer := range dev.Peers {
		if peer.LastHandshakeTime.After(stats.LastHandshake) {
			stats.LastHandshake = peer.LastHandshakeTime
		}
	}

	return stats, true, nil
}
