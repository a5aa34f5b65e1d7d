// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v2/ffcli"

	"github.com/runetale/killswitch/conf"
	"github.com/runetale/killswitch/log"
	"github.com/runetale/killswitch/paths"
	"github.com/runetale/killswitch/wg"
	"github.com/runetale/killswitch/wgks"
)

var statusArgs struct {
	configPath string
	logFile    string
	logLevel   string
	debug      bool
}

var statusCmd = &ffcli.Command{
	Name:      "status",
	ShortHelp: "show the kill switch state, its profiles and the tunnel device",
	FlagSet: (func() *flag.FlagSet {
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		fs.StringVar(&statusArgs.configPath, "path", paths.DefaultKillSwitchConfigFile(), "kill switch config file")
		fs.StringVar(&statusArgs.logFile, "logfile", paths.DefaultKillSwitchLogFile(), "set logfile path")
		fs.StringVar(&statusArgs.logLevel, "loglevel", log.InfoLevelStr, "set log level")
		fs.BoolVar(&statusArgs.debug, "debug", false, "for debug")
		return fs
	})(),
	Exec: execStatus,
}

func execStatus(ctx context.Context, args []string) error {
	logger, err := log.NewLogger("ksctl status", statusArgs.logLevel, statusArgs.logFile, statusArgs.debug)
	if err != nil {
		fmt.Printf("failed to initialize logger. because %v", err)
		return nil
	}

	spec, err := conf.NewSpec(statusArgs.configPath, logger).CreateSpec()
	if err != nil {
		fmt.Printf("failed to create kill switch conf, because %s\n", err.Error())
		return err
	}

	ks, client, err := buildKillSwitch(ctx, spec, logger)
	if err != nil {
		logger.Logger.Errorf("failed to build kill switch, because %v", err)
		return err
	}
	defer client.Close()

	fmt.Printf("kill switch: %s\n", ks.Status())

	profiles, err := client.ListProfiles(ctx, wgks.ConnIDPrefix)
	if err != nil {
		logger.Logger.Errorf("failed to list profiles, because %v", err)
		return err
	}
	for _, p := range profiles {
		state := "inactive"
		if p.Active {
			state = "active"
		}
		fmt.Printf("profile %s (%s): %s\n", p.ID, p.Family, state)
	}

	stats, found, err := wg.Stats(spec.TunName)
	if err != nil {
		logger.Logger.Warnf("failed to inspect wireguard device %s, because %v", spec.TunName, err)
		return nil
	}
	if !found {
		fmt.Printf("tunnel %s: no device\n", spec.TunName)
		return nil
	}

	fmt.Printf("tunnel %s: %d peers", stats.Name, stats.PeerCount)
	if !stats.LastHandshake.IsZero() {
		fmt.Printf(", last handshake %s", stats.LastHandshake.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()

	return nil
}
