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
)

var updateArgs struct {
	configPath string
	serverIP   string
	logFile    string
	logLevel   string
	debug      bool
}

var updateCmd = &ffcli.Command{
	Name:      "update",
	ShortHelp: "reconcile the kill switch profiles with the current host state",
	FlagSet: (func() *flag.FlagSet {
		fs := flag.NewFlagSet("update", flag.ExitOnError)
		fs.StringVar(&updateArgs.configPath, "path", paths.DefaultKillSwitchConfigFile(), "kill switch config file")
		fs.StringVar(&updateArgs.serverIP, "server-ip", "", "vpn server ip that stays reachable while blocked")
		fs.StringVar(&updateArgs.logFile, "logfile", paths.DefaultKillSwitchLogFile(), "set logfile path")
		fs.StringVar(&updateArgs.logLevel, "loglevel", log.InfoLevelStr, "set log level")
		fs.BoolVar(&updateArgs.debug, "debug", false, "for debug")
		return fs
	})(),
	Exec: execUpdate,
}

func execUpdate(ctx context.Context, args []string) error {
	logger, err := log.NewLogger("ksctl update", updateArgs.logLevel, updateArgs.logFile, updateArgs.debug)
	if err != nil {
		fmt.Printf("failed to initialize logger. because %v", err)
		return nil
	}

	spec, err := conf.NewSpec(updateArgs.configPath, logger).CreateSpec()
	if err != nil {
		fmt.Printf("failed to create kill switch conf, because %s\n", err.Error())
		return err
	}

	if updateArgs.serverIP != "" {
		spec.ServerIP = updateArgs.serverIP
	}

	ks, client, err := buildKillSwitch(ctx, spec, logger)
	if err != nil {
		logger.Logger.Errorf("failed to build kill switch, because %v", err)
		return err
	}
	defer client.Close()

	if err := ks.Update(ctx); err != nil {
		logger.Logger.Errorf("failed to update kill switch, because %v", err)
		return err
	}

	fmt.Printf("kill switch %s\n", ks.Status())

	return nil
}
