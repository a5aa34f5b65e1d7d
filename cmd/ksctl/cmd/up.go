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

var upArgs struct {
	configPath string
	permanent  bool
	serverIP   string
	logFile    string
	logLevel   string
	debug      bool
}

var upCmd = &ffcli.Command{
	Name:       "up",
	ShortUsage: "up [flags]",
	ShortHelp:  "enable the kill switch",
	FlagSet: (func() *flag.FlagSet {
		fs := flag.NewFlagSet("up", flag.ExitOnError)
		fs.StringVar(&upArgs.configPath, "path", paths.DefaultKillSwitchConfigFile(), "kill switch config file")
		fs.BoolVar(&upArgs.permanent, "permanent", false, "keep the kill switch across reboots")
		fs.StringVar(&upArgs.serverIP, "server-ip", "", "vpn server ip that stays reachable while blocked")
		fs.StringVar(&upArgs.logFile, "logfile", paths.DefaultKillSwitchLogFile(), "set logfile path")
		fs.StringVar(&upArgs.logLevel, "loglevel", log.InfoLevelStr, "set log level")
		fs.BoolVar(&upArgs.debug, "debug", false, "for debug")
		return fs
	})(),
	Exec: execUp,
}

func execUp(ctx context.Context, args []string) error {
	logger, err := log.NewLogger("ksctl up", upArgs.logLevel, upArgs.logFile, upArgs.debug)
	if err != nil {
		fmt.Printf("failed to initialize logger. because %v", err)
		return nil
	}

	spec, err := conf.NewSpec(upArgs.configPath, logger).CreateSpec()
	if err != nil {
		fmt.Printf("failed to create kill switch conf, because %s\n", err.Error())
		return err
	}

	if upArgs.permanent {
		spec.Permanent = true
	}
	if upArgs.serverIP != "" {
		spec.ServerIP = upArgs.serverIP
	}

	ks, client, err := buildKillSwitch(ctx, spec, logger)
	if err != nil {
		logger.Logger.Errorf("failed to build kill switch, because %v", err)
		return err
	}
	defer client.Close()

	if err := ks.Enable(ctx); err != nil {
		logger.Logger.Errorf("failed to enable kill switch, because %v", err)
		return err
	}

	fmt.Println("kill switch enabled")

	return nil
}
