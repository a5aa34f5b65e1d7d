// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// the down cmd tears every blackhole profile out of NetworkManager,
// whatever state the kill switch was left in

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

var downArgs struct {
	configPath string
	logFile    string
	logLevel   string
	debug      bool
}

var downCmd = &ffcli.Command{
	Name:      "down",
	ShortHelp: "disable the kill switch",
	FlagSet: (func() *flag.FlagSet {
		fs := flag.NewFlagSet("down", flag.ExitOnError)
		fs.StringVar(&downArgs.configPath, "path", paths.DefaultKillSwitchConfigFile(), "kill switch config file")
		fs.StringVar(&downArgs.logFile, "logfile", paths.DefaultKillSwitchLogFile(), "set logfile path")
		fs.StringVar(&downArgs.logLevel, "loglevel", log.InfoLevelStr, "set log level")
		fs.BoolVar(&downArgs.debug, "debug", false, "is debug")
		return fs
	})(),
	Exec: execDown,
}

func execDown(ctx context.Context, args []string) error {
	logger, err := log.NewLogger("ksctl down", downArgs.logLevel, downArgs.logFile, downArgs.debug)
	if err != nil {
		fmt.Println("failed to initialize logger")
		return nil
	}

	spec, err := conf.NewSpec(downArgs.configPath, logger).CreateSpec()
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

	if err := ks.Disable(ctx); err != nil {
		logger.Logger.Errorf("failed to remove some profiles, because %v", err)
		return err
	}

	fmt.Println("kill switch disabled")

	return nil
}
