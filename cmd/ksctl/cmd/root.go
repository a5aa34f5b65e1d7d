// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package cmd

// ksctl manages the wireguard kill switch. it installs blackhole
// connection profiles into NetworkManager so that no traffic can
// leave the machine outside the tunnel.

import (
	"context"
	"flag"
	"strings"

	"github.com/peterbourgon/ff/v2/ffcli"

	"github.com/runetale/killswitch/conf"
	"github.com/runetale/killswitch/log"
	"github.com/runetale/killswitch/nm"
	"github.com/runetale/killswitch/wgks"
)

func Run(args []string) error {
	fs := flag.NewFlagSet("ksctl", flag.ExitOnError)
	cmd := &ffcli.Command{
		Name:       "ksctl",
		ShortUsage: "ksctl <subcommands> [command flags]",
		ShortHelp:  "manage the wireguard kill switch through NetworkManager.",
		LongHelp: strings.TrimSpace(`
All flags can use a single or double hyphen.

For help on subcommands, prefix with -help.

Flags and options are subject to change.
`),
		Subcommands: []*ffcli.Command{
			upCmd,
			downCmd,
			updateCmd,
			statusCmd,
		},
		FlagSet: fs,
		Exec:    func(context.Context, []string) error { return flag.ErrHelp },
	}

	if err := cmd.Parse(args); err != nil {
		return err
	}

	if err := cmd.Run(context.Background()); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	return nil
}

// buildKillSwitch wires the config file, the NetworkManager client and
// the kill switch together. the caller must Close the returned client.
func buildKillSwitch(ctx context.Context, spec *conf.Spec, logger *log.Logger) (*wgks.KillSwitch, *nm.Client, error) {
	client, err := nm.NewClient(logger)
	if err != nil {
		return nil, nil, err
	}

	if err := wgks.Validate(ctx, wgks.ProtocolWireGuard, client); err != nil {
		client.Close()
		return nil, nil, err
	}

	ks, err := wgks.New(ctx, client, logger, wgks.Options{
		Permanent: spec.Permanent,
		ServerIP:  spec.ServerIP,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	return ks, client, nil
}
