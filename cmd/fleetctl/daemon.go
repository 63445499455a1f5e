package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zph/fleetd/pkg/daemon"
	"github.com/zph/fleetd/pkg/ferrors"
	"github.com/zph/fleetd/pkg/inventory"
)

var daemonRmForce bool
var daemonNetwork string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Create, remove, or act on individual daemons",
}

var daemonAddCmd = &cobra.Command{
	Use:   "add {mon|mgr|mds|rgw|rbd-mirror|nfs|prometheus} HOST [ID]",
	Short: "Imperatively deploy one daemon on one host",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		daemonType, host := args[0], args[1]
		id := ""
		if len(args) == 3 {
			id = args[2]
		}

		if daemonType == "mon" && daemonNetwork == "" {
			return ferrors.New(ferrors.KindValidation, "host '"+host+"' is missing a network spec")
		}

		existing, err := existingIDs(daemonType)
		if err != nil {
			return err
		}
		if id == "" {
			id, err = daemon.GenerateUniqueName("", host, existing)
			if err != nil {
				return err
			}
		} else if err := daemon.ValidateForcedName(id, existing); err != nil {
			return err
		}

		_, err = theApp.lifecycle.Create(context.Background(), daemonType, id, host, daemon.CreateOptions{Network: daemonNetwork})
		if err != nil {
			return err
		}
		fmt.Printf("deployed %s.%s on %s\n", daemonType, id, host)
		return nil
	},
}

var daemonRmCmd = &cobra.Command{
	Use:   "rm NAME...",
	Short: "Remove one or more daemons by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			host, err := hostForDaemon(name)
			if err != nil {
				return err
			}
			if err := theApp.lifecycle.Remove(context.Background(), name, host, daemonRmForce); err != nil {
				return err
			}
		}
		return nil
	},
}

// newDaemonActionCmd builds the `daemon ACTION NAME` subcommand for one
// fixed action (§6 table: the action name itself is the verb, not a
// flag — "daemon start foo", "daemon redeploy foo", ...).
func newDaemonActionCmd(action daemon.Action) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " NAME",
		Short: "Run the " + string(action) + " action against one daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			host, err := hostForDaemon(name)
			if err != nil {
				return err
			}
			typ, id := splitDaemonName(name)
			return theApp.lifecycle.Action(context.Background(), typ, id, host, action)
		},
	}
}

var osdCmd = &cobra.Command{
	Use:   "osd",
	Short: "Manage per-device storage daemons",
}

var osdCreateCmd = &cobra.Command{
	Use:   "create HOST:DEV[,DEV...]...",
	Short: "Deploy storage daemons on the given host:device pairs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, spec := range args {
			host, devs, ok := strings.Cut(spec, ":")
			if !ok || devs == "" {
				return ferrors.New(ferrors.KindValidation, "expected HOST:DEV[,DEV...], got "+spec)
			}
			for _, dev := range strings.Split(devs, ",") {
				existing, err := existingIDs("osd")
				if err != nil {
					return err
				}
				id, err := daemon.GenerateUniqueName("", host, existing)
				if err != nil {
					return err
				}
				_, err = theApp.lifecycle.Create(context.Background(), "osd", id, host, daemon.CreateOptions{OSDFSIDHint: dev})
				if err != nil {
					return err
				}
				fmt.Printf("deployed osd.%s on %s (%s)\n", id, host, dev)
			}
		}
		return nil
	},
}

func existingIDs(daemonType string) (map[string]bool, error) {
	matches, err := theApp.inventory.GetDaemons(context.Background(), inventory.Filter{Type: daemonType}, false, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(matches))
	for _, d := range matches {
		out[d.ID] = true
	}
	return out, nil
}

func hostForDaemon(name string) (string, error) {
	typ, _ := splitDaemonName(name)
	matches, err := theApp.inventory.GetDaemons(context.Background(), inventory.Filter{Type: typ}, false, true)
	if err != nil {
		return "", err
	}
	for _, d := range matches {
		if d.Name() == name {
			return d.Host, nil
		}
	}
	return "", ferrors.New(ferrors.KindNotFound, "unknown daemon "+name)
}

func splitDaemonName(name string) (typ, id string) {
	typ, id, ok := strings.Cut(name, ".")
	if !ok {
		return name, ""
	}
	return typ, id
}

func init() {
	daemonAddCmd.Flags().StringVar(&daemonNetwork, "network", "", "network to render into a mon's config (required for mon)")
	daemonRmCmd.Flags().BoolVar(&daemonRmForce, "force", false, "force removal")
	daemonCmd.AddCommand(daemonAddCmd, daemonRmCmd)
	for _, action := range []daemon.Action{
		daemon.ActionStart, daemon.ActionStop, daemon.ActionRestart,
		daemon.ActionRedeploy, daemon.ActionReconfig,
	} {
		daemonCmd.AddCommand(newDaemonActionCmd(action))
	}
	osdCmd.AddCommand(osdCreateCmd)
	rootCmd.AddCommand(daemonCmd, osdCmd)
}
