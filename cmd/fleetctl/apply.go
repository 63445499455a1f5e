package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zph/fleetd/pkg/ferrors"
	"github.com/zph/fleetd/pkg/inventory"
	"github.com/zph/fleetd/pkg/placement"
)

var (
	applyCount    int
	applyLabel    string
	applyHosts    []string
	applyNetworks []string
	applyArch     string
)

// newApplyCmd builds the `apply TYPE` subcommand for one daemon type
// (§6 table: "apply {mgr|mon|mds|rbd-mirror|rgw|nfs|prometheus} ...").
func newApplyCmd(daemonType string) *cobra.Command {
	return &cobra.Command{
		Use:   daemonType + " NAME",
		Short: "Declaratively reconcile the " + daemonType + " service to a count/placement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := &placement.ServiceSpec{
				Type: daemonType,
				Name: args[0],
				Placement: placement.Spec{
					Label: applyLabel,
					Count: applyCount,
					Arch:  applyArch,
				},
			}
			if len(applyHosts) > 0 {
				entries := make([]placement.HostEntry, 0, len(applyHosts))
				for i, h := range applyHosts {
					entry := placement.HostEntry{Hostname: h, Name: args[0]}
					if i < len(applyNetworks) {
						entry.Network = applyNetworks[i]
					}
					entries = append(entries, entry)
				}
				spec.Placement.Hosts = entries
			}

			result, err := theApp.reconcilerFor().Apply(context.Background(), spec)
			if err != nil {
				return err
			}
			fmt.Println(result.Status)
			return nil
		},
	}
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Declarative count/placement reconciliation",
}

var rmServiceCmd = &cobra.Command{
	Use:   "rm SERVICE[.NAME]",
	Short: "Remove a service (not mon/mgr)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		daemonType, name, _ := strings.Cut(args[0], ".")
		if daemonType == "mon" || daemonType == "mgr" {
			return ferrors.New(ferrors.KindUnsupportedOperation, "removing "+daemonType+" is not supported")
		}

		matches, err := theApp.inventory.GetDaemons(context.Background(), inventory.Filter{Type: daemonType, ServiceNamePrefix: name}, false, true)
		if err != nil {
			return err
		}
		for _, d := range matches {
			if err := theApp.lifecycle.Remove(context.Background(), d.Name(), d.Host, false); err != nil {
				return err
			}
		}
		fmt.Printf("removed %d daemon(s)\n", len(matches))
		return nil
	},
}

var applyDaemonTypes = []string{"mgr", "mon", "mds", "rbd-mirror", "rgw", "nfs", "prometheus"}

func init() {
	for _, t := range applyDaemonTypes {
		sub := newApplyCmd(t)
		sub.Flags().IntVar(&applyCount, "count", 0, "desired daemon count")
		sub.Flags().StringVar(&applyLabel, "label", "", "label selector")
		sub.Flags().StringSliceVar(&applyHosts, "hosts", nil, "explicit host list")
		sub.Flags().StringSliceVar(&applyNetworks, "networks", nil, "network per explicit host, positionally paired with --hosts (required for mon)")
		sub.Flags().StringVar(&applyArch, "arch", "", "filter candidate hosts by CPU architecture (count-based placement only)")
		applyCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(applyCmd, rmServiceCmd)
}
