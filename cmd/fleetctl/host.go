package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var hostListFormat string

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage registered hosts",
}

var hostAddCmd = &cobra.Command{
	Use:   "add NAME [ADDR] [LABEL...]",
	Short: "Register a host after a reachability check",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		addr := ""
		labels := args[1:]
		if len(labels) > 0 && looksLikeAddr(labels[0]) {
			addr = labels[0]
			labels = labels[1:]
		}
		return theApp.inventory.AddHost(name, addr, labels)
	},
}

var hostRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Deregister a host, dropping its connection and caches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.inventory.RemoveHost(args[0])
	},
}

var hostSetAddrCmd = &cobra.Command{
	Use:   "set-addr NAME ADDR",
	Short: "Update a host's network address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.inventory.UpdateHostAddr(args[0], args[1])
	},
}

var hostLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts := theApp.inventory.Hosts()
		sort.Strings(hosts)

		if hostListFormat == "json" {
			out := make([]map[string]any, 0, len(hosts))
			for _, h := range hosts {
				entry, _ := theApp.inventory.Get(h)
				labels := make([]string, 0, len(entry.Labels))
				for l := range entry.Labels {
					labels = append(labels, l)
				}
				sort.Strings(labels)
				entryOut := map[string]any{"hostname": h, "addr": entry.Addr, "labels": labels}
				if facts, ok := theApp.inventory.PeekFacts(h); ok {
					entryOut["facts"] = facts
				}
				out = append(out, entryOut)
			}
			enc, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(enc))
			return nil
		}

		for _, h := range hosts {
			entry, _ := theApp.inventory.Get(h)
			fmt.Printf("%-30s %s\n", h, entry.Addr)
		}
		return nil
	},
}

var hostLabelCmd = &cobra.Command{
	Use:   "label",
	Short: "Mutate host labels",
}

var hostLabelAddCmd = &cobra.Command{
	Use:   "add NAME LABEL",
	Short: "Add a label to a host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.inventory.AddHostLabel(args[0], args[1])
	},
}

var hostLabelRmCmd = &cobra.Command{
	Use:   "rm NAME LABEL",
	Short: "Remove a label from a host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.inventory.RemoveHostLabel(args[0], args[1])
	},
}

// looksLikeAddr distinguishes a positional ADDR argument from the first
// label: an address always contains a dot or colon, which §3's label
// grammar never requires but never forbids either, so this is a
// heuristic, not a validation rule.
func looksLikeAddr(s string) bool {
	for _, r := range s {
		if r == '.' || r == ':' {
			return true
		}
	}
	return false
}

func init() {
	hostLsCmd.Flags().StringVar(&hostListFormat, "format", "plain", "output format: json or plain")

	hostLabelCmd.AddCommand(hostLabelAddCmd, hostLabelRmCmd)
	hostCmd.AddCommand(hostAddCmd, hostRmCmd, hostSetAddrCmd, hostLsCmd, hostLabelCmd)
	rootCmd.AddCommand(hostCmd)
}
