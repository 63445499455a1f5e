package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zph/fleetd/pkg/ferrors"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Drive a rolling image upgrade across the fleet",
}

var upgradeCheckCmd = &cobra.Command{
	Use:   "check TARGET",
	Short: "Resolve TARGET's image id/version without starting an upgrade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts := theApp.inventory.Hosts()
		if len(hosts) == 0 {
			return ferrors.New(ferrors.KindPlacement, "no hosts registered to resolve target image against")
		}
		imageID, version, err := theApp.ops.InspectTargetImage(context.Background(), hosts[0], args[0])
		if err != nil {
			return err
		}
		fmt.Printf("target=%s image_id=%s version=%s\n", args[0], imageID, version)
		return nil
	},
}

var upgradeStartCmd = &cobra.Command{
	Use:   "start TARGET",
	Short: "Begin a rolling upgrade toward TARGET (image ref or version string)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.states.Start(args[0])
	},
}

var upgradeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current upgrade state",
	RunE: func(cmd *cobra.Command, args []string) error {
		state := theApp.states.State()
		if state == nil {
			fmt.Println("no upgrade in progress")
			return nil
		}
		enc, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	},
}

var upgradePauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the in-progress upgrade",
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.states.Pause()
	},
}

var upgradeResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused upgrade",
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.states.Resume()
	},
}

var upgradeStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Drop the upgrade state entirely",
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.states.Stop()
	},
}

func init() {
	upgradeCmd.AddCommand(upgradeCheckCmd, upgradeStartCmd, upgradeStatusCmd, upgradePauseCmd, upgradeResumeCmd, upgradeStopCmd)
	rootCmd.AddCommand(upgradeCmd)
}
