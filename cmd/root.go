package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/classbook/internal/obs"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "classbook",
		Short:         "Group-class booking service: bookings, expiry sweeps and reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServerCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newRemindCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newMailerCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "classbook %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}

func init() {
	obs.Version = Version
}
