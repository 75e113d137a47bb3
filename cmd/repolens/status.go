package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/repolens/repolens/internal/lenssdk"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:     "status",
		Short:   "Print the backend's repository status",
		PreRunE: rootCmd.PreRunE,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := clientConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			sdk, err := lenssdk.New(cfg.SDKConfig())
			if err != nil {
				return err
			}
			defer sdk.Close()

			status, err := sdk.Repo.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("backend unreachable at %s: %w", sdk.BaseURL(), err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", cyan("Backend: "), sdk.BaseURL())
			fmt.Fprintf(out, "%s %s\n", cyan("Repo:    "), status.RootPath)
			fmt.Fprintf(out, "%s %s\n", cyan("Version: "), status.ServerVersion)

			if status.WatcherActive {
				fmt.Fprintf(out, "%s %s\n", cyan("Watcher: "), green("active"))
			} else {
				fmt.Fprintf(out, "%s %s\n", cyan("Watcher: "), red("inactive"))
			}
			if status.FilesIndexed != nil {
				fmt.Fprintf(out, "%s %d\n", cyan("Files:   "), *status.FilesIndexed)
			}
			if status.LastFullScan != nil {
				fmt.Fprintf(out, "%s %s\n", cyan("Scanned: "), humanize.Time(*status.LastFullScan))
			} else {
				fmt.Fprintf(out, "%s %s\n", cyan("Scanned: "), red("never"))
			}
			if status.ScanInFlight {
				fmt.Fprintf(out, "%s\n", green("scan in progress"))
			}
			return nil
		},
	}
	return statusCmd
}
