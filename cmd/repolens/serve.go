package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/repolens/repolens/internal/server"
	"github.com/repolens/repolens/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	var addr string
	var root string
	var settingsPath string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RepoLens analysis backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			showHeader()

			slog.Info("repolens", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			srv, err := server.New(&server.Config{
				Addr:         addr,
				RootPath:     root,
				SettingsPath: settingsPath,
			})
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			if err := srv.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("server start", "error", err)
				return err
			}
			return nil
		},
	}

	serveCmd.Flags().StringVarP(&addr, "addr", "a", server.DefaultAddr, "Address to bind the backend")
	serveCmd.Flags().StringVarP(&root, "root", "r", ".", "Repository to analyze")
	serveCmd.Flags().StringVar(&settingsPath, "settings", "", "Settings file path (default <root>/.repolens/repolens.yaml)")

	return serveCmd
}
