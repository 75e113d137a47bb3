package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/repolens/repolens/internal/client"
	"github.com/repolens/repolens/internal/client/config"
	"github.com/repolens/repolens/internal/client/dash"
	"github.com/repolens/repolens/internal/utils"
	"github.com/repolens/repolens/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configFileName = "config"

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "repolens",
	Short:   "RepoLens - live repository analysis dashboard",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := clientConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}
		cmd.SilenceUsage = true

		app, err := client.New(cfg)
		if err != nil {
			return err
		}
		app.Start()
		defer app.Stop()

		return dash.Run(app, cfg.Route)
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().String("api-url", "", "Backend API base URL")
	rootCmd.Flags().String("deploy-url", "", "Deployed backend URL (overrides api-url)")
	rootCmd.Flags().String("route", "overview", "View to open on start")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "RepoLens config file")
}

func main() {
	godotenv.Load() //nolint:errcheck // a missing .env is fine

	cleanup, err := setupLogging()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("logging setup failed:"), err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setupLogging fans slog out to a tinted terminal handler and a log file.
// The dashboard owns the terminal while it runs, so the file is where debug
// output survives.
func setupLogging() (cleanup func(), err error) {
	logFile := config.DefaultLogFilePath
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	return func() { file.Close() }, nil
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(config.DefaultConfigDir)
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("api_url", cmd.Flags().Lookup("api-url"))
	viper.BindPFlag("route", cmd.Flags().Lookup("route"))

	// deploy-url is only forwarded when explicitly given: an empty value
	// set on purpose means "no deployed backend", which is different from
	// the flag being absent
	if cmd.Flags().Changed("deploy-url") {
		deployURL, _ := cmd.Flags().GetString("deploy-url")
		viper.Set("deploy_url", deployURL)
	}

	viper.SetEnvPrefix("REPOLENS")
	viper.AutomaticEnv()

	return nil
}

// clientConfig assembles the dashboard config from viper's merged view.
// deploy_url keeps its set-but-empty semantics: setting it to "" explicitly
// disables the deployed backend and falls through to api_url.
func clientConfig() *config.Config {
	cfg := &config.Config{
		Path:    viper.ConfigFileUsed(),
		APIURL:  viper.GetString("api_url"),
		DevHost: viper.GetString("dev_host"),
		DevPort: viper.GetInt("dev_port"),
		Route:   viper.GetString("route"),
	}
	if viper.IsSet("deploy_url") {
		deploy := viper.GetString("deploy_url")
		cfg.DeployURL = &deploy
	}
	return cfg
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Print(utils.LensArt + "\n\n")
}
