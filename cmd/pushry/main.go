package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/pushry/internal/app"
	"github.com/foxzi/pushry/internal/config"
)

var (
	cfgFile   string
	verbose   bool
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pushry",
	Short: "Pushry - push notification campaign sender",
	Long: `Pushry sends personalized push notification campaigns to field agents
through Firebase Cloud Messaging and APNs.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the Pushry HTTP API and, when enabled, the metrics endpoint.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pushry version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress details to stderr")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// cliLogger keeps stdout for command output
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openCore builds the full send pipeline for one-shot commands
func openCore(ctx context.Context) (*app.Core, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewCore(ctx, cfg, cliLogger(), nil)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Name:      %s\n", cfg.Server.Name)
	fmt.Printf("  Mode:      %s\n", cfg.Dispatch.Mode)
	fmt.Printf("  Dispatch:  batch_size=%d workers=%d pace=%s\n", cfg.Dispatch.BatchSize, cfg.Dispatch.Workers, cfg.Dispatch.Pace)
	fmt.Printf("  APNs:      %t\n", cfg.APNs.Enabled)
	fmt.Printf("  API:       %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Directory: %s\n", cfg.Directory.Path)
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:   %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}
