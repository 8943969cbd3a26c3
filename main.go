// Package main provides the timereport CLI entry point.
// timereport generates NBIS spent-time report workbooks from Redmine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NBISweden/timereport/cmd"
	"github.com/NBISweden/timereport/config"
	"github.com/NBISweden/timereport/pkg/buildinfo"
	"github.com/NBISweden/timereport/pkg/logging"
)

// Global flags and state.
var (
	configDir string
	debug     bool

	log logging.Logger = logging.NewNopLogger()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "timereport",
	Short: "Generate NBIS spent-time reports from Redmine",
	Long: `timereport fetches spent-time entries from Redmine and renders them as
an Excel workbook: one sheet per support type plus a cross-category matrix.

Getting started:
  timereport config init                   Create the config file
  timereport config set url https://...    Point at your Redmine instance
  timereport auth login                    Store your API key
  timereport generate -y 2026 -o out.xlsx  Generate a report

Run 'timereport <command> --help' for details on any command.`,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		if configDir != "" {
			os.Setenv("TIMEREPORT_CONFIG_DIR", configDir)
		}

		level := logging.LevelInfo
		if debug || os.Getenv("TIMEREPORT_DEBUG") != "" {
			level = logging.LevelDebug
		}
		log = logging.NewLogger(&logging.Config{Level: level})
		return nil
	},
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get()
		out := c.OutOrStdout()
		fmt.Fprintf(out, "timereport version %s\n", info.Version)
		fmt.Fprintf(out, "  commit: %s\n", info.Commit)
		fmt.Fprintf(out, "  built:  %s\n", info.BuildTime)
		return nil
	},
}

// configCmd manages CLI configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and modify the timereport configuration settings.`,
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		configPath, _ := config.ConfigPath()

		out := c.OutOrStdout()
		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "  Config file: %s\n", configPath)
		fmt.Fprintf(out, "  URL:         %s\n", valueOrDefault(cfg.URL, "(not set)"))
		fmt.Fprintf(out, "  Timeout:     %s\n", cfg.Timeout)
		fmt.Fprintf(out, "  Page size:   %d\n", cfg.PageSize)
		fmt.Fprintf(out, "  Debug:       %t\n", cfg.Debug)
		return nil
	},
}

// configInitCmd initializes the configuration file.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with default values if one doesn't exist.`,
	RunE: func(c *cobra.Command, args []string) error {
		configPath, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}

		out := c.OutOrStdout()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
			fmt.Fprintln(out, "Use 'timereport config show' to view current settings.")
			return nil
		}

		if err := config.DefaultConfig().Save(); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}
		fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		fmt.Fprintln(out, "Set the Redmine URL with: timereport config set url https://projects.example.org")
		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  url        - Base URL of the Redmine instance
  timeout    - Request timeout (e.g., 30s, 2m)
  page_size  - Pagination limit for Redmine list endpoints
  debug      - Enable debug logging (true/false)

Examples:
  timereport config set url https://projects.nbis.se
  timereport config set timeout 1m
  timereport config set page_size 200`,
	Args: cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := config.LoadConfig()
		if err != nil {
			cfg = config.DefaultConfig()
		}

		switch key {
		case "url":
			cfg.URL = value
		case "timeout":
			duration, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid timeout value: %w", err)
			}
			cfg.Timeout = duration
		case "page_size":
			var size int
			if _, err := fmt.Sscanf(value, "%d", &size); err != nil || size <= 0 {
				return fmt.Errorf("invalid page size: %s", value)
			}
			cfg.PageSize = size
		case "debug":
			switch value {
			case "true", "1":
				cfg.Debug = true
			case "false", "0":
				cfg.Debug = false
			default:
				return fmt.Errorf("invalid debug value: %s (must be true or false)", value)
			}
		default:
			return fmt.Errorf("unknown configuration key: %s", key)
		}

		if err := cfg.Save(); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}
		fmt.Fprintf(c.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:                   "completion [bash|zsh|fish|powershell]",
	Short:                 "Generate shell completion scripts",
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(c *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default is ~/.timereport)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(cmd.NewGenerateCommand(&cmd.GenerateCommandDeps{
		Logger: loggerRef{},
	}))
	rootCmd.AddCommand(cmd.NewRulesCommand())
	rootCmd.AddCommand(cmd.NewAuthCommand(nil))
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
}

// loggerRef defers to the logger built in PersistentPreRunE, which runs
// after command construction.
type loggerRef struct{}

func (loggerRef) Debug(msg string, fields ...logging.Field) { log.Debug(msg, fields...) }
func (loggerRef) Info(msg string, fields ...logging.Field)  { log.Info(msg, fields...) }
func (loggerRef) Warn(msg string, fields ...logging.Field)  { log.Warn(msg, fields...) }
func (loggerRef) Error(msg string, fields ...logging.Field) { log.Error(msg, fields...) }
func (loggerRef) With(fields ...logging.Field) logging.Logger {
	return log.With(fields...)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
