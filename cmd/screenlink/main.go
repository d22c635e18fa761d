// Screenlink keeps a headless display appliance on its WiFi network.
//
// It joins the stored network at boot and, when there is none or the join
// fails, opens a temporary access point with a captive setup page where
// credentials can be entered from a phone.
//
// Usage:
//
//	screenlink run [flags]
//	screenlink discover [flags]
//	screenlink settings show|set|clear [flags]
//
// See 'screenlink --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/screenlink/internal/config"
	"github.com/muurk/screenlink/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "screenlink",
	Short: "WiFi connectivity supervisor with a captive setup portal",
	Long: `Screenlink keeps a headless display appliance connected to WiFi.

With stored credentials it joins the network and stays connected, reconnecting
when the link drops. Without them, or when joining fails, it broadcasts a setup
network and serves a captive portal where the network can be chosen from a
phone. Saved settings take effect after a restart.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.SystemConfigPath+" or ~/.config/screenlink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config, or the default location when the flag is unset.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("screenlink %s\n", version.Full())
	},
}
