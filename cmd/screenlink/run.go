package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/screenlink/internal/appliance"
	"github.com/muurk/screenlink/internal/config"
	"github.com/muurk/screenlink/internal/logging"
)

// Run command flags
var (
	radioDriver string
	setupMode   bool
	tuiMode     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the connectivity supervisor",
	Long: `Run the connectivity supervisor until interrupted.

The supervisor joins the stored network or opens the setup portal, and keeps
the display updated with the connection status. Send SIGUSR1 to open the setup
portal while running; SIGINT or SIGTERM shut down cleanly.

The nmcli driver needs NetworkManager and permission to manage the WiFi
interface. The sim driver runs everything against a simulated radio and an
in-memory credential store, which is useful for trying the portal on a
desktop.`,
	Example: `  # Run on the appliance with /etc/screenlink/config.yaml
  screenlink run

  # Force the setup portal on start
  screenlink run --setup

  # Full-screen status view on the attached console
  screenlink run --tui

  # Try it out on a laptop (set portal ports above 1024 in the config)
  screenlink run --radio sim --config ./dev.yaml --log-level debug`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&radioDriver, "radio", "", "Radio driver: nmcli or sim (overrides config)")
	runCmd.Flags().BoolVar(&setupMode, "setup", false, "Open the setup portal on start")
	runCmd.Flags().BoolVar(&tuiMode, "tui", false, "Full-screen status view")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if radioDriver != "" {
		cfg.Radio.Driver = radioDriver
	}

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		level = "info"
	}
	if tuiMode && logLevel == "" {
		// Log lines would tear the full-screen view.
		level = ""
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}
	defer logging.Sync()

	if cfg.Radio.Driver == config.DriverSimulator {
		fmt.Fprintln(os.Stderr, "Using simulated radio; settings are kept in memory only.")
	}

	r, err := appliance.New(cfg, appliance.Options{
		Setup: setupMode,
		TUI:   tuiMode,
		Out:   os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	return r.Run(cmd.Context())
}
