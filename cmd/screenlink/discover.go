package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/screenlink/internal/announce"
)

var (
	discoverTimeout time.Duration
	discoverStatus  bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find connected appliances on the local network",
	Long: `Browse mDNS for _screenlink._tcp services.

Appliances only announce themselves while connected to a network, so one that
is showing its setup portal will not be listed. With --status each appliance's
status endpoint is queried as well.`,
	Example: `  # Browse for 5 seconds (default)
  screenlink discover

  # Longer browse, then ask each appliance for its status
  screenlink discover --timeout 15s --status`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", announce.DefaultBrowseTimeout, "How long to listen for answers")
	discoverCmd.Flags().BoolVar(&discoverStatus, "status", false, "Fetch /status from every appliance found")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Browsing for appliances (timeout: %s)...\n\n", discoverTimeout)

	browser := announce.NewBrowser()
	browser.Timeout = discoverTimeout
	apps, err := browser.Browse(cmd.Context())
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(apps) == 0 {
		fmt.Println("No appliances found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Appliances only announce while connected to WiFi")
		fmt.Println("  - Make sure this machine is on the same network")
		fmt.Println("  - Multicast may be filtered by the access point")
		fmt.Println("  - Try a longer --timeout")
		return nil
	}

	fmt.Printf("Found %d appliance(s):\n\n", len(apps))

	client := announce.NewClient()
	for i, a := range apps {
		fmt.Printf("%d. %s\n", i+1, a.Instance)
		fmt.Printf("   Host:    %s\n", a.Hostname)
		fmt.Printf("   Address: %s:%d\n", a.IP, a.Port)
		if ssid := a.GetMetadata("ssid"); ssid != "" {
			fmt.Printf("   SSID:    %s\n", ssid)
		}
		if v := a.GetMetadata("version"); v != "" {
			fmt.Printf("   Version: %s\n", v)
		}

		if discoverStatus {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			st, err := client.FetchStatus(ctx, a)
			cancel()
			if err != nil {
				fmt.Printf("   Status:  unavailable (%v)\n", err)
			} else {
				fmt.Printf("   Status:  %s since %s, ip %s\n", st.State, st.Since.Local().Format(time.DateTime), st.IP)
			}
		}
		fmt.Println()
	}

	return nil
}
