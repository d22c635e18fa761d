package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/screenlink/internal/display"
	"github.com/muurk/screenlink/internal/store"
	"github.com/muurk/screenlink/internal/wifi"
)

// Settings command flags
var (
	settingsFormat string
	setCreds       wifi.Credentials
	clearYes       bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the stored WiFi settings",
	Long: `Inspect or edit the credential store used by 'screenlink run'.

Changes made here are picked up the next time the supervisor reads the store:
on its next join attempt, or after a restart.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored settings",
	Example: `  screenlink settings show
  screenlink settings show --format json`,
	RunE: runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store WiFi credentials",
	Long: `Store WiFi credentials, replacing any existing ones.

Without --dhcp=false the address is obtained by DHCP. A static setup needs
--ip, --gateway and --subnet; DNS servers are optional.`,
	Example: `  # DHCP network
  screenlink settings set --ssid home --password 'correct horse'

  # Static address
  screenlink settings set --ssid office --password hunter22 --dhcp=false \
    --ip 192.168.10.40 --gateway 192.168.10.1 --subnet 255.255.255.0 --dns1 1.1.1.1`,
	RunE: runSettingsSet,
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the stored settings",
	Long: `Remove the stored credentials and display preferences. The appliance
opens its setup portal the next time it looks for a network.`,
	Example: `  screenlink settings clear
  screenlink settings clear --yes`,
	RunE: runSettingsClear,
}

func init() {
	settingsShowCmd.Flags().StringVar(&settingsFormat, "format", "detailed", "Output format (detailed, json)")

	f := settingsSetCmd.Flags()
	f.StringVar(&setCreds.SSID, "ssid", "", "Network name")
	f.StringVar(&setCreds.Password, "password", "", "Passphrase (empty for an open network)")
	f.BoolVar(&setCreds.DHCP, "dhcp", true, "Obtain the address by DHCP")
	f.StringVar(&setCreds.IP, "ip", "", "Static address")
	f.StringVar(&setCreds.Gateway, "gateway", "", "Static gateway")
	f.StringVar(&setCreds.Subnet, "subnet", "", "Static subnet mask, e.g. 255.255.255.0")
	f.StringVar(&setCreds.DNS1, "dns1", "", "Primary DNS server")
	f.StringVar(&setCreds.DNS2, "dns2", "", "Secondary DNS server")
	_ = settingsSetCmd.MarkFlagRequired("ssid")

	settingsClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsClearCmd)
	rootCmd.AddCommand(settingsCmd)
}

func openStore() (*store.File, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.NewFile(cfg.Store.Path), nil
}

type settingsView struct {
	Path       string               `json:"path"`
	Configured bool                 `json:"configured"`
	WiFi       *wifi.Credentials    `json:"wifi,omitempty"`
	Secured    bool                 `json:"secured"`
	Display    wifi.DisplaySettings `json:"display"`
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	creds, ok, err := st.LoadCredentials()
	if err != nil {
		return err
	}
	disp, err := st.LoadDisplay()
	if err != nil {
		return err
	}

	view := settingsView{Path: st.Path(), Configured: ok, Display: disp}
	if ok {
		view.WiFi = &creds
		view.Secured = creds.Secured()
	}

	if settingsFormat == "json" {
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Store: %s\n\n", view.Path)
	if !ok {
		fmt.Println("No WiFi settings stored.")
	} else {
		fmt.Printf("SSID:     %s\n", creds.SSID)
		if creds.Secured() {
			fmt.Println("Password: (set)")
		} else {
			fmt.Println("Password: (open network)")
		}
		if creds.DHCP {
			fmt.Println("Address:  DHCP")
		} else {
			fmt.Printf("Address:  %s\n", creds.IP)
			fmt.Printf("Gateway:  %s\n", creds.Gateway)
			fmt.Printf("Subnet:   %s\n", creds.Subnet)
			if creds.DNS1 != "" || creds.DNS2 != "" {
				fmt.Printf("DNS:      %s %s\n", creds.DNS1, creds.DNS2)
			}
		}
	}

	fmt.Println()
	fmt.Printf("Battle romaji:    %t\n", disp.BattleRomaji)
	fmt.Printf("Rule romaji:      %t\n", disp.RuleRomaji)
	fmt.Printf("Stage romaji:     %t\n", disp.StageRomaji)
	fmt.Printf("Inverted display: %t\n", disp.InvertedDisplay)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	creds := setCreds
	if creds.DHCP {
		creds.IP, creds.Gateway, creds.Subnet, creds.DNS1, creds.DNS2 = "", "", "", "", ""
	}
	if errs := wifi.ValidateCredentials(creds); len(errs) > 0 {
		return fmt.Errorf("invalid settings:\n%s", wifi.FormatValidationErrors(errs))
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	if err := st.SaveCredentials(creds); err != nil {
		return err
	}
	fmt.Printf("Saved %s to %s\n", creds, st.Path())
	return nil
}

func runSettingsClear(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	if !clearYes {
		ok := display.Confirm(os.Stdin, os.Stdout, "FORGET WIFI SETTINGS", []string{
			"Stored credentials in " + st.Path() + " will be removed",
			"Display preferences are reset to their defaults",
			"A running appliance drops to its setup portal when the link is next lost",
		}, "forget")
		if !ok {
			return nil
		}
	}
	if err := st.Clear(); err != nil {
		return err
	}
	fmt.Printf("Cleared %s\n", st.Path())
	return nil
}
