package wifi

import (
	"fmt"
	"math/bits"
	"net/netip"
	"strings"
)

// ValidateSSID validates a WiFi SSID.
// SSIDs must be non-empty and <= 32 bytes (802.11 limit).
func ValidateSSID(ssid string) error {
	if ssid == "" {
		return NewValidationError("WiFi SSID cannot be empty")
	}
	if len(ssid) > 32 {
		return NewValidationError(fmt.Sprintf("WiFi SSID too long (max 32 chars): %d chars", len(ssid)))
	}
	return nil
}

// ValidatePassword validates a WPA2 passphrase for the appliance's own
// access point. Empty means an open access point.
//
// Station passwords are not checked: networks still use 64-digit hex keys,
// WEP keys and other lengths the appliance has to pass through unchanged.
func ValidatePassword(password string) error {
	if password == "" {
		return nil
	}
	if len(password) < 8 {
		return NewValidationError(fmt.Sprintf("WPA2 password too short (min 8 chars): %d chars", len(password)))
	}
	if len(password) > 63 {
		return NewValidationError(fmt.Sprintf("WPA2 password too long (max 63 chars): %d chars", len(password)))
	}
	return nil
}

// ParseIPv4 parses a dotted-quad IPv4 address. IPv6 and zoned forms are
// rejected.
func ParseIPv4(field, value string) (netip.Addr, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return netip.Addr{}, NewValidationError(fmt.Sprintf("%s is required", field))
	}
	addr, err := netip.ParseAddr(value)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, NewValidationError(fmt.Sprintf("%s is not a valid IPv4 address: %q", field, value))
	}
	return addr, nil
}

// MaskBits converts a dotted-quad netmask to a prefix length. The mask must be
// contiguous.
func MaskBits(mask netip.Addr) (int, error) {
	if !mask.Is4() {
		return 0, NewValidationError("subnet mask must be IPv4")
	}
	b := mask.As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	ones := bits.LeadingZeros32(^v)
	if v<<ones != 0 {
		return 0, NewValidationError(fmt.Sprintf("subnet mask %s is not contiguous", mask))
	}
	return ones, nil
}

// ParseStatic validates and parses the static addressing fields. DNS entries
// are optional; empty ones are skipped.
func ParseStatic(c Credentials) (StaticConfig, error) {
	ip, err := ParseIPv4("ip", c.IP)
	if err != nil {
		return StaticConfig{}, err
	}
	gw, err := ParseIPv4("gateway", c.Gateway)
	if err != nil {
		return StaticConfig{}, err
	}
	mask, err := ParseIPv4("subnet", c.Subnet)
	if err != nil {
		return StaticConfig{}, err
	}
	ones, err := MaskBits(mask)
	if err != nil {
		return StaticConfig{}, err
	}

	cfg := StaticConfig{
		Addr:    netip.PrefixFrom(ip, ones),
		Gateway: gw,
	}
	for i, d := range []string{c.DNS1, c.DNS2} {
		if strings.TrimSpace(d) == "" {
			continue
		}
		addr, err := ParseIPv4(fmt.Sprintf("dns%d", i+1), d)
		if err != nil {
			return StaticConfig{}, err
		}
		cfg.DNS = append(cfg.DNS, addr)
	}
	return cfg, nil
}

// ValidateCredentials validates a credential set as submitted by the portal.
// Returns a slice of validation errors (empty if valid). The password is
// accepted as given.
func ValidateCredentials(c Credentials) []error {
	var errs []error

	if err := ValidateSSID(c.SSID); err != nil {
		errs = append(errs, err)
	}

	if !c.DHCP {
		if _, err := ParseStatic(c); err != nil {
			errs = append(errs, err)
		}
	} else {
		for i, d := range []string{c.DNS1, c.DNS2} {
			if strings.TrimSpace(d) == "" {
				continue
			}
			if _, err := ParseIPv4(fmt.Sprintf("dns%d", i+1), d); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errs
}

// FormatValidationErrors formats a slice of validation errors into a user-friendly message.
func FormatValidationErrors(errs []error) string {
	if len(errs) == 0 {
		return "No validation errors"
	}
	if len(errs) == 1 {
		return errs[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Settings validation failed with %d error(s):\n", len(errs))
	for i, err := range errs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}
