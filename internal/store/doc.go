// Package store persists the appliance's WiFi credentials and display
// preferences.
//
// The File store keeps everything in one YAML document:
//
//	version: 1
//	wifi:
//	  has_settings: true
//	  ssid: home
//	  password: hunter2hunter2
//	  dhcp: true
//	display:
//	  battle_romaji: false
//	  rule_romaji: false
//	  stage_romaji: false
//	  inverted_display: false
//
// has_settings distinguishes "never configured" from "configured with empty
// fields". Writes go through a temporary file and a rename so a power cut
// never leaves a truncated document behind.
package store
