// Package radio owns the WiFi radio.
//
// A Controller wraps a Driver and serialises mode changes. The radio is in
// exactly one of three modes (off, station, access point), and a switch only
// starts the new mode after the old one has been torn down. A failed teardown
// leaves the old mode in place and returns a radio mode error.
//
// Two drivers are provided:
//   - NMCLI talks to NetworkManager through the nmcli command
//   - Simulator keeps everything in memory for tests and --radio sim
package radio
