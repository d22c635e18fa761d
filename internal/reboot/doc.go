// Package reboot provides the restarters used after new settings are saved:
// Exec re-executes the current binary, Command runs an external command.
package reboot
