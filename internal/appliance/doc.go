// Package appliance assembles the connectivity stack from a config.Config
// and runs it: radio driver, station, credential store, setup portal,
// presenters, supervisor and LAN announcer.
//
// Run ticks the supervisor every timing.tick until the context ends or a
// SIGINT/SIGTERM arrives. SIGUSR1 opens the setup portal.
package appliance
