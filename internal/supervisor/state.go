package supervisor

import (
	"net/netip"
	"time"
)

// State is the supervisor's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StatePortalActive
	StatePortalWithConnection
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StatePortalActive:
		return "portal_active"
	case StatePortalWithConnection:
		return "portal_with_connection"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// InPortal reports whether the setup portal should be serving in s.
func (s State) InPortal() bool {
	return s == StatePortalActive || s == StatePortalWithConnection
}

// Transition describes one state change.
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
	// SSID is the configured network, if one is known.
	SSID string
}

// Snapshot is a read-only view of the supervisor, safe to take from any
// goroutine.
type Snapshot struct {
	State State
	// Since is when State was entered.
	Since time.Time
	SSID  string
	IP    netip.Addr
	// Countdown is the time left before the portal gives way to a join.
	// Zero when no countdown is running.
	Countdown      time.Duration
	RestartPending bool
}
