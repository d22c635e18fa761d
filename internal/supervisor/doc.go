// Package supervisor implements the connection state machine.
//
// The supervisor decides, once per tick, whether the appliance should be
// joining its configured network, serving the setup portal, or sitting
// connected. It owns no radio, sockets or rendering itself; it drives a
// Station, a Portal and a Presenter through small interfaces.
//
// States:
//
//	Disconnected          credentials are looked up on the next tick
//	Connecting            a join is in flight, bounded by JoinTimeout
//	PortalActive          the portal is up, optionally counting down to a join
//	PortalWithConnection  someone is using the portal; the countdown is held
//	Connected             the station has a link and an address
//
// Portal activity always takes precedence over the countdown. Once a setup
// session ends (no requests for InactivityWindow) the countdown starts over
// from its full duration.
//
// Typical wiring:
//
//	sup := supervisor.New(supervisor.DefaultConfig(), supervisor.Deps{...})
//	for now := range ticker.C {
//		sup.Tick(ctx, now)
//	}
package supervisor
