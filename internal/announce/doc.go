// Package announce makes a connected appliance visible on its LAN and finds
// other appliances.
//
// While the supervisor is Connected, an Announcer serves a read-only
// GET /status JSON document and registers a _screenlink._tcp service over
// mDNS with "ssid" and "version" TXT records. Leaving Connected withdraws
// both, so nothing listens while the portal owns the radio.
//
// Browser and Client are the other side, used by "screenlink discover":
//
//	apps, _ := announce.NewBrowser().Browse(ctx)
//	for _, a := range apps {
//		st, err := announce.NewClient().FetchStatus(ctx, a)
//		...
//	}
package announce
