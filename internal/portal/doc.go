// Package portal implements the captive setup portal.
//
// While active the radio broadcasts its own access point, a DNS server
// answers every A query with the portal address, and an HTTP server serves
// the setup page:
//
//	GET  /          setup page (other paths redirect here)
//	GET  /scan      visible networks, strongest first
//	GET  /settings  stored settings without the password
//	POST /save      validate and store settings
//	GET  /events    websocket feed of display status
//
// Request handlers run on server goroutines. They never call back into the
// supervisor directly: activity and saves are recorded and handed over when
// the supervisor calls Poll on its own tick.
package portal
