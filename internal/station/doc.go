// Package station joins the configured WiFi network.
//
// Connect is bounded: after starting the association it polls the link a
// fixed number of times and then returns, linked or not. Association keeps
// going in the background and the supervisor decides when to give up.
package station
