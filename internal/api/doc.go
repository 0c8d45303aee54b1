// Package api hosts the inbound command surface for the bridge.
//
// Ownership boundary:
// - HTTP routes for outbound sends and lifecycle status
// - bearer-token authentication of callers
// - health and metrics endpoints
//
// The supervisor assumes callers are authorized by the time a command
// reaches it, so all authentication lives here.
package api
