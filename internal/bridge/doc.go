// Package bridge owns the messaging-bridge connection lifecycle.
//
// Ownership boundary:
// - reconnect supervisor state machine
// - disconnect classification and recovery policy
// - status snapshot publication
// - session open/send/close contract
//
// The wire protocol itself (handshake, crypto, framing) lives behind the
// Opener/Session contract; drivers in internal/driver implement it.
package bridge
