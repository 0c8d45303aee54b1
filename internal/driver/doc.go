// Package driver owns protocol driver registration for the bridge.
//
// A driver wraps one messaging-backend protocol implementation behind the
// bridge.Opener contract. Drivers register a factory in init(); the daemon
// picks one by name from the config file. The repo ships the loopback
// driver; real backend drivers register from integration builds.
package driver
