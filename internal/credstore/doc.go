// Package credstore owns durable session-credential persistence.
//
// Ownership boundary:
// - opaque credential blob sets keyed by name
// - atomic whole-set replacement on save
// - wholesale invalidation for forced re-pairing
//
// Blob contents are never interpreted here; the protocol driver owns their
// meaning.
package credstore
