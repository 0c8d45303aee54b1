package bridge

import "time"

// ConnectionState enumerates supervisor lifecycle states. Exactly one state
// is active per logical session and transitions are strictly sequential.
type ConnectionState string

const (
	// StateIdle means no session is active and none is scheduled.
	StateIdle ConnectionState = "idle"
	// StateStarting means a session open is in flight.
	StateStarting ConnectionState = "starting"
	// StateAwaitingPairing means the backend issued a pairing challenge and
	// is waiting for the account holder to scan it.
	StateAwaitingPairing ConnectionState = "awaiting_pairing"
	// StateConnected means the session is live and sends are accepted.
	StateConnected ConnectionState = "connected"
	// StateStopped means the session closed and the close was classified.
	StateStopped ConnectionState = "stopped"
	// StateFatalError means session establishment failed outright; no
	// automatic retry is scheduled.
	StateFatalError ConnectionState = "fatal_error"
)

// Snapshot is the externally observable lifecycle projection. It is replaced
// wholesale on every transition; readers never see a partial update.
type Snapshot struct {
	State ConnectionState

	// StoppedCause is set only while State is StateStopped.
	StoppedCause Cause

	// PairingChallenge is the opaque token to render for the account holder.
	// Present only while awaiting pairing.
	PairingChallenge string

	// LastError is the most recent failure reason. Cleared exactly on
	// pairing-challenge receipt or connection open, never otherwise.
	LastError string

	ChangedAt time.Time
}

func (s Snapshot) HasPairingChallenge() bool { return s.PairingChallenge != "" }
