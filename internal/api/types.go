package api

import (
	"time"

	"github.com/mkrell/bridgectl/internal/bridge"
)

// SendRequest is one outbound message submission.
type SendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// StatusResponse mirrors the latest lifecycle snapshot. The pairing
// challenge is included verbatim; rendering it as a scannable image is the
// client's concern.
type StatusResponse struct {
	State               string    `json:"state"`
	StoppedCause        string    `json:"stopped_cause,omitempty"`
	HasPairingChallenge bool      `json:"has_pairing_challenge"`
	PairingChallenge    string    `json:"pairing_challenge,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ChangedAt           time.Time `json:"changed_at"`
}

func statusResponse(snap bridge.Snapshot) StatusResponse {
	return StatusResponse{
		State:               string(snap.State),
		StoppedCause:        string(snap.StoppedCause),
		HasPairingChallenge: snap.HasPairingChallenge(),
		PairingChallenge:    snap.PairingChallenge,
		LastError:           snap.LastError,
		ChangedAt:           snap.ChangedAt,
	}
}
