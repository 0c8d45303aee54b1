package bridge

import "time"

// DisconnectCode is the raw close signal reported by the session transport.
type DisconnectCode int

const (
	// CodeNone marks a close that carried no code.
	CodeNone DisconnectCode = 0
	// CodeLoggedOut is the backend's terminal unpairing signal.
	CodeLoggedOut DisconnectCode = 401
	// CodeRateLimited marks a backend actively rejecting the session.
	CodeRateLimited DisconnectCode = 405
)

// Cause tags one classified disconnect.
type Cause string

const (
	CauseLoggedOut   Cause = "logged_out"
	CauseRateLimited Cause = "rate_limited"
	CauseTransient   Cause = "transient"
	CauseUnknown     Cause = "unknown"
)

// Action is the recommended recovery for one classified disconnect.
type Action int

const (
	// NoRetry halts automatic recovery; re-pairing requires operator
	// intervention.
	NoRetry Action = iota
	// RetryAfter schedules a restart after the verdict delay.
	RetryAfter
	// InvalidateAndRetryAfter clears stored credentials before the
	// scheduled restart, forcing a fresh pairing flow.
	InvalidateAndRetryAfter
)

func (a Action) String() string {
	switch a {
	case NoRetry:
		return "no_retry"
	case RetryAfter:
		return "retry_after"
	case InvalidateAndRetryAfter:
		return "invalidate_and_retry_after"
	default:
		return "unknown"
	}
}

// Verdict pairs a disconnect cause with its recovery action. Delay is
// meaningful only for the retrying actions.
type Verdict struct {
	Cause  Cause
	Action Action
	Delay  time.Duration
}

// Policy holds the classifier delays.
type Policy struct {
	// RetryDelay applies to transient and unknown closes.
	RetryDelay time.Duration
	// RateLimitDelay applies to rate-limited closes, after credential
	// invalidation.
	RateLimitDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		RetryDelay:     5 * time.Second,
		RateLimitDelay: 60 * time.Second,
	}
}

func (p Policy) WithDefaults() Policy {
	def := DefaultPolicy()
	if p.RetryDelay <= 0 {
		p.RetryDelay = def.RetryDelay
	}
	if p.RateLimitDelay <= 0 {
		p.RateLimitDelay = def.RateLimitDelay
	}
	return p
}

// Classify maps a raw disconnect code onto recovery policy.
//
// A logged-out close is a user-initiated unpairing and never retries:
// auto-reconnecting would re-prompt pairing against the backend's terms. A
// 405-class close correlates with a corrupted or blocked session, so stored
// credentials are cleared and the retry backs off hard. Every other close is
// treated as transient with a flat retry delay.
func (p Policy) Classify(code DisconnectCode) Verdict {
	switch code {
	case CodeLoggedOut:
		return Verdict{Cause: CauseLoggedOut, Action: NoRetry}
	case CodeRateLimited:
		return Verdict{Cause: CauseRateLimited, Action: InvalidateAndRetryAfter, Delay: p.RateLimitDelay}
	case CodeNone:
		return Verdict{Cause: CauseUnknown, Action: RetryAfter, Delay: p.RetryDelay}
	default:
		return Verdict{Cause: CauseTransient, Action: RetryAfter, Delay: p.RetryDelay}
	}
}
