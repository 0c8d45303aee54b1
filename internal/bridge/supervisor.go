package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkrell/bridgectl/internal/credstore"
	"github.com/mkrell/bridgectl/internal/observability"
)

var (
	ErrNotConnected = errors.New("bridge: not connected")
	ErrSendRejected = errors.New("bridge: send rejected")
	ErrCredentialIO = errors.New("bridge: credential store failure")
	ErrSessionOpen  = errors.New("bridge: session open failure")
)

const (
	// eventBuffer keeps a slow supervisor from blocking the driver's event
	// emitter.
	eventBuffer = 16

	closeTimeout = 5 * time.Second
)

// Supervisor owns the lifetime of at most one Session and drives the
// reconnect state machine. All state mutation happens on the Run goroutine;
// external callers interact only through Send and Status.
type Supervisor struct {
	cfg    Config
	store  credstore.Store
	opener Opener
	status *Publisher
	clock  Clock
	logger zerolog.Logger

	mu        sync.Mutex
	session   Session
	connected bool
}

func NewSupervisor(cfg Config, store credstore.Store, opener Opener, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg.WithDefaults(),
		store:  store,
		opener: opener,
		status: NewPublisher(),
		clock:  NewClock(),
		logger: logger,
	}
}

// SetClock swaps the timer source. Tests only; must be called before Run.
func (s *Supervisor) SetClock(c Clock) { s.clock = c }

// Status returns the latest lifecycle snapshot. Safe for concurrent callers.
func (s *Supervisor) Status() Snapshot { return s.status.Read() }

// Send delivers one outbound message through the live session. At-most-once:
// failures are returned to the caller, never queued or retried.
func (s *Supervisor) Send(ctx context.Context, destination string, payload []byte) error {
	s.mu.Lock()
	sess, connected := s.session, s.connected
	s.mu.Unlock()
	if !connected || sess == nil {
		return ErrNotConnected
	}
	if err := sess.Send(ctx, destination, payload); err != nil {
		observability.RecordSend(false)
		return fmt.Errorf("%w: %v", ErrSendRejected, err)
	}
	observability.RecordSend(true)
	return nil
}

// Run drives the state machine until ctx is cancelled. Cancellation stops
// any pending restart timer and closes the active session before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	var pairingWait, restart Timer
	events := s.startSession(ctx)
	if events != nil {
		pairingWait = s.clock.NewTimer(s.cfg.PairingWait)
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer(pairingWait)
			stopTimer(restart)
			s.closeSession()
			s.logger.Info().Msg("supervisor stopped")
			return nil

		case <-timerC(restart):
			restart = nil
			events = s.startSession(ctx)
			pairingWait = nil
			if events != nil {
				pairingWait = s.clock.NewTimer(s.cfg.PairingWait)
			}

		case <-timerC(pairingWait):
			pairingWait = nil
			s.logger.Error().
				Dur("window", s.cfg.PairingWait).
				Msg("no pairing challenge or connection within window; suspect network or firewall")
			observability.RecordPairingTimeout()

		case ev := <-events:
			switch ev.Kind {
			case EventCredentialsChanged:
				s.saveCredentials(ev.Credentials)
			case EventPairingChallenge:
				stopTimer(pairingWait)
				pairingWait = nil
				s.toAwaitingPairing(ev.Challenge)
			case EventConnectionOpen:
				stopTimer(pairingWait)
				pairingWait = nil
				s.toConnected()
			case EventConnectionClose:
				stopTimer(pairingWait)
				pairingWait = nil
				// Stop reading this session's channel; a new one is made
				// per attempt so a late event cannot leak into the next
				// session.
				events = nil
				restart = s.handleClose(ev.Code)
			}
		}
	}
}

// startSession moves to Starting and opens a fresh session. Returns nil on
// establishment failure, which parks the supervisor in FatalError until the
// surrounding process restarts it.
func (s *Supervisor) startSession(ctx context.Context) chan Event {
	prev := s.status.Read()
	s.transition(Snapshot{State: StateStarting, LastError: prev.LastError})

	creds, err := s.store.Load()
	if err != nil {
		s.fail(fmt.Errorf("%w: %v", ErrCredentialIO, err))
		return nil
	}
	events := make(chan Event, eventBuffer)
	sess, err := s.opener.Open(ctx, creds, events)
	if err != nil {
		s.fail(fmt.Errorf("%w: %v", ErrSessionOpen, err))
		return nil
	}
	s.mu.Lock()
	s.session = sess
	s.connected = false
	s.mu.Unlock()
	s.logger.Info().Bool("paired", !creds.Empty()).Msg("session opened")
	return events
}

// handleClose classifies the raw close code, releases the session, and
// schedules recovery. Returns the restart timer, or nil for terminal closes.
func (s *Supervisor) handleClose(code DisconnectCode) Timer {
	verdict := s.cfg.Policy.Classify(code)
	s.closeSession()
	s.toStopped(code, verdict)

	switch verdict.Action {
	case NoRetry:
		s.toIdle()
		s.logger.Warn().Msg("logged out; automatic reconnect disabled until re-pairing")
		return nil
	case InvalidateAndRetryAfter:
		s.invalidateCredentials()
	}
	s.logger.Info().
		Str("action", verdict.Action.String()).
		Dur("delay", verdict.Delay).
		Msg("restart scheduled")
	return s.clock.NewTimer(verdict.Delay)
}

func (s *Supervisor) toAwaitingPairing(challenge string) {
	s.transition(Snapshot{State: StateAwaitingPairing, PairingChallenge: challenge})
}

func (s *Supervisor) toConnected() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.transition(Snapshot{State: StateConnected})
}

func (s *Supervisor) toStopped(code DisconnectCode, v Verdict) {
	observability.RecordDisconnect(string(v.Cause))
	s.transition(Snapshot{
		State:        StateStopped,
		StoppedCause: v.Cause,
		LastError:    fmt.Sprintf("connection closed: cause=%s code=%d", v.Cause, code),
	})
}

func (s *Supervisor) toIdle() {
	prev := s.status.Read()
	s.transition(Snapshot{State: StateIdle, LastError: prev.LastError})
}

func (s *Supervisor) fail(err error) {
	s.logger.Error().Err(err).Msg("session establishment failed")
	s.transition(Snapshot{State: StateFatalError, LastError: err.Error()})
}

func (s *Supervisor) transition(next Snapshot) {
	prev := s.status.Read()
	next.ChangedAt = s.clock.Now()
	s.status.publish(next)
	observability.RecordTransition(string(prev.State), string(next.State))
	observability.SetConnected(next.State == StateConnected)
	s.logger.Info().
		Str("from", string(prev.State)).
		Str("to", string(next.State)).
		Msg("lifecycle transition")
}

// recordError updates the snapshot's failure note without a state change.
func (s *Supervisor) recordError(msg string) {
	snap := s.status.Read()
	snap.LastError = msg
	snap.ChangedAt = s.clock.Now()
	s.status.publish(snap)
}

func (s *Supervisor) saveCredentials(creds credstore.Credentials) {
	if err := s.store.Save(creds); err != nil {
		s.logger.Error().Err(err).Msg("credential save failed")
		s.recordError(fmt.Sprintf("credential save failed: %v", err))
		return
	}
	s.logger.Debug().Int("blobs", len(creds)).Msg("credentials persisted")
}

func (s *Supervisor) invalidateCredentials() {
	if err := s.store.Invalidate(); err != nil {
		s.logger.Error().Err(err).Msg("credential invalidation failed")
		s.recordError(fmt.Sprintf("credential invalidation failed: %v", err))
		return
	}
	s.logger.Warn().Msg("credentials invalidated; next start re-pairs")
}

// closeSession releases the active handle. Runs synchronously so a new
// Starting never overlaps a closing session.
func (s *Supervisor) closeSession() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.connected = false
	s.mu.Unlock()
	if sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("session close")
	}
}
