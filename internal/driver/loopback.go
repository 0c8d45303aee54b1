package driver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkrell/bridgectl/internal/bridge"
	"github.com/mkrell/bridgectl/internal/credstore"
)

const LoopbackName = "loopback"

const defaultAutoPairDelay = 2 * time.Second

var errLoopbackClosed = errors.New("driver: loopback session closed")

func init() {
	Register(LoopbackName, func(cfg Config) (bridge.Opener, error) {
		return NewLoopback(cfg), nil
	})
}

// Loopback simulates the messaging backend in-process for local development
// and lifecycle testing without a real account. A fresh identity emits a
// pairing challenge and "scans" it itself after AutoPairDelay; a paired
// identity connects immediately. Sends are logged, not delivered.
type Loopback struct {
	logger   zerolog.Logger
	autoPair time.Duration
}

func NewLoopback(cfg Config) *Loopback {
	autoPair := cfg.AutoPairDelay
	if autoPair <= 0 {
		autoPair = defaultAutoPairDelay
	}
	return &Loopback{logger: cfg.Logger, autoPair: autoPair}
}

func (l *Loopback) Open(ctx context.Context, creds credstore.Credentials, events chan<- bridge.Event) (bridge.Session, error) {
	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &loopbackSession{
		logger: l.logger,
		ctx:    sessionCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(l.autoPair, creds.Clone(), events)
	return s, nil
}

type loopbackSession struct {
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	connected atomic.Bool
}

func (s *loopbackSession) run(autoPair time.Duration, creds credstore.Credentials, events chan<- bridge.Event) {
	defer close(s.done)

	emit := func(ev bridge.Event) bool {
		select {
		case events <- ev:
			return true
		case <-s.ctx.Done():
			return false
		}
	}

	if creds.Empty() {
		challenge, err := newToken("2@")
		if err != nil {
			s.logger.Error().Err(err).Msg("loopback challenge generation")
			return
		}
		if !emit(bridge.Event{Kind: bridge.EventPairingChallenge, Challenge: challenge}) {
			return
		}
		select {
		case <-time.After(autoPair):
		case <-s.ctx.Done():
			return
		}
		identity, err := newToken("loopback:")
		if err != nil {
			s.logger.Error().Err(err).Msg("loopback identity generation")
			return
		}
		paired := credstore.Credentials{"identity": []byte(identity)}
		if !emit(bridge.Event{Kind: bridge.EventCredentialsChanged, Credentials: paired}) {
			return
		}
	}

	// Mark sendable before the open event so a caller reacting to the event
	// never races the flag.
	s.connected.Store(true)
	if !emit(bridge.Event{Kind: bridge.EventConnectionOpen}) {
		s.connected.Store(false)
		return
	}
	<-s.ctx.Done()
}

func (s *loopbackSession) Send(ctx context.Context, destination string, payload []byte) error {
	if !s.connected.Load() {
		return errLoopbackClosed
	}
	s.logger.Info().
		Str("driver", LoopbackName).
		Str("destination", destination).
		Int("bytes", len(payload)).
		Msg("message swallowed")
	return nil
}

// Close stops the event emitter. No events are delivered after Close
// returns.
func (s *loopbackSession) Close(ctx context.Context) error {
	s.connected.Store(false)
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newToken(prefix string) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("driver: token entropy: %w", err)
	}
	return prefix + hex.EncodeToString(raw), nil
}
