package bridge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkrell/bridgectl/internal/credstore"
	"github.com/mkrell/bridgectl/internal/testutil/testlog"
)

// fakeClock hands out manually fired timers so scenarios can simulate
// minutes without sleeping.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clk     *fakeClock
	ch      chan time.Time
	at      time.Time
	fired   bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clk: c, ch: make(chan time.Time, 1), at: c.now.Add(d)}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			t.ch <- c.now
		}
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	was := !t.fired && !t.stopped
	t.stopped = true
	return was
}

// memStore is an in-memory credential store with fault injection.
type memStore struct {
	mu            sync.Mutex
	creds         credstore.Credentials
	loadErr       error
	saveErr       error
	invalidations int
}

func newMemStore(creds credstore.Credentials) *memStore {
	if creds == nil {
		creds = credstore.Credentials{}
	}
	return &memStore{creds: creds}
}

func (m *memStore) Load() (credstore.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.creds.Clone(), nil
}

func (m *memStore) Save(creds credstore.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.creds = creds.Clone()
	return nil
}

func (m *memStore) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations++
	m.creds = credstore.Credentials{}
	return nil
}

func (m *memStore) snapshot() credstore.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.Clone()
}

func (m *memStore) invalidationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidations
}

// scriptedSession records sends and can reject them.
type scriptedSession struct {
	mu      sync.Mutex
	sendErr error
	sent    []string
	closes  int
}

func (s *scriptedSession) Send(ctx context.Context, destination string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, destination+":"+string(payload))
	return nil
}

func (s *scriptedSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *scriptedSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// scriptedOpener hands out scripted sessions and exposes the event channel
// of the latest open so tests can push backend events.
type scriptedOpener struct {
	mu      sync.Mutex
	openErr error
	opens   int
	events  chan<- Event
	session *scriptedSession
	creds   []credstore.Credentials
}

func (o *scriptedOpener) Open(ctx context.Context, creds credstore.Credentials, events chan<- Event) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	o.creds = append(o.creds, creds.Clone())
	if o.openErr != nil {
		return nil, o.openErr
	}
	o.events = events
	o.session = &scriptedSession{}
	return o.session, nil
}

func (o *scriptedOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func (o *scriptedOpener) emit(ev Event) {
	o.mu.Lock()
	ch := o.events
	o.mu.Unlock()
	ch <- ev
}

func (o *scriptedOpener) lastSession() *scriptedSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	sup    *Supervisor
	clock  *fakeClock
	opener *scriptedOpener
	store  *memStore
	logs   *syncBuffer
}

func startSupervisor(t *testing.T, store *memStore, opener *scriptedOpener) *harness {
	t.Helper()
	h := &harness{
		clock:  newFakeClock(),
		opener: opener,
		store:  store,
		logs:   &syncBuffer{},
	}
	h.sup = NewSupervisor(DefaultConfig(), store, opener, zerolog.New(h.logs))
	h.sup.SetClock(h.clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.sup.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", desc)
}

func (h *harness) waitForState(t *testing.T, state ConnectionState) {
	t.Helper()
	waitFor(t, "state "+string(state), func() bool {
		return h.sup.Status().State == state
	})
}

func TestFreshStartReachesAwaitingPairing(t *testing.T) {
	testlog.Start(t)
	opener := &scriptedOpener{}
	h := startSupervisor(t, newMemStore(nil), opener)

	h.waitForState(t, StateStarting)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })

	opener.emit(Event{Kind: EventPairingChallenge, Challenge: "2@pairing-token"})
	h.waitForState(t, StateAwaitingPairing)

	snap := h.sup.Status()
	if !snap.HasPairingChallenge() {
		t.Fatalf("awaiting pairing without challenge")
	}
	if snap.LastError != "" {
		t.Fatalf("challenge receipt should clear last error, got %q", snap.LastError)
	}
	if strings.Contains(h.logs.String(), "suspect network or firewall") {
		t.Fatalf("diagnostic logged despite challenge arriving in time")
	}
}

func TestPairingChallengeClearedOnConnect(t *testing.T) {
	testlog.Start(t)
	opener := &scriptedOpener{}
	h := startSupervisor(t, newMemStore(nil), opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })

	opener.emit(Event{Kind: EventPairingChallenge, Challenge: "2@pairing-token"})
	h.waitForState(t, StateAwaitingPairing)
	opener.emit(Event{Kind: EventConnectionOpen})
	h.waitForState(t, StateConnected)

	snap := h.sup.Status()
	if snap.HasPairingChallenge() {
		t.Fatalf("connected snapshot still carries pairing challenge")
	}
	if snap.LastError != "" {
		t.Fatalf("connect should clear last error, got %q", snap.LastError)
	}
}

func TestPairingWindowElapsedIsDiagnosticOnly(t *testing.T) {
	testlog.Start(t)
	opener := &scriptedOpener{}
	h := startSupervisor(t, newMemStore(nil), opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })
	waitFor(t, "pairing timer", func() bool { return h.clock.pending() == 1 })

	h.clock.Advance(10 * time.Second)
	waitFor(t, "diagnostic log", func() bool {
		return strings.Contains(h.logs.String(), "suspect network or firewall")
	})

	if got := h.sup.Status().State; got != StateStarting {
		t.Fatalf("diagnostic forced a transition to %s", got)
	}
	if opener.openCount() != 1 {
		t.Fatalf("diagnostic triggered a restart")
	}
}

func TestRateLimitedCloseInvalidatesAndRestartsAfterDelay(t *testing.T) {
	testlog.Start(t)
	store := newMemStore(credstore.Credentials{"identity": []byte("paired")})
	opener := &scriptedOpener{}
	h := startSupervisor(t, store, opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })

	opener.emit(Event{Kind: EventConnectionOpen})
	h.waitForState(t, StateConnected)

	opener.emit(Event{Kind: EventConnectionClose, Code: CodeRateLimited})
	h.waitForState(t, StateStopped)

	snap := h.sup.Status()
	if snap.StoppedCause != CauseRateLimited {
		t.Fatalf("unexpected cause: %s", snap.StoppedCause)
	}
	waitFor(t, "invalidation", func() bool { return store.invalidationCount() == 1 })
	if !store.snapshot().Empty() {
		t.Fatalf("credentials survived invalidation")
	}
	waitFor(t, "session close", func() bool { return opener.lastSession().closeCount() == 1 })
	waitFor(t, "restart timer", func() bool { return h.clock.pending() == 1 })

	h.clock.Advance(59 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if opener.openCount() != 1 {
		t.Fatalf("restarted before the rate-limit delay elapsed")
	}

	h.clock.Advance(2 * time.Second)
	waitFor(t, "restart", func() bool { return opener.openCount() == 2 })
	h.waitForState(t, StateStarting)
}

func TestTransientCloseRestartsAfterFlatDelay(t *testing.T) {
	testlog.Start(t)
	store := newMemStore(credstore.Credentials{"identity": []byte("paired")})
	opener := &scriptedOpener{}
	h := startSupervisor(t, store, opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })

	opener.emit(Event{Kind: EventConnectionOpen})
	h.waitForState(t, StateConnected)
	opener.emit(Event{Kind: EventConnectionClose, Code: 428})
	h.waitForState(t, StateStopped)

	if store.invalidationCount() != 0 {
		t.Fatalf("transient close invalidated credentials")
	}
	waitFor(t, "restart timer", func() bool { return h.clock.pending() == 1 })
	h.clock.Advance(5 * time.Second)
	waitFor(t, "restart", func() bool { return opener.openCount() == 2 })
}

func TestLoggedOutCloseIsTerminal(t *testing.T) {
	testlog.Start(t)
	store := newMemStore(credstore.Credentials{"identity": []byte("paired")})
	opener := &scriptedOpener{}
	h := startSupervisor(t, store, opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })

	opener.emit(Event{Kind: EventConnectionOpen})
	h.waitForState(t, StateConnected)
	opener.emit(Event{Kind: EventConnectionClose, Code: CodeLoggedOut})
	h.waitForState(t, StateIdle)

	if h.clock.pending() != 0 {
		t.Fatalf("restart timer scheduled after logged-out close")
	}
	if store.invalidationCount() != 0 {
		t.Fatalf("logged-out close invalidated credentials")
	}
	snap := h.sup.Status()
	if snap.LastError == "" {
		t.Fatalf("terminal close left no failure note")
	}

	h.clock.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	if opener.openCount() != 1 {
		t.Fatalf("logged-out close auto-retried")
	}
}

func TestSendWhileNotConnected(t *testing.T) {
	testlog.Start(t)
	opener := &scriptedOpener{}
	h := startSupervisor(t, newMemStore(nil), opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })

	before := h.sup.Status()
	err := h.sup.Send(context.Background(), "+15550001111", []byte("hello"))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if h.sup.Status() != before {
		t.Fatalf("failed send mutated the snapshot")
	}
}

func TestSendDeliveredWhenConnected(t *testing.T) {
	testlog.Start(t)
	opener := &scriptedOpener{}
	h := startSupervisor(t, newMemStore(nil), opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })
	opener.emit(Event{Kind: EventConnectionOpen})
	h.waitForState(t, StateConnected)

	if err := h.sup.Send(context.Background(), "+15550001111", []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	sess := opener.lastSession()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.sent) != 1 || sess.sent[0] != "+15550001111:hello" {
		t.Fatalf("unexpected sends: %v", sess.sent)
	}
}

func TestSendRejectionIsWrapped(t *testing.T) {
	testlog.Start(t)
	opener := &scriptedOpener{}
	h := startSupervisor(t, newMemStore(nil), opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })
	opener.emit(Event{Kind: EventConnectionOpen})
	h.waitForState(t, StateConnected)

	sess := opener.lastSession()
	sess.mu.Lock()
	sess.sendErr = errors.New("recipient unknown")
	sess.mu.Unlock()

	err := h.sup.Send(context.Background(), "+15550001111", []byte("hello"))
	if !errors.Is(err, ErrSendRejected) {
		t.Fatalf("expected ErrSendRejected, got %v", err)
	}
}

func TestCredentialChangeIsPersisted(t *testing.T) {
	testlog.Start(t)
	store := newMemStore(nil)
	opener := &scriptedOpener{}
	startSupervisor(t, store, opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })

	opener.emit(Event{Kind: EventCredentialsChanged, Credentials: credstore.Credentials{
		"identity": []byte("freshly-paired"),
	}})
	waitFor(t, "credential save", func() bool {
		return string(store.snapshot()["identity"]) == "freshly-paired"
	})
}

func TestLoadFailureBecomesFatalError(t *testing.T) {
	testlog.Start(t)
	store := newMemStore(nil)
	store.loadErr = errors.New("disk unreadable")
	opener := &scriptedOpener{}
	h := startSupervisor(t, store, opener)

	h.waitForState(t, StateFatalError)
	if opener.openCount() != 0 {
		t.Fatalf("opened a session despite load failure")
	}
	snap := h.sup.Status()
	if !strings.Contains(snap.LastError, "credential store failure") {
		t.Fatalf("unexpected error note: %q", snap.LastError)
	}

	h.clock.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	if h.sup.Status().State != StateFatalError {
		t.Fatalf("fatal error auto-retried")
	}
}

func TestOpenFailureBecomesFatalError(t *testing.T) {
	testlog.Start(t)
	opener := &scriptedOpener{openErr: errors.New("dial refused")}
	h := startSupervisor(t, newMemStore(nil), opener)

	h.waitForState(t, StateFatalError)
	snap := h.sup.Status()
	if !strings.Contains(snap.LastError, "session open failure") {
		t.Fatalf("unexpected error note: %q", snap.LastError)
	}
}

func TestRestartOpensWithStoredCredentials(t *testing.T) {
	testlog.Start(t)
	store := newMemStore(credstore.Credentials{"identity": []byte("paired")})
	opener := &scriptedOpener{}
	h := startSupervisor(t, store, opener)
	waitFor(t, "session open", func() bool { return opener.openCount() == 1 })

	opener.emit(Event{Kind: EventConnectionOpen})
	h.waitForState(t, StateConnected)
	opener.emit(Event{Kind: EventConnectionClose, Code: CodeRateLimited})
	h.waitForState(t, StateStopped)
	waitFor(t, "restart timer", func() bool { return h.clock.pending() == 1 })

	h.clock.Advance(61 * time.Second)
	waitFor(t, "restart", func() bool { return opener.openCount() == 2 })

	opener.mu.Lock()
	second := opener.creds[1]
	opener.mu.Unlock()
	if !second.Empty() {
		t.Fatalf("restart after invalidation reused stale credentials")
	}
}
