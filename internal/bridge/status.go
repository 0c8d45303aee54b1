package bridge

import "sync/atomic"

// Publisher holds the latest lifecycle snapshot for external observers.
// Writes come only from the supervisor loop; reads are lock-free and never
// block it.
type Publisher struct {
	current atomic.Pointer[Snapshot]
}

func NewPublisher() *Publisher {
	p := &Publisher{}
	p.current.Store(&Snapshot{State: StateIdle})
	return p
}

func (p *Publisher) publish(s Snapshot) {
	p.current.Store(&s)
}

// Read returns the latest snapshot. Safe for any number of concurrent
// callers; a reader never observes a half-updated tuple.
func (p *Publisher) Read() Snapshot {
	return *p.current.Load()
}
