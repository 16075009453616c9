package engine

import (
	"context"
	"sync"

	"github.com/roomieai/concierge-go/pkg/errors"
)

// clientLocks serializes turn handling per client identity. Each client gets
// its own lock so distinct clients never contend; entries are reference
// counted and removed once the last holder or waiter releases, keeping the
// map bounded by the number of clients currently in flight.
type clientLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	token chan struct{} // capacity 1; holding the token holds the lock
	refs  int
}

func newClientLocks() *clientLocks {
	return &clientLocks{entries: make(map[string]*lockEntry)}
}

func (l *clientLocks) entry(clientID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[clientID]
	if !ok {
		e = &lockEntry{token: make(chan struct{}, 1)}
		l.entries[clientID] = e
	}
	e.refs++
	return e
}

func (l *clientLocks) put(clientID string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, clientID)
	}
}

// acquire blocks until the client's lock is held or ctx is done. The returned
// release function must be called exactly once.
func (l *clientLocks) acquire(ctx context.Context, clientID string) (func(), error) {
	e := l.entry(clientID)
	select {
	case e.token <- struct{}{}:
		return func() {
			<-e.token
			l.put(clientID, e)
		}, nil
	case <-ctx.Done():
		l.put(clientID, e)
		return nil, errors.CheckContext(ctx, "acquire client lock")
	}
}

// tryAcquire takes the lock only if it is free, so callers can reject a
// second in-flight turn for the same client instead of queueing it.
func (l *clientLocks) tryAcquire(clientID string) (func(), bool) {
	e := l.entry(clientID)
	select {
	case e.token <- struct{}{}:
		return func() {
			<-e.token
			l.put(clientID, e)
		}, true
	default:
		l.put(clientID, e)
		return nil, false
	}
}
