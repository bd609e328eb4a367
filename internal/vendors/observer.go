package vendors

import (
	"sync"
	"time"
)

// StateChange describes one state machine transition on a vendor
// connection.
type StateChange struct {
	ConnectionID string
	ServiceName  string
	From         ConnectionState
	To           ConnectionState
	Time         time.Time
}

// StateObserver receives connection state transitions. Implementations must
// not block; notifications are delivered synchronously on the protocol
// goroutine.
type StateObserver interface {
	ConnectionStateChanged(change StateChange)
}

// observerList is a small concurrency-safe observer registry.
type observerList struct {
	mu        sync.RWMutex
	observers []StateObserver
}

func (l *observerList) subscribe(obs StateObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, obs)
}

func (l *observerList) notify(change StateChange) {
	l.mu.RLock()
	observers := make([]StateObserver, len(l.observers))
	copy(observers, l.observers)
	l.mu.RUnlock()

	for _, obs := range observers {
		obs.ConnectionStateChanged(change)
	}
}
