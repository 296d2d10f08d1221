package core

import "sync"

// KeyedLease grants at-most-one holder per key. Used to serialize per-video
// ingestion and per-video index writes without a global lock.
type KeyedLease struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewKeyedLease() *KeyedLease {
	return &KeyedLease{held: make(map[string]struct{})}
}

// TryAcquire takes the lease for key if it is free. It never blocks; a caller
// that loses the race is expected to reject or requeue its job.
func (l *KeyedLease) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// Release frees the lease for key. Releasing an unheld key is a no-op.
func (l *KeyedLease) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
