package session

import (
	"context"
	"sync"
	"time"
)

var nowFunc = time.Now

type entry struct {
	binding   Binding
	expiresAt time.Time
}

// MemoryBinder keeps bindings in process memory. Entries expire ttl after
// their last Bind and are swept every cleanupInterval.
type MemoryBinder struct {
	mu        sync.RWMutex
	stopGuard sync.Once
	stopChan  chan struct{}
	ttl       time.Duration
	lookup    map[string]*entry
}

var _ Binder = (*MemoryBinder)(nil)

func NewMemoryBinder(ttl, cleanupInterval time.Duration) *MemoryBinder {
	b := &MemoryBinder{
		ttl:      ttl,
		stopChan: make(chan struct{}),
		lookup:   make(map[string]*entry),
	}
	go b.startCleanup(cleanupInterval)
	return b
}

func (b *MemoryBinder) Bind(ctx context.Context, sid, token, username string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lookup[sid] = &entry{
		binding:   Binding{AccessToken: token, Username: username},
		expiresAt: nowFunc().Add(b.ttl),
	}
	return nil
}

func (b *MemoryBinder) Lookup(ctx context.Context, sid string) (*Binding, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup[sid]
	if !ok || !nowFunc().Before(e.expiresAt) {
		return nil, nil
	}
	cp := e.binding
	return &cp, nil
}

func (b *MemoryBinder) Unbind(ctx context.Context, sid string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.lookup, sid)
	return nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (b *MemoryBinder) Close() error {
	b.stopGuard.Do(func() { close(b.stopChan) })
	return nil
}

func (b *MemoryBinder) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.deleteExpired()
		case <-b.stopChan:
			return
		}
	}
}

func (b *MemoryBinder) deleteExpired() {
	now := nowFunc()

	b.mu.Lock()
	defer b.mu.Unlock()

	for sid, e := range b.lookup {
		if !now.Before(e.expiresAt) {
			delete(b.lookup, sid)
		}
	}
}
